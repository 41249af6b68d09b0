// Package voice lists the voices available to the reader, from synthesis
// providers and the platform speech engine, with favorites first.
package voice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"

	"github.com/dgnsrekt/readalong/internal/favorites"
	"github.com/dgnsrekt/readalong/internal/synth"
)

// ErrNoVoices is returned when no source produced any voice.
var ErrNoVoices = errors.New("no voices available")

const defaultTimeout = 10 * time.Second

// Key identifies a voice across sources.
func Key(v synth.Voice) string {
	return v.Provider + ":" + v.ID
}

// Catalog merges the voices of several sources.
type Catalog struct {
	sources   []synth.VoiceLister
	favorites *favorites.Store
	timeout   time.Duration

	mu     sync.Mutex
	voices []synth.Voice
}

// NewCatalog returns a catalog over sources. favs may be nil.
func NewCatalog(favs *favorites.Store, sources ...synth.VoiceLister) *Catalog {
	return &Catalog{
		sources:   sources,
		favorites: favs,
		timeout:   defaultTimeout,
	}
}

// List fetches every source concurrently and returns the merged voices,
// favorites first, then by language and name. A failing source is skipped
// as long as another one answers. Results are kept for later calls until
// Refresh.
func (c *Catalog) List(ctx context.Context) ([]synth.Voice, error) {
	c.mu.Lock()
	cached := c.voices
	c.mu.Unlock()
	if cached != nil {
		return c.sorted(cached), nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	results := make([][]synth.Voice, len(c.sources))
	failures := make([]error, len(c.sources))

	var g errgroup.Group
	for i, src := range c.sources {
		g.Go(func() error {
			voices, err := src.Voices(ctx)
			if err != nil {
				log.Warn("Could not list voices", "source", fmt.Sprintf("%T", src), "error", err)
				failures[i] = err
				return nil
			}
			results[i] = voices
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool)
	var merged []synth.Voice
	for _, voices := range results {
		for _, v := range voices {
			k := Key(v)
			if seen[k] {
				continue
			}
			seen[k] = true
			merged = append(merged, v)
		}
	}

	if len(merged) == 0 {
		if err := errors.Join(failures...); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoVoices, err)
		}
		return nil, ErrNoVoices
	}

	c.mu.Lock()
	c.voices = merged
	c.mu.Unlock()
	return c.sorted(merged), nil
}

// Refresh drops cached results.
func (c *Catalog) Refresh() {
	c.mu.Lock()
	c.voices = nil
	c.mu.Unlock()
}

func (c *Catalog) sorted(voices []synth.Voice) []synth.Voice {
	out := make([]synth.Voice, len(voices))
	copy(out, voices)
	sort.SliceStable(out, func(i, j int) bool {
		fi, fj := c.IsFavorite(out[i]), c.IsFavorite(out[j])
		if fi != fj {
			return fi
		}
		if out[i].Language != out[j].Language {
			return out[i].Language < out[j].Language
		}
		return strings.ToLower(out[i].String()) < strings.ToLower(out[j].String())
	})
	return out
}

// IsFavorite reports whether v is a favorite.
func (c *Catalog) IsFavorite(v synth.Voice) bool {
	return c.favorites != nil && c.favorites.Has(Key(v))
}

// ToggleFavorite flips the favorite mark of v and reports the new state.
func (c *Catalog) ToggleFavorite(v synth.Voice) (bool, error) {
	if c.favorites == nil {
		return false, errors.New("favorites are not available")
	}
	return c.favorites.Toggle(Key(v))
}

// Search returns the voices matching query, best matches first. Favorites
// keep precedence among equally good matches. An empty query lists
// everything.
func (c *Catalog) Search(ctx context.Context, query string) ([]synth.Voice, error) {
	voices, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	return Search(voices, query), nil
}

// Search ranks voices against query with fuzzy matching.
func Search(voices []synth.Voice, query string) []synth.Voice {
	query = strings.TrimSpace(query)
	if query == "" {
		return voices
	}

	matches := fuzzy.FindFrom(query, searchSource(voices))
	sort.Stable(matches)

	out := make([]synth.Voice, 0, len(matches))
	for _, m := range matches {
		out = append(out, voices[m.Index])
	}
	return out
}

type searchSource []synth.Voice

func (s searchSource) String(i int) string {
	v := s[i]
	return strings.Join([]string{v.Name, v.ID, v.Language, v.Provider}, " ")
}

func (s searchSource) Len() int { return len(s) }

// ParseLanguage validates a BCP 47 language tag.
func ParseLanguage(s string) (language.Tag, error) {
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und, fmt.Errorf("invalid language %q: %w", s, err)
	}
	return tag, nil
}

// FilterLanguage keeps voices whose language shares the base language of
// tag, so "en" matches "en-US" and "en-GB".
func FilterLanguage(voices []synth.Voice, tag language.Tag) []synth.Voice {
	want, _ := tag.Base()
	var out []synth.Voice
	for _, v := range voices {
		vt, err := language.Parse(v.Language)
		if err != nil {
			continue
		}
		if base, _ := vt.Base(); base == want {
			out = append(out, v)
		}
	}
	return out
}
