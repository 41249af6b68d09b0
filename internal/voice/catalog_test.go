package voice

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/readalong/internal/favorites"
	"github.com/dgnsrekt/readalong/internal/synth"
)

type staticSource struct {
	voices []synth.Voice
	err    error
	calls  int
}

func (s *staticSource) Voices(context.Context) ([]synth.Voice, error) {
	s.calls++
	return s.voices, s.err
}

var (
	wavenet = synth.Voice{ID: "en-US-Wavenet-D", Name: "en-US-Wavenet-D", Language: "en-US", Provider: "google"}
	british = synth.Voice{ID: "en-GB-Standard-A", Name: "en-GB-Standard-A", Language: "en-GB", Provider: "google"}
	nova    = synth.Voice{ID: "nova", Name: "Nova", Language: "en", Provider: "openai"}
	german  = synth.Voice{ID: "de", Name: "German", Language: "de", Provider: "espeak-ng"}
)

func newFavorites(t *testing.T) *favorites.Store {
	t.Helper()
	s, err := favorites.Open(filepath.Join(t.TempDir(), "favorites.yml"))
	require.NoError(t, err)
	return s
}

func TestListMergesAndSorts(t *testing.T) {
	cloud := &staticSource{voices: []synth.Voice{wavenet, british, wavenet}}
	system := &staticSource{voices: []synth.Voice{german}}
	c := NewCatalog(nil, cloud, system)

	voices, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []synth.Voice{german, british, wavenet}, voices)

	_, err = c.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cloud.calls, "results are cached")

	c.Refresh()
	_, err = c.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cloud.calls)
}

func TestListFavoritesFirst(t *testing.T) {
	favs := newFavorites(t)
	c := NewCatalog(favs, &staticSource{voices: []synth.Voice{wavenet, german, nova}})

	on, err := c.ToggleFavorite(nova)
	require.NoError(t, err)
	require.True(t, on)

	voices, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, nova, voices[0])
	assert.True(t, c.IsFavorite(nova))
	assert.False(t, c.IsFavorite(german))
}

func TestListSkipsFailingSource(t *testing.T) {
	c := NewCatalog(nil,
		&staticSource{err: errors.New("offline")},
		&staticSource{voices: []synth.Voice{german}},
	)
	voices, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []synth.Voice{german}, voices)
}

func TestListAllFail(t *testing.T) {
	offline := errors.New("offline")
	c := NewCatalog(nil, &staticSource{err: offline})

	_, err := c.List(context.Background())
	require.ErrorIs(t, err, ErrNoVoices)
	assert.ErrorIs(t, err, offline)
}

func TestSearch(t *testing.T) {
	voices := []synth.Voice{wavenet, british, nova, german}

	assert.Equal(t, voices, Search(voices, "  "))

	got := Search(voices, "nova")
	require.NotEmpty(t, got)
	assert.Equal(t, nova, got[0])

	got = Search(voices, "GB")
	require.NotEmpty(t, got)
	assert.Equal(t, british, got[0])

	assert.Empty(t, Search(voices, "zzzz"))
}

func TestFilterLanguage(t *testing.T) {
	voices := []synth.Voice{wavenet, british, nova, german, {ID: "x", Language: "not a tag!"}}

	tag, err := ParseLanguage("en")
	require.NoError(t, err)
	assert.Equal(t, []synth.Voice{wavenet, british, nova}, FilterLanguage(voices, tag))

	tag, err = ParseLanguage("de-AT")
	require.NoError(t, err)
	assert.Equal(t, []synth.Voice{german}, FilterLanguage(voices, tag))

	_, err = ParseLanguage("???")
	assert.Error(t, err)
}
