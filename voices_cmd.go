package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/readalong/internal/synth"
	"github.com/dgnsrekt/readalong/internal/voice"
)

const voicesTimeout = 15 * time.Second

var (
	voicesLanguage      string
	voicesFavoritesOnly bool

	favoriteMark = lipgloss.NewStyle().Foreground(lipgloss.Color("#ECFD65")).Render("★")
	providerCol  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}).Render

	voicesCmd = &cobra.Command{
		Use:   "voices [QUERY]",
		Short: "List the available voices",
		Long: paragraph(fmt.Sprintf("\nList the voices of the configured synthesis providers and of the system speech engine. %s are listed first; a query fuzzy-matches names, ids and languages.",
			keyword("Favorites"))),
		Example: paragraph("readalong voices\nreadalong voices --lang en-GB\nreadalong voices wavenet"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    listVoices,
	}

	favoriteCmd = &cobra.Command{
		Use:   "favorite VOICE",
		Short: "Mark or unmark a voice as a favorite",
		Long:  paragraph("\nToggle the favorite mark of a voice, given as provider:id or as an id that is unique across providers."),
		Args:  cobra.ExactArgs(1),
		RunE:  toggleFavorite,
	}
)

func init() {
	voicesCmd.Flags().StringVarP(&voicesLanguage, "lang", "l", "", "only voices for this BCP 47 language")
	voicesCmd.Flags().BoolVarP(&voicesFavoritesOnly, "favorites", "f", false, "only favorite voices")
	voicesCmd.AddCommand(favoriteCmd)
}

func openCatalog() (*voice.Catalog, func(), error) {
	b, err := newBackends(false)
	if err != nil {
		return nil, nil, err
	}
	return b.catalog, func() { _ = b.close() }, nil
}

func listVoices(cmd *cobra.Command, args []string) error {
	catalog, done, err := openCatalog()
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := context.WithTimeout(cmd.Context(), voicesTimeout)
	defer cancel()

	var query string
	if len(args) > 0 {
		query = args[0]
	}
	voices, err := catalog.Search(ctx, query)
	if err != nil {
		return err
	}

	if voicesLanguage != "" {
		tag, err := voice.ParseLanguage(voicesLanguage)
		if err != nil {
			return err
		}
		voices = voice.FilterLanguage(voices, tag)
	}
	if voicesFavoritesOnly {
		var favs []synth.Voice
		for _, v := range voices {
			if catalog.IsFavorite(v) {
				favs = append(favs, v)
			}
		}
		voices = favs
	}

	if len(voices) == 0 {
		fmt.Fprintln(os.Stderr, "No matching voices.")
		return nil
	}

	width := 0
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = w
		}
	}
	for _, v := range voices {
		fmt.Println(voiceLine(v, catalog.IsFavorite(v), width))
	}
	return nil
}

func voiceLine(v synth.Voice, favorite bool, width int) string {
	mark := " "
	if favorite {
		mark = favoriteMark
	}
	line := fmt.Sprintf("%s %-12s %-10s %s", mark, v.Provider, v.Language, v.ID)
	if v.Name != "" && v.Name != v.ID {
		line += "  " + v.Name
	}
	if v.Gender != "" {
		line += " (" + strings.ToLower(v.Gender) + ")"
	}
	if width > 0 {
		line = runewidth.Truncate(line, width, "…")
	}
	return strings.Replace(line, v.Provider, providerCol(v.Provider), 1)
}

func toggleFavorite(cmd *cobra.Command, args []string) error {
	catalog, done, err := openCatalog()
	if err != nil {
		return err
	}
	defer done()

	ctx, cancel := context.WithTimeout(cmd.Context(), voicesTimeout)
	defer cancel()

	voices, err := catalog.List(ctx)
	if err != nil {
		return err
	}
	v, err := resolveVoice(voices, args[0])
	if err != nil {
		return err
	}

	on, err := catalog.ToggleFavorite(v)
	if err != nil {
		return err
	}
	if on {
		fmt.Printf("%s %s is now a favorite\n", favoriteMark, voice.Key(v))
	} else {
		fmt.Printf("%s is no longer a favorite\n", voice.Key(v))
	}
	return nil
}

// resolveVoice finds a voice by provider:id, or by an id that only one
// provider offers.
func resolveVoice(voices []synth.Voice, ref string) (synth.Voice, error) {
	var matches []synth.Voice
	for _, v := range voices {
		if voice.Key(v) == ref {
			return v, nil
		}
		if v.ID == ref {
			matches = append(matches, v)
		}
	}
	switch len(matches) {
	case 0:
		return synth.Voice{}, fmt.Errorf("unknown voice %q", ref)
	case 1:
		return matches[0], nil
	default:
		keys := make([]string, len(matches))
		for i, v := range matches {
			keys[i] = voice.Key(v)
		}
		return synth.Voice{}, errors.New("ambiguous voice " + ref + ", use one of: " + strings.Join(keys, ", "))
	}
}
