package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/readalong/internal/chunk"
	"github.com/dgnsrekt/readalong/internal/playback"
	"github.com/dgnsrekt/readalong/utils"
)

var segmentsCmd = &cobra.Command{
	Use:   "segments FILE",
	Short: "Print the segments a document is read in",
	Long: paragraph(fmt.Sprintf("\nExtract the text of a document and print the %s it is read in for the selected mode.",
		keyword("segments"))),
	Example: paragraph("readalong segments notes.md\nreadalong segments --mode utterance paper.pdf"),
	Args:    cobra.ExactArgs(1),
	RunE:    printSegments,
}

func init() {
	segmentsCmd.Flags().StringP("style", "s", styles.AutoStyle, "style name or JSON path")
	segmentsCmd.Flags().UintP("width", "w", 0, "word-wrap at width (set to 0 to fit the terminal)")
	_ = viper.BindPFlag("style", segmentsCmd.Flags().Lookup("style"))
}

func printSegments(cmd *cobra.Command, args []string) error {
	text, err := newExtractor().Extract(cmd.Context(), utils.ExpandPath(args[0]))
	if err != nil {
		return fmt.Errorf("unable to read document: %w", err)
	}

	maxChars := viper.GetInt("chunk.clip_max_chars")
	if mode == playback.ModeUtterance {
		maxChars = viper.GetInt("chunk.utterance_max_chars")
	}
	segments := chunk.Split(text, maxChars)

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	if !isTerminal {
		for _, s := range segments {
			fmt.Println(s)
			fmt.Println()
		}
		return nil
	}

	width, _ := cmd.Flags().GetUint("width")
	if width == 0 {
		width = 80
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = uint(min(w, 120)) //nolint:gosec
		}
	}

	if err := validateStyle(viper.GetString("style")); err != nil {
		return err
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		utils.GlamourStyle(viper.GetString("style")),
		glamour.WithWordWrap(int(width)), //nolint:gosec
	)
	if err != nil {
		return fmt.Errorf("unable to create renderer: %w", err)
	}

	out, err := r.Render(segmentsMarkdown(segments, mode))
	if err != nil {
		return fmt.Errorf("unable to render markdown: %w", err)
	}
	_, err = fmt.Fprint(os.Stdout, out)
	return err
}

// segmentsMarkdown lays segments out as a markdown document, one quoted
// block per segment.
func segmentsMarkdown(segments []string, m playback.Mode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %d segments (%s mode)\n\n", len(segments), m)
	for i, s := range segments {
		fmt.Fprintf(&b, "**%d** · %d chars\n\n", i+1, len([]rune(s)))
		for _, line := range strings.Split(s, "\n") {
			b.WriteString("> ")
			b.WriteString(escapeMarkdown(line))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "*", `\*`, "_", `\_`, "`", "\\`", "#", `\#`, "[", `\[`, "]", `\]`, "<", `\<`,
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
