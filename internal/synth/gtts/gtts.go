// Package gtts implements synth.Provider with Google Translate speech through
// gtts-cli, converting its MP3 output to PCM with ffmpeg. It needs no API key.
package gtts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/readalong/internal/synth"
)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 24000

	synthTimeout   = 30 * time.Second
	convertTimeout = 15 * time.Second

	maxMP3Size = 50 * 1024 * 1024
	maxPCMSize = 20 * 1024 * 1024
)

// languages offered as voices. Voice IDs take the form "lang" or "lang:tld",
// where tld selects a regional accent.
var languages = []synth.Voice{
	{ID: "en", Name: "English", Language: "en"},
	{ID: "en:co.uk", Name: "English (UK)", Language: "en-GB"},
	{ID: "en:com.au", Name: "English (Australia)", Language: "en-AU"},
	{ID: "en:co.in", Name: "English (India)", Language: "en-IN"},
	{ID: "de", Name: "German", Language: "de"},
	{ID: "es", Name: "Spanish", Language: "es"},
	{ID: "fr", Name: "French", Language: "fr"},
	{ID: "it", Name: "Italian", Language: "it"},
	{ID: "ja", Name: "Japanese", Language: "ja"},
	{ID: "pt:com.br", Name: "Portuguese (Brazil)", Language: "pt-BR"},
}

// Runner executes a command with stdin and returns its stdout.
type Runner func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

// Config holds gTTS settings.
type Config struct {
	// Language is used when no voice is requested. Defaults to "en".
	Language string

	// Slow selects the slower speaking style.
	Slow bool

	// SampleRate of the PCM produced by ffmpeg. Defaults to 24000.
	SampleRate int

	// Run replaces command execution, for tests.
	Run Runner
}

// Provider synthesizes with gtts-cli and ffmpeg.
type Provider struct {
	language   string
	slow       bool
	sampleRate int
	run        Runner
}

var (
	_ synth.Provider    = (*Provider)(nil)
	_ synth.VoiceLister = (*Provider)(nil)
)

// New creates a gTTS provider.
func New(cfg Config) *Provider {
	if cfg.Language == "" {
		cfg.Language = defaultLanguage
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = defaultSampleRate
	}
	if cfg.Run == nil {
		cfg.Run = runCommand
	}
	return &Provider{
		language:   cfg.Language,
		slow:       cfg.Slow,
		sampleRate: cfg.SampleRate,
		run:        cfg.Run,
	}
}

// Name implements synth.Provider.
func (p *Provider) Name() string {
	return "gtts"
}

// SampleRate implements synth.Provider.
func (p *Provider) SampleRate() int {
	return p.sampleRate
}

// Synthesize implements synth.Provider.
// Process: text → gtts-cli → MP3 → ffmpeg → PCM
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, synth.ErrEmptyText
	}

	lang, tld := p.language, ""
	if voice != "" {
		lang, tld, _ = strings.Cut(voice, ":")
	}

	args := []string{text, "-l", lang}
	if tld != "" {
		args = append(args, "-t", tld)
	}
	if p.slow {
		args = append(args, "--slow")
	}
	args = append(args, "-o", "-")

	mp3Ctx, cancel := context.WithTimeout(ctx, synthTimeout)
	defer cancel()
	mp3, err := p.run(mp3Ctx, nil, "gtts-cli", args...)
	if err != nil {
		return nil, p.commandError(ctx, "gtts-cli", err)
	}
	if len(mp3) == 0 {
		return nil, synth.NewError(p.Name(), synth.CodeBadResponse, "gtts-cli produced no MP3 output", nil)
	}
	if len(mp3) > maxMP3Size {
		return nil, synth.NewError(p.Name(), synth.CodeBadResponse,
			fmt.Sprintf("MP3 output too large: %d bytes (max %d)", len(mp3), maxMP3Size), nil)
	}

	pcmCtx, cancel := context.WithTimeout(ctx, convertTimeout)
	defer cancel()
	pcm, err := p.run(pcmCtx, mp3, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", strconv.Itoa(p.sampleRate),
		"-ac", "1",
		"pipe:1")
	if err != nil {
		return nil, p.commandError(ctx, "ffmpeg", err)
	}
	if len(pcm) == 0 {
		return nil, synth.NewError(p.Name(), synth.CodeBadResponse, "ffmpeg produced no PCM output", nil)
	}
	if len(pcm) > maxPCMSize {
		return nil, synth.NewError(p.Name(), synth.CodeBadResponse,
			fmt.Sprintf("PCM output too large: %d bytes (max %d)", len(pcm), maxPCMSize), nil)
	}
	return pcm, nil
}

func (p *Provider) commandError(ctx context.Context, name string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return synth.NewError(p.Name(), synth.CodeUnavailable, name+" failed", err)
}

// Voices implements synth.VoiceLister.
func (p *Provider) Voices(context.Context) ([]synth.Voice, error) {
	out := make([]synth.Voice, len(languages))
	for i, v := range languages {
		v.Provider = p.Name()
		out[i] = v
	}
	return out, nil
}

// Validate checks that gtts-cli and ffmpeg are installed.
func Validate() error {
	if _, err := exec.LookPath("gtts-cli"); err != nil {
		return fmt.Errorf("gtts-cli not found in PATH: %w\n\nInstall with: pip install gtts", err)
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH: %w\n\nInstall ffmpeg for audio conversion", err)
	}
	return nil
}

func runCommand(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)

	// interrupt first so the tool can clean up, then kill
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 100 * time.Millisecond

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s timeout: %w", name, ctx.Err())
		}
		return nil, fmt.Errorf("%w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
