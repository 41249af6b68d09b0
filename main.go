// Package main provides the entry point for the readalong CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/readalong/internal/document"
	"github.com/dgnsrekt/readalong/internal/observe"
	"github.com/dgnsrekt/readalong/internal/playback"
	"github.com/dgnsrekt/readalong/ui"
	"github.com/dgnsrekt/readalong/utils"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile  string
	mode        playback.Mode
	rate        float64
	sleepTimer  time.Duration
	startIndex  int
	headless    bool
	watch       bool
	debug       bool
	metricsAddr string

	envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

	rootCmd = &cobra.Command{
		Use:   "readalong [FILE]",
		Short: "Read documents aloud in the terminal",
		Long: paragraph(
			fmt.Sprintf("\nRead markdown, text, HTML and PDF documents %s, with word by word highlighting and a sleep timer.", keyword("aloud")),
		),
		Example: paragraph("readalong notes.md\nreadalong --mode utterance --rate 1.25 paper.pdf\nreadalong --headless --timer 20m book.txt"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.ExactArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	debug = viper.GetBool("debug")
	setLogLevel(debug)

	var err error
	mode, err = playback.ParseMode(viper.GetString("mode"))
	if err != nil {
		return err
	}

	rate = viper.GetFloat64("rate")
	if rate < playback.MinRate || rate > playback.MaxRate {
		return fmt.Errorf("rate must be between %.1f and %.1f, got %.2f", playback.MinRate, playback.MaxRate, rate)
	}

	sleepTimer = viper.GetDuration("timer")
	if sleepTimer < 0 {
		return fmt.Errorf("timer must not be negative, got %s", sleepTimer)
	}

	startIndex = viper.GetInt("from")
	if startIndex < 0 {
		return fmt.Errorf("start segment must not be negative, got %d", startIndex)
	}

	watch = viper.GetBool("watch")
	metricsAddr = viper.GetString("metrics_addr")

	// Without a terminal there is nothing to draw on.
	headless = viper.GetBool("headless")
	if !headless && !cmd.Flags().Changed("headless") && !term.IsTerminal(int(os.Stdout.Fd())) {
		log.Debug("Stdout is not a terminal, running headless")
		headless = true
	}

	return validateChunking()
}

func validateChunking() error {
	for _, key := range []string{"chunk.clip_max_chars", "chunk.utterance_max_chars"} {
		if n := viper.GetInt(key); n < 0 {
			return fmt.Errorf("%s must not be negative, got %d", key, n)
		}
	}
	if kb := viper.GetInt("cache.keep_behind"); kb < -1 {
		return fmt.Errorf("cache.keep_behind must be -1 or more, got %d", kb)
	}
	return nil
}

func execute(cmd *cobra.Command, args []string) error {
	path := utils.ExpandPath(args[0])
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("unable to open file: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		shutdown, err := observe.InitProvider()
		if err != nil {
			return fmt.Errorf("unable to start metrics: %w", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
		go func() {
			if err := observe.Serve(ctx, metricsAddr); err != nil {
				log.Error("Metrics server failed", "addr", metricsAddr, "error", err)
			}
		}()
	}

	extractor := newExtractor()
	text, err := extractor.Extract(ctx, path)
	if err != nil {
		return fmt.Errorf("unable to read document: %w", err)
	}
	log.Info("Document loaded", "path", path, "kind", document.KindOf(path), "runes", len([]rune(text)))

	b, err := newBackends(true)
	if err != nil {
		return err
	}

	session, err := playback.New(b.sessionConfig())
	if err != nil {
		_ = b.close()
		return fmt.Errorf("unable to create playback session: %w", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- session.Run(ctx) }()
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("Playback session did not close cleanly", "error", err)
		}
	}()

	if err := session.Load(text); err != nil {
		return err
	}
	if sleepTimer > 0 {
		if err := session.SetTimer(sleepTimer); err != nil {
			return err
		}
	}

	if headless {
		return runHeadless(ctx, session, runErr)
	}
	return runTUI(ctx, session, b, extractor, path)
}

// runHeadless plays the document once, logging progress, until it finishes,
// the sleep timer expires or ctx is cancelled.
func runHeadless(ctx context.Context, session *playback.Session, runErr <-chan error) error {
	enableStderrLog()

	if snap, err := session.Snapshot(); err != nil {
		return err
	} else if snap.Total == 0 {
		log.Warn("Nothing to read")
		return nil
	}
	if err := session.Start(startIndex); err != nil {
		return err
	}

	last := -1
	for {
		select {
		case <-ctx.Done():
			log.Info("Interrupted")
			return nil
		case err := <-runErr:
			return err
		case snap := <-session.Updates():
			if snap.Index != last && snap.State == playback.StatePlaying {
				last = snap.Index
				log.Info("Reading", "segment", fmt.Sprintf("%d/%d", snap.Index+1, snap.Total), "mode", snap.Mode, "voice", snap.Voice)
				log.Debug("Segment text", "text", snap.Segment())
			}
			switch {
			case snap.Finished:
				log.Info("Finished reading")
				return nil
			case snap.TimerExpired:
				log.Info("Sleep timer expired", "segment", snap.Index+1)
				return nil
			case snap.State == playback.StateError:
				return errors.New(snap.Message)
			}
		}
	}
}

func runTUI(ctx context.Context, session *playback.Session, b *backends, extractor *document.Extractor, path string) error {
	// Read environment to get display settings
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	cfg.Path = path
	cfg.Width = viper.GetUint("width")
	cfg.EnableMouse = viper.GetBool("mouse")
	cfg.StartIndex = startIndex

	deps := ui.Deps{
		Player: session,
		Voices: b.catalog,
		Reload: func(ctx context.Context) (string, error) {
			return extractor.Extract(ctx, path)
		},
	}

	if watch {
		changes := make(chan struct{}, 1)
		go func() {
			err := document.Watch(ctx, path, func() {
				select {
				case changes <- struct{}{}:
				default:
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("Could not watch document", "path", path, "error", err)
			}
		}()
		deps.Changes = changes
	}

	p := ui.NewProgram(ctx, cfg, deps)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func newExtractor() *document.Extractor {
	return &document.Extractor{OCRLanguage: viper.GetString("ocr.language")}
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	flags.StringP("mode", "m", "clip", "playback backend: clip (synthesis provider) or utterance (system speech)")
	flags.StringP("provider", "p", "gtts", "synthesis provider: google, openai, elevenlabs, gtts, piper or mock")
	flags.StringSlice("fallback", nil, "providers to fail over to, in order")
	flags.String("voice", "", "provider voice")
	flags.String("speech-voice", "", "system speech voice")
	flags.String("speech-driver", "auto", "system speech command: auto, say, espeak-ng, espeak or spd-say")
	flags.Bool("debug", false, "log debug output")

	rootCmd.Flags().Float64P("rate", "r", 1.0, "playback rate (0.5 to 2.0)")
	rootCmd.Flags().DurationP("timer", "t", 0, "sleep timer, e.g. 20m (0 disables)")
	rootCmd.Flags().Int("from", 0, "segment to start from")
	rootCmd.Flags().Bool("headless", false, "play without the TUI, logging to stderr")
	rootCmd.Flags().Bool("watch", true, "reload the document when it changes (TUI-mode only)")
	rootCmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	rootCmd.Flags().UintP("width", "w", 0, "word-wrap at width (set to 0 to fit the terminal)")
	rootCmd.Flags().Bool("mouse", false, "enable mouse wheel (TUI-mode only)")
	_ = rootCmd.Flags().MarkHidden("mouse")

	// Config bindings
	_ = viper.BindPFlag("mode", flags.Lookup("mode"))
	_ = viper.BindPFlag("provider.name", flags.Lookup("provider"))
	_ = viper.BindPFlag("provider.fallback", flags.Lookup("fallback"))
	_ = viper.BindPFlag("voice", flags.Lookup("voice"))
	_ = viper.BindPFlag("speech.voice", flags.Lookup("speech-voice"))
	_ = viper.BindPFlag("speech.driver", flags.Lookup("speech-driver"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("rate", rootCmd.Flags().Lookup("rate"))
	_ = viper.BindPFlag("timer", rootCmd.Flags().Lookup("timer"))
	_ = viper.BindPFlag("from", rootCmd.Flags().Lookup("from"))
	_ = viper.BindPFlag("headless", rootCmd.Flags().Lookup("headless"))
	_ = viper.BindPFlag("watch", rootCmd.Flags().Lookup("watch"))
	_ = viper.BindPFlag("metrics_addr", rootCmd.Flags().Lookup("metrics-addr"))
	_ = viper.BindPFlag("width", rootCmd.Flags().Lookup("width"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))

	setDefaults()

	rootCmd.AddCommand(configCmd, manCmd, voicesCmd, segmentsCmd)
}

func setDefaults() {
	d := playback.DefaultConfig()

	viper.SetDefault("mode", "clip")
	viper.SetDefault("rate", 1.0)
	viper.SetDefault("timer", time.Duration(0))
	viper.SetDefault("from", 0)
	viper.SetDefault("watch", true)
	viper.SetDefault("width", 0)
	viper.SetDefault("style", "auto")

	viper.SetDefault("provider.name", "gtts")
	viper.SetDefault("provider.fallback", []string{})
	viper.SetDefault("provider.requests_per_minute", 60)
	viper.SetDefault("provider.timeout", 30*time.Second)
	viper.SetDefault("provider.retries", 2)
	viper.SetDefault("provider.retry_delay", 500*time.Millisecond)

	viper.SetDefault("google.voice", "")
	viper.SetDefault("google.sample_rate", 24000)
	viper.SetDefault("openai.model", "")
	viper.SetDefault("openai.voice", "")
	viper.SetDefault("openai.base_url", "")
	viper.SetDefault("elevenlabs.model", "")
	viper.SetDefault("elevenlabs.voice", "")
	viper.SetDefault("gtts.language", "en")
	viper.SetDefault("gtts.slow", false)
	viper.SetDefault("piper.model", "")
	viper.SetDefault("piper.config", "")
	viper.SetDefault("piper.speaker", "")
	viper.SetDefault("piper.length_scale", 1.0)

	viper.SetDefault("speech.driver", "auto")
	viper.SetDefault("speech.voice", "")

	viper.SetDefault("audio.sample_rate", 24000)
	viper.SetDefault("audio.channels", 1)

	viper.SetDefault("chunk.clip_max_chars", d.ClipMaxChars)
	viper.SetDefault("chunk.utterance_max_chars", d.UtteranceMaxChars)
	viper.SetDefault("prefetch.delay", d.PrefetchDelay)
	viper.SetDefault("highlight.interval", d.HighlightInterval)

	viper.SetDefault("cache.keep_behind", d.KeepBehind)
	viper.SetDefault("cache.compress_evicted", d.CompressEvicted)
	viper.SetDefault("cache.compression_level", 3)
	viper.SetDefault("cache.concurrency", d.Concurrency)

	viper.SetDefault("ocr.language", "eng")
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "readalong")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "readalong")}, dirs...)
	}

	if c := os.Getenv("READALONG_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("readalong")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("readalong")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "readalong.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

// validateStyle checks if the style is a default style, if not, checks that
// the custom style exists.
func validateStyle(style string) error {
	if style != styles.AutoStyle && styles.DefaultStyles[style] == nil {
		style = utils.ExpandPath(style)
		if _, err := os.Stat(style); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("specified style does not exist: %s", style)
		} else if err != nil {
			return fmt.Errorf("unable to stat file: %w", err)
		}
	}
	return nil
}
