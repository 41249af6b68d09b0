package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/readalong/internal/audio"
	"github.com/dgnsrekt/readalong/internal/favorites"
	"github.com/dgnsrekt/readalong/internal/observe"
	"github.com/dgnsrekt/readalong/internal/playback"
	"github.com/dgnsrekt/readalong/internal/speech"
	"github.com/dgnsrekt/readalong/internal/synth"
	"github.com/dgnsrekt/readalong/internal/synth/elevenlabs"
	"github.com/dgnsrekt/readalong/internal/synth/google"
	"github.com/dgnsrekt/readalong/internal/synth/gtts"
	"github.com/dgnsrekt/readalong/internal/synth/mock"
	"github.com/dgnsrekt/readalong/internal/synth/openai"
	"github.com/dgnsrekt/readalong/internal/synth/piper"
	"github.com/dgnsrekt/readalong/internal/voice"
	"github.com/dgnsrekt/readalong/utils"
)

// providerNames lists the synthesis providers known to the CLI.
var providerNames = []string{"google", "openai", "elevenlabs", "gtts", "piper", "mock"}

// backends holds everything a playback session and the voice catalog need.
// Either backend may be missing; the session reports it when that mode is
// used.
type backends struct {
	provider  synth.Provider
	device    *audio.Handle
	speech    *speech.Queue
	driver    *speech.CommandDriver
	favorites *favorites.Store
	catalog   *voice.Catalog
	metrics   *observe.Metrics
}

// newBackends creates the available backends. With strict set, the backend
// for the selected mode must be available.
func newBackends(strict bool) (*backends, error) {
	b := &backends{metrics: observe.DefaultMetrics()}

	provider, perr := buildProvider()
	if perr == nil {
		b.provider = provider
		b.device = audio.NewHandle(func() (audio.Device, error) {
			return audio.OpenOto(audio.Format{
				SampleRate: viper.GetInt("audio.sample_rate"),
				Channels:   viper.GetInt("audio.channels"),
			})
		})
	} else {
		log.Warn("Synthesis provider unavailable", "error", perr)
	}

	driver, derr := speech.NewCommandDriver(viper.GetString("speech.driver"))
	if derr == nil {
		b.driver = driver
		b.speech = speech.NewQueue(driver)
		log.Debug("Using speech command", "command", driver.Name())
	} else {
		log.Debug("System speech unavailable", "error", derr)
	}

	switch {
	case !strict:
	case mode == playback.ModeClip && perr != nil:
		_ = b.close()
		return nil, fmt.Errorf("clip mode needs a synthesis provider: %w", perr)
	case mode == playback.ModeUtterance && derr != nil:
		_ = b.close()
		return nil, fmt.Errorf("utterance mode needs system speech: %w", derr)
	}

	if err := b.openCatalog(); err != nil {
		log.Warn("Favorites unavailable", "error", err)
	}
	return b, nil
}

// openCatalog opens the favorites store and builds the voice catalog over
// whichever backends are available.
func (b *backends) openCatalog() error {
	var sources []synth.VoiceLister
	if vl, ok := b.provider.(synth.VoiceLister); ok {
		sources = append(sources, vl)
	}
	if b.driver != nil {
		sources = append(sources, b.driver)
	}

	path, err := favorites.DefaultPath()
	if err == nil {
		b.favorites, err = favorites.Open(path)
	}
	b.catalog = voice.NewCatalog(b.favorites, sources...)
	return err
}

func (b *backends) sessionConfig() playback.Config {
	cfg := playback.DefaultConfig()
	cfg.Mode = mode
	cfg.Provider = b.provider
	cfg.Device = b.device
	cfg.Speech = b.speech
	cfg.Voice = viper.GetString("voice")
	cfg.SpeechVoice = viper.GetString("speech.voice")
	cfg.Rate = rate
	cfg.ClipMaxChars = viper.GetInt("chunk.clip_max_chars")
	cfg.UtteranceMaxChars = viper.GetInt("chunk.utterance_max_chars")
	cfg.PrefetchDelay = viper.GetDuration("prefetch.delay")
	cfg.HighlightInterval = viper.GetDuration("highlight.interval")
	cfg.KeepBehind = viper.GetInt("cache.keep_behind")
	cfg.CompressEvicted = viper.GetBool("cache.compress_evicted")
	cfg.CompressionLevel = viper.GetInt("cache.compression_level")
	cfg.Concurrency = viper.GetInt("cache.concurrency")
	cfg.Metrics = b.metrics
	return cfg
}

// close releases what was opened before a session took ownership.
func (b *backends) close() error {
	if b.speech != nil {
		b.speech.Close()
	}
	if b.device != nil {
		return b.device.Release()
	}
	return nil
}

// buildProvider creates the configured provider and its fallbacks, each
// wrapped with rate limiting, retries and timeouts. Fallbacks that cannot be
// created are skipped.
func buildProvider() (synth.Provider, error) {
	primary := strings.ToLower(strings.TrimSpace(viper.GetString("provider.name")))
	names := append([]string{primary}, viper.GetStringSlice("provider.fallback")...)

	rc := synth.DefaultResilientConfig()
	rc.RequestsPerMinute = viper.GetInt("provider.requests_per_minute")
	rc.Timeout = viper.GetDuration("provider.timeout")
	rc.Retries = viper.GetInt("provider.retries")
	rc.RetryDelay = viper.GetDuration("provider.retry_delay")

	var (
		providers []synth.Provider
		errs      []error
	)
	seen := make(map[string]bool)
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		p, err := newProvider(name)
		if err != nil {
			if name == primary {
				return nil, err
			}
			log.Warn("Skipping fallback provider", "provider", name, "error", err)
			errs = append(errs, err)
			continue
		}
		providers = append(providers, synth.NewResilient(p, rc, observe.DefaultMetrics()))
	}

	switch len(providers) {
	case 0:
		return nil, errors.Join(append([]error{synth.ErrNoProvider}, errs...)...)
	case 1:
		return providers[0], nil
	default:
		return synth.NewFallback(providers...)
	}
}

func newProvider(name string) (synth.Provider, error) {
	switch name {
	case "google":
		var opts []google.Option
		if v := viper.GetString("google.voice"); v != "" {
			opts = append(opts, google.WithDefaultVoice(v))
		}
		if r := viper.GetInt("google.sample_rate"); r > 0 {
			opts = append(opts, google.WithSampleRate(r))
		}
		return google.New(apiKey("google", "GOOGLE_API_KEY"), opts...)

	case "openai":
		var opts []openai.Option
		if m := viper.GetString("openai.model"); m != "" {
			opts = append(opts, openai.WithModel(m))
		}
		if v := viper.GetString("openai.voice"); v != "" {
			opts = append(opts, openai.WithDefaultVoice(v))
		}
		if u := viper.GetString("openai.base_url"); u != "" {
			opts = append(opts, openai.WithBaseURL(u))
		}
		return openai.New(apiKey("openai", "OPENAI_API_KEY"), opts...)

	case "elevenlabs":
		var opts []elevenlabs.Option
		if m := viper.GetString("elevenlabs.model"); m != "" {
			opts = append(opts, elevenlabs.WithModel(m))
		}
		if v := viper.GetString("elevenlabs.voice"); v != "" {
			opts = append(opts, elevenlabs.WithDefaultVoice(v))
		}
		return elevenlabs.New(apiKey("elevenlabs", "ELEVENLABS_API_KEY"), opts...)

	case "gtts":
		if err := gtts.Validate(); err != nil {
			return nil, err
		}
		return gtts.New(gtts.Config{
			Language: viper.GetString("gtts.language"),
			Slow:     viper.GetBool("gtts.slow"),
		}), nil

	case "piper":
		if err := piper.Validate(); err != nil {
			return nil, err
		}
		return piper.New(piper.Config{
			ModelPath:   utils.ExpandPath(viper.GetString("piper.model")),
			ConfigPath:  utils.ExpandPath(viper.GetString("piper.config")),
			Speaker:     viper.GetString("piper.speaker"),
			LengthScale: viper.GetFloat64("piper.length_scale"),
		})

	case "mock":
		return &mock.Provider{}, nil

	default:
		return nil, fmt.Errorf("%w: unknown provider %q (want one of %s)", synth.ErrNoProvider, name, strings.Join(providerNames, ", "))
	}
}

// apiKey reads <name>.api_key from the config, falling back to the
// provider's conventional environment variable.
func apiKey(name, envVar string) string {
	if k := viper.GetString(name + ".api_key"); k != "" {
		return k
	}
	return os.Getenv(envVar)
}
