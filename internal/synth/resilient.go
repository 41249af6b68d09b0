package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/readalong/internal/observe"
)

// ResilientConfig tunes a Resilient provider.
type ResilientConfig struct {
	// RequestsPerMinute caps the request rate. Zero disables limiting.
	RequestsPerMinute int

	// Timeout bounds each attempt. Zero means no per-attempt timeout.
	Timeout time.Duration

	// Retries is the number of extra attempts for retryable errors.
	Retries int

	// RetryDelay is the wait before the first retry; it doubles each time.
	RetryDelay time.Duration

	// MaxChars rejects longer text before calling the provider. Zero disables.
	MaxChars int
}

// DefaultResilientConfig returns conservative defaults for cloud providers.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		RequestsPerMinute: 60,
		Timeout:           30 * time.Second,
		Retries:           2,
		RetryDelay:        500 * time.Millisecond,
		MaxChars:          5000,
	}
}

// Resilient wraps a Provider with rate limiting, timeouts, retries and
// metrics.
type Resilient struct {
	inner   Provider
	cfg     ResilientConfig
	limiter *rate.Limiter
	metrics *observe.Metrics
	logger  *log.Logger
}

var (
	_ Provider    = (*Resilient)(nil)
	_ VoiceLister = (*Resilient)(nil)
)

// NewResilient wraps p. A nil metrics records to the default instruments.
func NewResilient(p Provider, cfg ResilientConfig, metrics *observe.Metrics) *Resilient {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	r := &Resilient{
		inner:   p,
		cfg:     cfg,
		metrics: metrics,
		logger:  log.WithPrefix("synth"),
	}
	if cfg.RequestsPerMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return r
}

// Name implements Provider.
func (r *Resilient) Name() string {
	return r.inner.Name()
}

// SampleRate implements Provider.
func (r *Resilient) SampleRate() int {
	return r.inner.SampleRate()
}

// Synthesize implements Provider.
func (r *Resilient) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if r.cfg.MaxChars > 0 && len([]rune(text)) > r.cfg.MaxChars {
		return nil, NewError(r.Name(), CodeInvalidInput,
			fmt.Sprintf("text too long: %d characters (max %d)", len([]rune(text)), r.cfg.MaxChars), nil)
	}

	delay := r.cfg.RetryDelay
	var lastErr error
	for attempt := 0; attempt <= r.cfg.Retries; attempt++ {
		if attempt > 0 {
			r.logger.Debug("Retrying synthesis", "provider", r.Name(), "attempt", attempt, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
		}

		audio, err := r.attempt(ctx, text, voice)
		if err == nil {
			return audio, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (r *Resilient) attempt(ctx context.Context, text, voice string) ([]byte, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
		}
	}

	callCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	audio, err := r.inner.Synthesize(callCtx, text, voice)
	r.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			err = NewError(r.Name(), CodeTimeout, fmt.Sprintf("no response after %v", r.cfg.Timeout), err)
		}
		r.metrics.RecordProviderRequest(ctx, r.Name(), "error")
		r.metrics.RecordProviderError(ctx, r.Name(), string(CodeOf(err)))
		return nil, err
	}

	r.metrics.RecordProviderRequest(ctx, r.Name(), "ok")
	r.logger.Debug("Synthesized segment", "provider", r.Name(), "chars", len(text), "bytes", len(audio),
		"elapsed", time.Since(start))
	return audio, nil
}

// Voices implements VoiceLister when the wrapped provider does.
func (r *Resilient) Voices(ctx context.Context) ([]Voice, error) {
	lister, ok := r.inner.(VoiceLister)
	if !ok {
		return nil, nil
	}
	return lister.Voices(ctx)
}
