package synth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// Fallback tries its providers in order until one succeeds. Providers that
// fail with a fatal error are skipped for the rest of the process.
//
// All providers are expected to honour the same voice identifiers or to fall
// back to a default voice when given one they do not know.
type Fallback struct {
	providers []Provider

	mu       sync.Mutex
	disabled map[int]bool
	last     int
}

var _ Provider = (*Fallback)(nil)

// NewFallback returns a provider that fails over across ps in order.
func NewFallback(ps ...Provider) (*Fallback, error) {
	if len(ps) == 0 {
		return nil, ErrNoProvider
	}
	return &Fallback{providers: ps, disabled: make(map[int]bool)}, nil
}

// Name implements Provider. It names the provider that served last.
func (f *Fallback) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.providers[f.last].Name()
}

// SampleRate implements Provider. It reports the rate of the provider that
// served last, which is the one whose audio the caller is about to decode.
func (f *Fallback) SampleRate() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.providers[f.last].SampleRate()
}

// Synthesize implements Provider.
func (f *Fallback) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	audio, _, err := f.SynthesizeFrom(ctx, text, voice)
	return audio, err
}

// SynthesizeFrom is Synthesize that also returns the provider that served
// the request.
func (f *Fallback) SynthesizeFrom(ctx context.Context, text, voice string) ([]byte, Provider, error) {
	var errs []error
	for i, p := range f.providers {
		f.mu.Lock()
		skip := f.disabled[i]
		f.mu.Unlock()
		if skip {
			continue
		}

		audio, err := p.Synthesize(ctx, text, voice)
		if err == nil {
			f.mu.Lock()
			f.last = i
			f.mu.Unlock()
			return audio, p, nil
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}

		var se *Error
		if errors.As(err, &se) && se.Fatal() {
			log.Warn("Disabling synthesis provider", "provider", p.Name(), "error", err)
			f.mu.Lock()
			f.disabled[i] = true
			f.mu.Unlock()
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	if len(errs) == 0 {
		return nil, nil, ErrNoProvider
	}
	return nil, nil, errors.Join(errs...)
}

// Voices merges the voices of every provider that can list them.
func (f *Fallback) Voices(ctx context.Context) ([]Voice, error) {
	var out []Voice
	var errs []error
	for _, p := range f.providers {
		lister, ok := p.(VoiceLister)
		if !ok {
			continue
		}
		vs, err := lister.Voices(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, vs...)
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
