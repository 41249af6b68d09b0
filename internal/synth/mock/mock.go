// Package mock provides a synth.Provider test double that produces silent
// PCM whose length follows the text, with controllable latency and failures.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/readalong/internal/synth"
)

// Call records one Synthesize invocation.
type Call struct {
	Text  string
	Voice string
}

// Provider is a mock synthesis provider. The zero value is usable and
// produces 8kHz audio at 15 characters per second.
type Provider struct {
	// Rate is the sample rate of produced PCM. Default 8000.
	Rate int

	// CharsPerSecond sets the spoken length of the produced audio. Default 15.
	CharsPerSecond float64

	// Delay is waited before returning, honouring cancellation.
	Delay time.Duration

	// Err, if set, is returned by every call.
	Err error

	// FailFirst makes the first N calls fail with a retryable error.
	FailFirst int

	// VoiceList is returned by Voices.
	VoiceList []synth.Voice

	mu    sync.Mutex
	calls []Call
	gate  chan struct{}
}

var (
	_ synth.Provider    = (*Provider)(nil)
	_ synth.VoiceLister = (*Provider)(nil)
)

// Name implements synth.Provider.
func (p *Provider) Name() string {
	return "mock"
}

// SampleRate implements synth.Provider.
func (p *Provider) SampleRate() int {
	if p.Rate <= 0 {
		return 8000
	}
	return p.Rate
}

// Hold makes calls block until Release is called.
func (p *Provider) Hold() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gate == nil {
		p.gate = make(chan struct{})
	}
}

// Release unblocks held calls.
func (p *Provider) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gate != nil {
		close(p.gate)
		p.gate = nil
	}
}

// Synthesize implements synth.Provider.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{Text: text, Voice: voice})
	n := len(p.calls)
	gate := p.gate
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.Delay > 0 {
		select {
		case <-time.After(p.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if p.Err != nil {
		return nil, p.Err
	}
	if n <= p.FailFirst {
		return nil, synth.NewError(p.Name(), synth.CodeUnavailable, "simulated outage", nil)
	}
	if strings.TrimSpace(text) == "" {
		return nil, synth.ErrEmptyText
	}

	cps := p.CharsPerSecond
	if cps <= 0 {
		cps = 15
	}
	seconds := float64(len([]rune(text))) / cps
	frames := int(seconds * float64(p.SampleRate()))
	if frames < 1 {
		frames = 1
	}
	return make([]byte, frames*2), nil
}

// Voices implements synth.VoiceLister.
func (p *Provider) Voices(context.Context) ([]synth.Voice, error) {
	return p.VoiceList, nil
}

// Calls returns every call made so far.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns the number of calls made so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
