// Package synth defines the speech synthesis providers that turn a segment of
// text into an audio payload, and the wrappers that make them dependable:
// rate limiting, retries, timeouts and failover.
package synth

import "context"

// Provider synthesizes speech for one segment at a time.
type Provider interface {
	// Name identifies the provider in logs, metrics and voice listings.
	Name() string

	// SampleRate is the rate of raw PCM payloads, used as the decode hint.
	// Providers returning WAV may report zero.
	SampleRate() int

	// Synthesize returns the audio for text spoken by voice. An empty voice
	// selects the provider default.
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// VoiceLister is implemented by providers that can enumerate their voices.
type VoiceLister interface {
	Voices(ctx context.Context) ([]Voice, error)
}

// Voice describes one selectable voice.
type Voice struct {
	ID       string
	Name     string
	Language string
	Gender   string
	Provider string
}

// String returns a human readable label for the voice.
func (v Voice) String() string {
	label := v.Name
	if label == "" {
		label = v.ID
	}
	if v.Language != "" {
		label += " (" + v.Language + ")"
	}
	return label
}
