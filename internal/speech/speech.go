// Package speech speaks text through the platform's own speech engine. A
// Queue runs utterances one at a time on a Driver and reports word or
// sentence boundaries as they are reached.
package speech

import (
	"context"
	"errors"
)

var (
	// ErrInterrupted is reported for utterances stopped by Cancel.
	ErrInterrupted = errors.New("utterance interrupted")

	// ErrNoDriver is returned when no speech command is available.
	ErrNoDriver = errors.New("no speech driver available")

	// ErrQueueClosed is reported for utterances enqueued after Close.
	ErrQueueClosed = errors.New("speech queue closed")
)

// DefaultWordsPerMinute is the speaking rate at a rate multiplier of 1.
const DefaultWordsPerMinute = 175

// Utterance is one request to speak.
type Utterance struct {
	Text  string
	Voice string
	Rate  float64
}

// WordsPerMinute converts the rate multiplier to a speaking rate.
func (u Utterance) WordsPerMinute() int {
	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	return int(DefaultWordsPerMinute*rate + 0.5)
}

// EventKind distinguishes utterance events.
type EventKind int

const (
	EventBoundary EventKind = iota
	EventEnd
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventBoundary:
		return "boundary"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event reports progress of an utterance. Every utterance produces zero or
// more boundaries followed by exactly one End or Error.
type Event struct {
	Kind EventKind

	// CharIndex is the rune offset into the utterance text for boundaries.
	CharIndex int

	Err error
}

// Driver speaks a single utterance, blocking until it is done. It calls
// onBoundary with the rune offset of each unit of speech as it starts.
type Driver interface {
	Name() string
	Speak(ctx context.Context, u Utterance, onBoundary func(charIndex int)) error
}

// IsInterrupted reports whether err is the benign result of stopping speech.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled)
}
