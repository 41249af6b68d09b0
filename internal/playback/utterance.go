package playback

import (
	"github.com/dgnsrekt/readalong/internal/speech"
)

// UtteranceAdapter submits segments to a speech queue and forwards their
// events to the session.
type UtteranceAdapter struct {
	queue *speech.Queue
	post  func(event)
}

func newUtteranceAdapter(queue *speech.Queue, post func(event)) *UtteranceAdapter {
	return &UtteranceAdapter{queue: queue, post: post}
}

// Speak enqueues u. Boundary offsets are shifted by base so they index the
// whole segment when u starts part way through it. Interruptions caused by
// Stop are not reported.
func (a *UtteranceAdapter) Speak(gen, id uint64, u speech.Utterance, base int) {
	events := a.queue.Enqueue(u)
	go func() {
		for ev := range events {
			switch {
			case ev.Kind == speech.EventError && speech.IsInterrupted(ev.Err):
				continue
			case ev.Kind == speech.EventBoundary:
				ev.CharIndex += base
			}
			a.post(utteranceEvent{gen: gen, id: id, ev: ev})
		}
	}()
}

// Stop interrupts whatever is being spoken.
func (a *UtteranceAdapter) Stop() {
	a.queue.Cancel()
}
