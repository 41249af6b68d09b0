package speech

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
)

// eventBuffer bounds the events held for a slow reader. Boundaries beyond it
// are dropped; the terminal event always has room.
const eventBuffer = 64

type job struct {
	u      Utterance
	events chan Event
}

// Queue speaks utterances in FIFO order on a single worker.
type Queue struct {
	driver Driver
	logger *log.Logger

	mu      sync.Mutex
	pending []*job
	cancel  context.CancelFunc // of the utterance being spoken
	closed  bool

	wake chan struct{}
	done chan struct{}
}

// NewQueue starts a queue on driver. Close stops it.
func NewQueue(driver Driver) *Queue {
	q := &Queue{
		driver: driver,
		logger: log.WithPrefix("speech"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.work()
	return q
}

// Driver returns the driver the queue speaks with.
func (q *Queue) Driver() Driver {
	return q.driver
}

// Enqueue adds u to the queue and returns its event stream, which is closed
// after the terminal event.
func (q *Queue) Enqueue(u Utterance) <-chan Event {
	j := &job{u: u, events: make(chan Event, eventBuffer)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		finish(j, Event{Kind: EventError, Err: ErrQueueClosed})
		return j.events
	}
	q.pending = append(q.pending, j)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.mu.Unlock()
	return j.events
}

// Cancel interrupts the current utterance and drops pending ones. Each of
// them ends with ErrInterrupted.
func (q *Queue) Cancel() {
	q.mu.Lock()
	dropped := q.pending
	q.pending = nil
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Unlock()

	for _, j := range dropped {
		finish(j, Event{Kind: EventError, Err: ErrInterrupted})
	}
}

// Close cancels everything and stops the worker.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.wake)
	q.mu.Unlock()

	q.Cancel()
	<-q.done
}

func (q *Queue) work() {
	defer close(q.done)

	for range q.wake {
		for {
			q.mu.Lock()
			if len(q.pending) == 0 {
				q.mu.Unlock()
				break
			}
			j := q.pending[0]
			q.pending = q.pending[1:]
			ctx, cancel := context.WithCancel(context.Background())
			q.cancel = cancel
			q.mu.Unlock()

			q.speak(ctx, j)

			q.mu.Lock()
			q.cancel = nil
			q.mu.Unlock()
			cancel()
		}
	}
}

func (q *Queue) speak(ctx context.Context, j *job) {
	err := q.driver.Speak(ctx, j.u, func(charIndex int) {
		if ctx.Err() != nil {
			return
		}
		// leave room for the terminal event
		if len(j.events) < cap(j.events)-1 {
			j.events <- Event{Kind: EventBoundary, CharIndex: charIndex}
		}
	})

	switch {
	case ctx.Err() != nil:
		finish(j, Event{Kind: EventError, Err: ErrInterrupted})
	case err != nil:
		q.logger.Debug("Utterance failed", "driver", q.driver.Name(), "error", err)
		finish(j, Event{Kind: EventError, Err: err})
	default:
		finish(j, Event{Kind: EventEnd})
	}
}

func finish(j *job, ev Event) {
	j.events <- ev
	close(j.events)
}
