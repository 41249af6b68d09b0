package playback

import "time"

// timerBudget is the sleep timer. It only counts down while a segment is
// actually playing, and running out pauses playback until the user extends
// or clears it.
type timerBudget struct {
	set       bool
	remaining time.Duration
	expired   bool
}

func (t *timerBudget) reset(d time.Duration) {
	if d <= 0 {
		*t = timerBudget{}
		return
	}
	*t = timerBudget{set: true, remaining: d}
}

func (t *timerBudget) extend(d time.Duration) {
	if !t.set {
		t.set = true
		t.remaining = 0
	}
	t.remaining += d
	if t.remaining > 0 {
		t.expired = false
	}
}

// consume takes d off the budget and reports whether this exhausted it.
func (t *timerBudget) consume(d time.Duration) bool {
	if !t.set || t.expired {
		return false
	}
	t.remaining -= d
	if t.remaining > 0 {
		return false
	}
	t.remaining = 0
	t.expired = true
	return true
}
