package speech

import (
	"context"
	"sync"
	"time"
	"unicode"
)

// ScriptedDriver is a Driver that speaks silently, reporting a boundary at
// every word and taking PerChar for each rune of text. It is used in tests and
// in headless runs without a speech command.
type ScriptedDriver struct {
	PerChar time.Duration

	// Fail, if set, is returned after the first boundary.
	Fail error

	mu     sync.Mutex
	spoken []Utterance
}

var _ Driver = (*ScriptedDriver)(nil)

// Name implements Driver.
func (d *ScriptedDriver) Name() string {
	return "scripted"
}

// Speak implements Driver.
func (d *ScriptedDriver) Speak(ctx context.Context, u Utterance, onBoundary func(int)) error {
	d.mu.Lock()
	d.spoken = append(d.spoken, u)
	d.mu.Unlock()

	rate := u.Rate
	if rate <= 0 {
		rate = 1
	}
	step := time.Duration(float64(d.PerChar) / rate)

	prevSpace := true
	for i, r := range []rune(u.Text) {
		space := unicode.IsSpace(r)
		if prevSpace && !space {
			onBoundary(i)
			if d.Fail != nil {
				return d.Fail
			}
		}
		prevSpace = space

		if step > 0 {
			select {
			case <-time.After(step):
			case <-ctx.Done():
				return ctx.Err()
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// Spoken returns every utterance started so far.
func (d *ScriptedDriver) Spoken() []Utterance {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Utterance, len(d.spoken))
	copy(out, d.spoken)
	return out
}
