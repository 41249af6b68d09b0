package playback

import (
	"math"
	"time"
)

// Estimate returns how many of length characters have been spoken after
// elapsed of duration seconds, assuming an even speaking pace.
func Estimate(elapsed, duration float64, length int) int {
	if length <= 0 {
		return 0
	}
	if duration <= 0 || elapsed >= duration {
		return length
	}
	if elapsed <= 0 {
		return 0
	}
	n := int(math.Floor(elapsed / duration * float64(length)))
	if n > length {
		return length
	}
	return n
}

// runEstimator posts highlight positions for h until the generation changes,
// the handle stops or the clip ends, when it pins the highlight to length.
func (s *Session) runEstimator(gen uint64, h *ClipHandle, length int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case <-ticker.C:
		case <-s.quit:
			return
		}

		if s.gen.Load() != gen || h.Stopped() {
			return
		}

		pos := h.Position()
		offset := Estimate(pos, h.Duration(), length)
		if offset != last {
			last = offset
			s.post(highlightEvent{gen: gen, handle: h, offset: offset})
		}
		if pos >= h.Duration() {
			return
		}
	}
}
