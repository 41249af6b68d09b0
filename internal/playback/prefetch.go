package playback

import "time"

// prefetch requests the next clip right away and the one after it once delay
// has passed, provided the generation is unchanged and playback still wants
// it. Must run on the control loop.
func (s *Session) prefetch(index int) {
	s.stopPrefetch()

	gen := s.gen.Load()
	if next := index + 1; next < len(s.segments) {
		if s.cache.Fill(next, gen) {
			s.logger.Debug("Prefetching", "index", next)
		}
	}

	later := index + 2
	if later >= len(s.segments) {
		return
	}
	s.prefetchTimer = time.AfterFunc(s.cfg.PrefetchDelay, func() {
		s.post(prefetchEvent{gen: gen, index: later})
	})
}

func (s *Session) stopPrefetch() {
	if s.prefetchTimer != nil {
		s.prefetchTimer.Stop()
		s.prefetchTimer = nil
	}
}

func (s *Session) handlePrefetch(ev prefetchEvent) {
	if !s.playing || s.mode != ModeClip || ev.index >= len(s.segments) {
		return
	}
	if s.cache.Fill(ev.index, ev.gen) {
		s.logger.Debug("Prefetching", "index", ev.index)
	}
}
