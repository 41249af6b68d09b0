package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/dgnsrekt/readalong/internal/audio"
)

// Clock reports the current time. Tests substitute a manual clock to check
// offsets exactly.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// endPoll is how often a handle checks whether its clip finished.
const endPoll = 10 * time.Millisecond

// ClipPlayer plays decoded clips on a lazily acquired audio device.
type ClipPlayer struct {
	device *audio.Handle
	clock  Clock
}

// NewClipPlayer returns a player for device. A nil clock uses wall time.
func NewClipPlayer(device *audio.Handle, clock Clock) *ClipPlayer {
	if clock == nil {
		clock = systemClock{}
	}
	return &ClipPlayer{device: device, clock: clock}
}

// Play starts clip offset seconds in, advancing at rate. onEnd runs on a
// background goroutine when the clip plays out, unless the handle was stopped
// first.
func (p *ClipPlayer) Play(clip *audio.Clip, rate, offset float64, onEnd func(*ClipHandle)) (*ClipHandle, error) {
	dev, err := p.device.Acquire()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire audio device: %w", err)
	}
	if rate <= 0 {
		rate = 1
	}

	src := audio.NewSource(clip, dev.Format(), offset, rate)
	h := &ClipHandle{
		clip:     clip,
		rate:     rate,
		prior:    offset,
		duration: clip.Seconds(),
		clock:    p.clock,
		source:   src,
		player:   dev.NewPlayer(src),
		done:     make(chan struct{}),
	}
	h.start = p.clock.Now()
	h.player.Play()

	go h.watch(onEnd)
	return h, nil
}

// ClipHandle controls one playing clip.
type ClipHandle struct {
	clip     *audio.Clip
	rate     float64
	prior    float64 // clip seconds already played before this handle
	duration float64
	clock    Clock
	source   *audio.Source
	player   audio.Player

	mu      sync.Mutex
	start   time.Time
	stopped bool
	frozen  float64
	done    chan struct{}
}

// Rate returns the rate the handle plays at.
func (h *ClipHandle) Rate() float64 { return h.rate }

// Duration returns the clip length in seconds.
func (h *ClipHandle) Duration() float64 { return h.duration }

// Position returns how far into the clip playback is, in clip seconds.
func (h *ClipHandle) Position() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return h.frozen
	}
	return h.positionLocked()
}

func (h *ClipHandle) positionLocked() float64 {
	pos := h.prior + h.clock.Now().Sub(h.start).Seconds()*h.rate
	if pos > h.duration {
		return h.duration
	}
	return pos
}

// Stop halts playback and returns the position it stopped at. Further calls
// return the same position.
func (h *ClipHandle) Stop() float64 {
	h.mu.Lock()
	if h.stopped {
		defer h.mu.Unlock()
		return h.frozen
	}
	h.frozen = h.positionLocked()
	h.stopped = true
	close(h.done)
	h.mu.Unlock()

	h.player.Close()
	return h.frozen
}

// Stopped reports whether the handle was stopped or played out.
func (h *ClipHandle) Stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopped
}

func (h *ClipHandle) watch(onEnd func(*ClipHandle)) {
	ticker := time.NewTicker(endPoll)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
		}

		if !h.source.Done() || h.player.IsPlaying() {
			continue
		}

		h.mu.Lock()
		if h.stopped {
			h.mu.Unlock()
			return
		}
		h.stopped = true
		h.frozen = h.duration
		close(h.done)
		h.mu.Unlock()

		h.player.Close()
		if onEnd != nil {
			onEnd(h)
		}
		return
	}
}
