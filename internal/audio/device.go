package audio

import (
	"errors"
	"io"
	"sync"

	"github.com/charmbracelet/log"
)

// ErrDeviceClosed is returned when a released handle is used again.
var ErrDeviceClosed = errors.New("audio device closed")

// Format describes the PCM layout a device consumes. Devices always take
// 16-bit little-endian samples.
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the byte rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// Device is an opened audio output.
type Device interface {
	// NewPlayer creates a player that pulls PCM in the device format from r.
	NewPlayer(r io.Reader) Player

	// Format returns the PCM layout the device expects.
	Format() Format

	// Close releases the device.
	Close() error
}

// Player plays one stream on a device.
type Player interface {
	Play()
	Pause()
	IsPlaying() bool
	SetVolume(volume float64)
	Close() error
}

// OpenFunc opens a device.
type OpenFunc func() (Device, error)

// Handle owns a process-scoped device that is opened on first use. Most audio
// backends allow a single context per process, so the handle is created once
// and passed to whoever needs to play audio.
type Handle struct {
	mu     sync.Mutex
	open   OpenFunc
	dev    Device
	closed bool
}

// NewHandle returns a handle that opens its device with open on first use.
func NewHandle(open OpenFunc) *Handle {
	return &Handle{open: open}
}

// Acquire returns the device, opening it if needed. A failed open is retried
// on the next call.
func (h *Handle) Acquire() (Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrDeviceClosed
	}
	if h.dev != nil {
		return h.dev, nil
	}

	dev, err := h.open()
	if err != nil {
		return nil, err
	}
	log.Debug("Audio device acquired", "rate", dev.Format().SampleRate, "channels", dev.Format().Channels)
	h.dev = dev
	return dev, nil
}

// Acquired reports whether the device has been opened.
func (h *Handle) Acquired() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dev != nil
}

// Release closes the device if it was opened. The handle cannot be used
// afterwards.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	if h.dev == nil {
		return nil
	}
	err := h.dev.Close()
	h.dev = nil
	return err
}
