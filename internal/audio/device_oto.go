//go:build !nocgo
// +build !nocgo

package audio

import (
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

const readyTimeout = 5 * time.Second

// otoDevice plays through the system audio output via oto.
type otoDevice struct {
	ctx    *oto.Context
	format Format
}

// OpenOto opens the system audio output in the given format.
func OpenOto(format Format) (Device, error) {
	if err := validateFormat(format); err != nil {
		return nil, err
	}

	options := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	}

	switch runtime.GOOS {
	case "darwin":
		// CoreAudio underruns with small buffers
		options.BufferSize = 100 * time.Millisecond
	case "windows":
		options.BufferSize = 80 * time.Millisecond
	default:
		options.BufferSize = 50 * time.Millisecond
	}

	log.Debug("Initializing audio context",
		"sample_rate", options.SampleRate,
		"channels", options.ChannelCount,
		"buffer_size", options.BufferSize)

	ctx, ready, err := oto.NewContext(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}

	select {
	case <-ready:
	case <-time.After(readyTimeout):
		// oto contexts cannot be closed; it is dropped for the GC
		return nil, fmt.Errorf("audio context initialization timeout after %v", readyTimeout)
	}

	return &otoDevice{ctx: ctx, format: format}, nil
}

func (d *otoDevice) NewPlayer(r io.Reader) Player {
	return d.ctx.NewPlayer(r)
}

func (d *otoDevice) Format() Format {
	return d.format
}

func (d *otoDevice) Close() error {
	return d.ctx.Suspend()
}

func validateFormat(f Format) error {
	if f.SampleRate < 8000 || f.SampleRate > 192000 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("invalid channel count: %d (must be 1 or 2)", f.Channels)
	}
	return nil
}
