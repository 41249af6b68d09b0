package audio

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// MockDevice is a Device that consumes audio without producing sound. Players
// drain their reader at Speed times real time, so tests can shorten playback.
type MockDevice struct {
	format Format
	speed  float64

	mu      sync.Mutex
	players []*MockPlayer
	closed  atomic.Bool
}

// NewMockDevice returns a mock device. A speed of zero or less means real time.
func NewMockDevice(format Format, speed float64) *MockDevice {
	if speed <= 0 {
		speed = 1
	}
	return &MockDevice{format: format, speed: speed}
}

// NewPlayer implements Device.
func (d *MockDevice) NewPlayer(r io.Reader) Player {
	p := &MockPlayer{
		reader: r,
		rate:   float64(d.format.BytesPerSecond()) * d.speed,
		volume: 1,
		wake:   make(chan struct{}, 1),
	}
	d.mu.Lock()
	d.players = append(d.players, p)
	d.mu.Unlock()
	return p
}

// Format implements Device.
func (d *MockDevice) Format() Format {
	return d.format
}

// Close implements Device.
func (d *MockDevice) Close() error {
	d.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (d *MockDevice) Closed() bool {
	return d.closed.Load()
}

// Players returns every player created so far.
func (d *MockDevice) Players() []*MockPlayer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*MockPlayer, len(d.players))
	copy(out, d.players)
	return out
}

// MockPlayer simulates playback of one stream.
type MockPlayer struct {
	reader io.Reader
	rate   float64 // bytes per second

	mu      sync.Mutex
	playing bool
	started bool
	closed  bool
	volume  float64

	consumed atomic.Int64
	wake     chan struct{}
}

// Play implements Player.
func (p *MockPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.playing = true
	if !p.started {
		p.started = true
		go p.drain()
	}
	p.signal()
}

// Pause implements Player.
func (p *MockPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

// IsPlaying implements Player.
func (p *MockPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// SetVolume implements Player.
func (p *MockPlayer) SetVolume(volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
}

// Volume returns the last volume set.
func (p *MockPlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Close implements Player.
func (p *MockPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.playing = false
	p.signal()
	return nil
}

// Closed reports whether Close was called.
func (p *MockPlayer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Consumed returns the number of bytes read so far.
func (p *MockPlayer) Consumed() int64 {
	return p.consumed.Load()
}

func (p *MockPlayer) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *MockPlayer) drain() {
	const tick = 5 * time.Millisecond
	chunk := int(p.rate * tick.Seconds())
	if chunk < 2 {
		chunk = 2
	}
	buf := make([]byte, chunk)

	for {
		p.mu.Lock()
		closed, playing := p.closed, p.playing
		p.mu.Unlock()

		if closed {
			return
		}
		if !playing {
			<-p.wake
			continue
		}

		n, err := p.reader.Read(buf)
		p.consumed.Add(int64(n))
		if err != nil {
			p.mu.Lock()
			p.playing = false
			p.mu.Unlock()
			return
		}
		time.Sleep(tick)
	}
}
