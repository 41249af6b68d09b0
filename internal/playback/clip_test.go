package playback

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/readalong/internal/audio"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1700000000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testFormat = audio.Format{SampleRate: 8000, Channels: 1}

func silentClip(seconds float64) *audio.Clip {
	frames := int(seconds * float64(testFormat.SampleRate))
	return &audio.Clip{PCM: make([]byte, frames*2), SampleRate: testFormat.SampleRate, Channels: 1}
}

func mockHandle(speed float64) (*audio.Handle, *audio.MockDevice) {
	dev := audio.NewMockDevice(testFormat, speed)
	return audio.NewHandle(func() (audio.Device, error) { return dev, nil }), dev
}

func TestClipOffsetAcrossPause(t *testing.T) {
	tests := []struct {
		name  string
		rate  float64
		first time.Duration
		then  time.Duration
	}{
		{"normal", 1, 2 * time.Second, time.Second},
		{"fast", 1.5, 2 * time.Second, time.Second},
		{"slow", 0.5, 3 * time.Second, 4 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handle, _ := mockHandle(1)
			clock := newManualClock()
			player := NewClipPlayer(handle, clock)
			clip := silentClip(30)

			h, err := player.Play(clip, tt.rate, 0, nil)
			require.NoError(t, err)
			clock.Advance(tt.first)
			offset := h.Stop()
			assert.InDelta(t, tt.first.Seconds()*tt.rate, offset, 1e-9)
			assert.True(t, h.Stopped())

			h2, err := player.Play(clip, tt.rate, offset, nil)
			require.NoError(t, err)
			clock.Advance(tt.then)

			uninterrupted := (tt.first + tt.then).Seconds() * tt.rate
			assert.InDelta(t, uninterrupted, h2.Position(), 1e-9)
			h2.Stop()
		})
	}
}

func TestClipRateChangeReanchors(t *testing.T) {
	handle, _ := mockHandle(1)
	clock := newManualClock()
	player := NewClipPlayer(handle, clock)
	clip := silentClip(30)

	h, err := player.Play(clip, 1, 0, nil)
	require.NoError(t, err)
	clock.Advance(4 * time.Second)
	offset := h.Stop()

	h2, err := player.Play(clip, 2, offset, nil)
	require.NoError(t, err)
	clock.Advance(3 * time.Second)
	assert.InDelta(t, 10.0, h2.Position(), 1e-9)
	h2.Stop()
}

func TestClipPositionCapped(t *testing.T) {
	handle, _ := mockHandle(1)
	clock := newManualClock()
	h, err := NewClipPlayer(handle, clock).Play(silentClip(5), 1, 0, nil)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	assert.InDelta(t, 5.0, h.Position(), 1e-9)
	assert.InDelta(t, 5.0, h.Stop(), 1e-9)
	assert.InDelta(t, 5.0, h.Stop(), 1e-9, "stop is idempotent")
}

func TestClipEndReported(t *testing.T) {
	handle, _ := mockHandle(20)
	var ended atomic.Int32

	_, err := NewClipPlayer(handle, nil).Play(silentClip(0.2), 1, 0, func(*ClipHandle) {
		ended.Add(1)
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return ended.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), ended.Load())
}

func TestClipEndSuppressedAfterStop(t *testing.T) {
	handle, dev := mockHandle(20)
	var ended atomic.Int32

	h, err := NewClipPlayer(handle, nil).Play(silentClip(0.2), 1, 0, func(*ClipHandle) {
		ended.Add(1)
	})
	require.NoError(t, err)
	h.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, ended.Load())
	require.Len(t, dev.Players(), 1)
	assert.True(t, dev.Players()[0].Closed())
}

func TestClipDeviceFailure(t *testing.T) {
	handle := audio.NewHandle(func() (audio.Device, error) { return nil, assert.AnError })
	_, err := NewClipPlayer(handle, nil).Play(silentClip(1), 1, 0, nil)
	require.ErrorIs(t, err, assert.AnError)
}
