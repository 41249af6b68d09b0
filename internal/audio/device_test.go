package audio

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestHandleLazyOpen(t *testing.T) {
	opens := 0
	dev := NewMockDevice(Format{SampleRate: 8000, Channels: 1}, 1)
	h := NewHandle(func() (Device, error) {
		opens++
		return dev, nil
	})

	if h.Acquired() {
		t.Fatal("handle should not open before first use")
	}
	for i := 0; i < 3; i++ {
		got, err := h.Acquire()
		if err != nil {
			t.Fatalf("acquire: %v", err)
		}
		if got != dev {
			t.Fatal("acquire returned a different device")
		}
	}
	if opens != 1 {
		t.Errorf("opened %d times, want 1", opens)
	}

	if err := h.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if !dev.Closed() {
		t.Error("release should close the device")
	}
	if _, err := h.Acquire(); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("acquire after release = %v, want ErrDeviceClosed", err)
	}
}

func TestHandleRetriesFailedOpen(t *testing.T) {
	fail := true
	h := NewHandle(func() (Device, error) {
		if fail {
			return nil, errors.New("busy")
		}
		return NewMockDevice(Format{SampleRate: 8000, Channels: 1}, 1), nil
	})

	if _, err := h.Acquire(); err == nil {
		t.Fatal("expected first open to fail")
	}
	fail = false
	if _, err := h.Acquire(); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
}

func TestMockPlayerDrains(t *testing.T) {
	dev := NewMockDevice(Format{SampleRate: 8000, Channels: 1}, 20)
	data := make([]byte, 1600) // 100ms at 8kHz mono
	p := dev.NewPlayer(bytes.NewReader(data))

	p.Play()
	deadline := time.Now().Add(2 * time.Second)
	for p.IsPlaying() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.IsPlaying() {
		t.Fatal("player did not finish")
	}

	mp := dev.Players()[0]
	if mp.Consumed() != int64(len(data)) {
		t.Errorf("consumed %d bytes, want %d", mp.Consumed(), len(data))
	}
}

func TestMockPlayerPause(t *testing.T) {
	dev := NewMockDevice(Format{SampleRate: 8000, Channels: 1}, 1)
	p := dev.NewPlayer(bytes.NewReader(make([]byte, 16000)))

	p.Play()
	time.Sleep(20 * time.Millisecond)
	p.Pause()
	time.Sleep(20 * time.Millisecond)

	mp := dev.Players()[0]
	before := mp.Consumed()
	time.Sleep(30 * time.Millisecond)
	if after := mp.Consumed(); after != before {
		t.Errorf("consumed moved from %d to %d while paused", before, after)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !mp.Closed() || p.IsPlaying() {
		t.Error("closed player should not be playing")
	}
}
