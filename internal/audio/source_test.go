package audio

import (
	"io"
	"testing"
)

func monoClip(samples ...int16) *Clip {
	pcm := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		pcm = appendSample(pcm, s)
	}
	return &Clip{PCM: pcm, SampleRate: 8000, Channels: 1}
}

func readAll(t *testing.T, r io.Reader) []int16 {
	t.Helper()
	raw, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = sampleAt(raw, i)
	}
	return out
}

func TestSourcePassThrough(t *testing.T) {
	clip := monoClip(1, 2, 3, 4)
	src := NewSource(clip, Format{SampleRate: 8000, Channels: 1}, 0, 1)

	got := readAll(t, src)
	want := []int16{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
	if !src.Done() {
		t.Error("source should be done after EOF")
	}
}

func TestSourceMonoToStereo(t *testing.T) {
	clip := monoClip(10, 20)
	got := readAll(t, NewSource(clip, Format{SampleRate: 8000, Channels: 2}, 0, 1))

	want := []int16{10, 10, 20, 20}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSourceStereoToMono(t *testing.T) {
	clip := monoClip(10, 30, -4, 4)
	clip.Channels = 2
	got := readAll(t, NewSource(clip, Format{SampleRate: 8000, Channels: 1}, 0, 1))

	want := []int16{20, 0}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSourceUpsampleInterpolates(t *testing.T) {
	clip := monoClip(0, 100)
	got := readAll(t, NewSource(clip, Format{SampleRate: 16000, Channels: 1}, 0, 1))

	// positions 0, 0.5, 1, 1.5 (the last frame is held)
	want := []int16{0, 50, 100, 100}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSourceRate(t *testing.T) {
	clip := monoClip(make([]int16, 800)...)

	tests := []struct {
		name   string
		rate   float64
		offset float64
		want   int
	}{
		{name: "normal", rate: 1, want: 800},
		{name: "double speed", rate: 2, want: 400},
		{name: "half speed", rate: 0.5, want: 1600},
		{name: "offset", rate: 1, offset: 0.05, want: 400},
		{name: "offset past end", rate: 1, offset: 1, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewSource(clip, Format{SampleRate: 8000, Channels: 1}, tt.offset, tt.rate)
			if got := len(readAll(t, src)); got != tt.want {
				t.Errorf("frames = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSourceSmallBuffer(t *testing.T) {
	src := NewSource(monoClip(1, 2), Format{SampleRate: 8000, Channels: 2}, 0, 1)

	// a buffer smaller than one output frame yields nothing until it grows
	n, err := src.Read(make([]byte, 3))
	if n != 0 || err != nil {
		t.Fatalf("Read = %d, %v; want 0, nil", n, err)
	}
	if src.Position() != 0 {
		t.Errorf("position moved to %v", src.Position())
	}
}
