package audio

import (
	"io"
	"sync"
)

// Source streams a Clip in a device format, resampling by linear
// interpolation. The playback rate scales the step through the clip, so a
// rate of 2 plays twice as fast (and higher).
type Source struct {
	clip *Clip
	out  Format
	step float64 // clip frames per output frame

	mu   sync.Mutex
	pos  float64 // clip frame position
	done bool
}

// NewSource returns a reader over clip in format out, starting offset seconds
// into the clip and advancing at rate.
func NewSource(clip *Clip, out Format, offset, rate float64) *Source {
	if rate <= 0 {
		rate = 1
	}
	if offset < 0 {
		offset = 0
	}
	s := &Source{
		clip: clip,
		out:  out,
		step: float64(clip.SampleRate) * rate / float64(out.SampleRate),
		pos:  offset * float64(clip.SampleRate),
	}
	if s.pos >= float64(clip.Frames()) {
		s.done = true
	}
	return s
}

// Read implements io.Reader.
func (s *Source) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return 0, io.EOF
	}

	frameBytes := 2 * s.out.Channels
	frames := s.clip.Frames()
	n := 0
	for n+frameBytes <= len(p) {
		if s.pos >= float64(frames) {
			s.done = true
			break
		}
		for ch := 0; ch < s.out.Channels; ch++ {
			v := s.sample(ch)
			p[n] = byte(uint16(v))
			p[n+1] = byte(uint16(v) >> 8)
			n += 2
		}
		s.pos += s.step
	}

	if n == 0 && s.done {
		return 0, io.EOF
	}
	return n, nil
}

// Done reports whether every frame has been handed out.
func (s *Source) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Position returns the clip position in seconds.
func (s *Source) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos / float64(s.clip.SampleRate)
}

// sample returns the interpolated value for output channel ch at the current
// position.
func (s *Source) sample(ch int) int16 {
	i := int(s.pos)
	frac := s.pos - float64(i)

	a := s.frame(i, ch)
	if frac == 0 || i+1 >= s.clip.Frames() {
		return a
	}
	b := s.frame(i+1, ch)
	return clamp16(int(float64(a) + (float64(b)-float64(a))*frac))
}

// frame maps clip channels onto output channel ch. Mono is duplicated and
// wider clips are averaged down.
func (s *Source) frame(i, ch int) int16 {
	in := s.clip.Channels
	base := i * in
	switch {
	case in == s.out.Channels:
		return sampleAt(s.clip.PCM, base+ch)
	case in == 1:
		return sampleAt(s.clip.PCM, base)
	default:
		sum := 0
		for c := 0; c < in; c++ {
			sum += int(sampleAt(s.clip.PCM, base+c))
		}
		return clamp16(sum / in)
	}
}
