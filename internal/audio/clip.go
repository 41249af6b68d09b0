package audio

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-audio/wav"
)

// DefaultSampleRate is assumed for raw PCM payloads that come without a hint.
const DefaultSampleRate = 24000

var (
	// ErrEmptyAudio is returned when a payload holds no samples.
	ErrEmptyAudio = errors.New("audio payload is empty")

	// ErrUnsupportedFormat is returned for WAV payloads we cannot convert.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Clip is a decoded, ready to play block of 16-bit little-endian PCM.
// Samples are interleaved when there is more than one channel.
type Clip struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames in the clip.
func (c *Clip) Frames() int {
	if c == nil || c.Channels <= 0 {
		return 0
	}
	return len(c.PCM) / (2 * c.Channels)
}

// Seconds returns the clip duration in seconds.
func (c *Clip) Seconds() float64 {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return float64(c.Frames()) / float64(c.SampleRate)
}

// Duration returns the clip duration.
func (c *Clip) Duration() time.Duration {
	return time.Duration(c.Seconds() * float64(time.Second))
}

// Size returns the clip size in bytes.
func (c *Clip) Size() int {
	if c == nil {
		return 0
	}
	return len(c.PCM)
}

// Sanitize trims a raw 16-bit payload to a whole number of samples. Providers
// that stream base64 chunks occasionally hand back an odd byte count.
func Sanitize(raw []byte) []byte {
	if len(raw)%2 != 0 {
		return raw[:len(raw)-1]
	}
	return raw
}

// Decode turns a synthesis payload into a Clip. RIFF/WAVE payloads are parsed
// for their own format; anything else is taken as raw mono s16le PCM at
// sampleRateHint.
func Decode(raw []byte, sampleRateHint int) (*Clip, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyAudio
	}
	if isWAV(raw) {
		return decodeWAV(raw)
	}

	if sampleRateHint <= 0 {
		sampleRateHint = DefaultSampleRate
	}
	pcm := Sanitize(raw)
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}
	return &Clip{PCM: pcm, SampleRate: sampleRateHint, Channels: 1}, nil
}

func isWAV(raw []byte) bool {
	return len(raw) >= 12 && string(raw[0:4]) == "RIFF" && string(raw[8:12]) == "WAVE"
}

func decodeWAV(raw []byte) (*Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(raw))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav header", ErrUnsupportedFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read wav samples: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, ErrEmptyAudio
	}

	shift := int(dec.BitDepth) - 16
	pcm := make([]byte, 0, len(buf.Data)*2)
	for _, v := range buf.Data {
		var s int
		switch {
		case dec.BitDepth == 8:
			s = (v - 128) << 8
		case shift > 0:
			s = v >> shift
		default:
			s = v
		}
		pcm = appendSample(pcm, clamp16(s))
	}

	return &Clip{
		PCM:        pcm,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

func clamp16(v int) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

func appendSample(b []byte, s int16) []byte {
	return append(b, byte(uint16(s)), byte(uint16(s)>>8))
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
}
