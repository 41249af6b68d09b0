package synth

import (
	"context"
	"fmt"

	"github.com/dgnsrekt/readalong/internal/audio"
)

// Render synthesizes text with p and decodes the payload into a clip. When p
// fails over, the payload is decoded at the rate of the provider that served
// it.
func Render(ctx context.Context, p Provider, text, voice string) (*audio.Clip, error) {
	var (
		raw  []byte
		hint int
		err  error
	)
	if f, ok := p.(*Fallback); ok {
		var served Provider
		raw, served, err = f.SynthesizeFrom(ctx, text, voice)
		if served != nil {
			hint = served.SampleRate()
		}
	} else {
		raw, err = p.Synthesize(ctx, text, voice)
		hint = p.SampleRate()
	}
	if err != nil {
		return nil, err
	}

	clip, err := audio.Decode(raw, hint)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s audio: %w", p.Name(), err)
	}
	return clip, nil
}
