// Package openai implements synth.Provider on the OpenAI speech endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/dgnsrekt/readalong/internal/synth"
)

const (
	defaultModel = oai.SpeechModelTTS1
	defaultVoice = "alloy"

	// pcmSampleRate is the fixed rate of the pcm response format.
	pcmSampleRate = 24000
)

var builtinVoices = []string{
	"alloy", "ash", "ballad", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer", "verse",
}

// Option configures a Provider.
type Option func(*Provider)

// WithModel sets the speech model, e.g. "tts-1-hd".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL points the client at another endpoint.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.opts = append(p.opts, option.WithBaseURL(u)) }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.opts = append(p.opts, option.WithHTTPClient(c)) }
}

// WithDefaultVoice sets the voice used when none is requested.
func WithDefaultVoice(v string) Option {
	return func(p *Provider) { p.voice = v }
}

// Provider synthesizes with OpenAI text-to-speech.
type Provider struct {
	client oai.Client
	model  string
	voice  string
	opts   []option.RequestOption
}

var (
	_ synth.Provider    = (*Provider)(nil)
	_ synth.VoiceLister = (*Provider)(nil)
)

// New creates an OpenAI provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: %w", synth.ErrMissingAPIKey)
	}
	p := &Provider{
		model: defaultModel,
		voice: defaultVoice,
	}
	for _, o := range opts {
		o(p)
	}

	// retries are handled by synth.Resilient
	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, p.opts...)
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Name implements synth.Provider.
func (p *Provider) Name() string {
	return "openai"
}

// SampleRate implements synth.Provider.
func (p *Provider) SampleRate() int {
	return pcmSampleRate
}

// Synthesize implements synth.Provider. The payload is raw 24kHz mono PCM.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, synth.ErrEmptyText
	}
	if voice == "" {
		voice = p.voice
	}

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Input:          text,
		Model:          p.model,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return nil, p.wrap(ctx, err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, synth.NewError(p.Name(), synth.CodeUnavailable, "read audio", err)
	}
	if len(audio) == 0 {
		return nil, synth.NewError(p.Name(), synth.CodeBadResponse, "empty audio", nil)
	}
	return audio, nil
}

// Voices implements synth.VoiceLister. The API has no voice listing, so the
// built-in set is returned.
func (p *Provider) Voices(context.Context) ([]synth.Voice, error) {
	out := make([]synth.Voice, 0, len(builtinVoices))
	for _, v := range builtinVoices {
		out = append(out, synth.Voice{ID: v, Name: v, Provider: p.Name()})
	}
	return out, nil
}

func (p *Provider) wrap(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return synth.NewError(p.Name(), synth.CodeForStatus(apiErr.StatusCode), apiErr.Message, err)
	}
	return synth.NewError(p.Name(), synth.CodeUnavailable, "request failed", err)
}
