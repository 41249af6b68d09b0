// Package google implements synth.Provider on the Google Cloud Text-to-Speech
// REST API.
package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dgnsrekt/readalong/internal/synth"
)

const (
	defaultBaseURL    = "https://texttospeech.googleapis.com/v1"
	defaultVoice      = "en-US-Standard-C"
	defaultSampleRate = 24000
)

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL points the provider at another endpoint, such as a test server.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithDefaultVoice sets the voice used when none is requested.
func WithDefaultVoice(v string) Option {
	return func(p *Provider) { p.voice = v }
}

// WithSampleRate sets the requested output rate.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.rate = rate }
}

// Provider synthesizes with Google Cloud TTS.
type Provider struct {
	apiKey  string
	baseURL string
	voice   string
	rate    int
	client  *http.Client
}

var (
	_ synth.Provider    = (*Provider)(nil)
	_ synth.VoiceLister = (*Provider)(nil)
)

// New creates a Google provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google: %w", synth.ErrMissingAPIKey)
	}
	p := &Provider{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		voice:   defaultVoice,
		rate:    defaultSampleRate,
		client:  &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements synth.Provider.
func (p *Provider) Name() string {
	return "google"
}

// SampleRate implements synth.Provider.
func (p *Provider) SampleRate() int {
	return p.rate
}

type synthesizeRequest struct {
	Input       synthesisInput `json:"input"`
	Voice       voiceSelection `json:"voice"`
	AudioConfig audioConfig    `json:"audioConfig"`
}

type synthesisInput struct {
	Text string `json:"text"`
}

type voiceSelection struct {
	LanguageCode string `json:"languageCode"`
	Name         string `json:"name,omitempty"`
}

type audioConfig struct {
	AudioEncoding   string `json:"audioEncoding"`
	SampleRateHertz int    `json:"sampleRateHertz,omitempty"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Synthesize implements synth.Provider. LINEAR16 payloads arrive with a WAV
// header.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, synth.ErrEmptyText
	}
	if voice == "" {
		voice = p.voice
	}

	body, err := json.Marshal(synthesizeRequest{
		Input:       synthesisInput{Text: text},
		Voice:       voiceSelection{LanguageCode: LanguageOf(voice), Name: voice},
		AudioConfig: audioConfig{AudioEncoding: "LINEAR16", SampleRateHertz: p.rate},
	})
	if err != nil {
		return nil, fmt.Errorf("google: encode request: %w", err)
	}

	var resp synthesizeResponse
	if err := p.do(ctx, http.MethodPost, "/text:synthesize", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, synth.NewError(p.Name(), synth.CodeBadResponse, "invalid audioContent", err)
	}
	if len(audio) == 0 {
		return nil, synth.NewError(p.Name(), synth.CodeBadResponse, "empty audioContent", nil)
	}
	return audio, nil
}

type voicesResponse struct {
	Voices []struct {
		LanguageCodes []string `json:"languageCodes"`
		Name          string   `json:"name"`
		SSMLGender    string   `json:"ssmlGender"`
	} `json:"voices"`
}

// Voices implements synth.VoiceLister.
func (p *Provider) Voices(ctx context.Context) ([]synth.Voice, error) {
	var resp voicesResponse
	if err := p.do(ctx, http.MethodGet, "/voices", nil, &resp); err != nil {
		return nil, err
	}

	out := make([]synth.Voice, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		lang := LanguageOf(v.Name)
		if len(v.LanguageCodes) > 0 {
			lang = v.LanguageCodes[0]
		}
		out = append(out, synth.Voice{
			ID:       v.Name,
			Name:     v.Name,
			Language: lang,
			Gender:   strings.ToLower(v.SSMLGender),
			Provider: p.Name(),
		})
	}
	return out, nil
}

func (p *Provider) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	u := p.baseURL + path + "?key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("google: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return synth.NewError(p.Name(), synth.CodeUnavailable, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		if json.NewDecoder(resp.Body).Decode(&er) == nil && er.Error.Message != "" {
			msg = er.Error.Message
		}
		return synth.NewError(p.Name(), synth.CodeForStatus(resp.StatusCode), msg, nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return synth.NewError(p.Name(), synth.CodeBadResponse, "decode response", err)
	}
	return nil
}

// LanguageOf derives the language code from a voice name such as
// "en-US-Wavenet-D". Names without one default to en-US.
func LanguageOf(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) >= 2 && len(parts[0]) >= 2 && len(parts[0]) <= 3 {
		return parts[0] + "-" + parts[1]
	}
	return "en-US"
}
