// Package elevenlabs implements synth.Provider on the ElevenLabs stream-input
// WebSocket API. Each segment is sent as one message and the streamed PCM
// chunks are collected into a single payload.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/dgnsrekt/readalong/internal/synth"
)

const (
	defaultWSBase    = "wss://api.elevenlabs.io/v1"
	defaultHTTPBase  = "https://api.elevenlabs.io/v1"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_22050"
	defaultVoice     = "21m00Tcm4TlvDq8ikWAM"

	// readLimit bounds one WebSocket message; audio chunks are base64 PCM.
	readLimit = 4 << 20
)

// Option configures a Provider.
type Option func(*Provider)

// WithModel sets the model ID.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat sets a pcm_<rate> output format.
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.outputFormat = format }
}

// WithBaseURLs points the provider at other endpoints, such as a test server.
func WithBaseURLs(wsBase, httpBase string) Option {
	return func(p *Provider) {
		p.wsBase = strings.TrimRight(wsBase, "/")
		p.httpBase = strings.TrimRight(httpBase, "/")
	}
}

// WithDefaultVoice sets the voice used when none is requested.
func WithDefaultVoice(v string) Option {
	return func(p *Provider) { p.voice = v }
}

// Provider synthesizes with ElevenLabs.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	voice        string
	wsBase       string
	httpBase     string
	httpClient   *http.Client
}

var (
	_ synth.Provider    = (*Provider)(nil)
	_ synth.VoiceLister = (*Provider)(nil)
)

// New creates an ElevenLabs provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("elevenlabs: %w", synth.ErrMissingAPIKey)
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		voice:        defaultVoice,
		wsBase:       defaultWSBase,
		httpBase:     defaultHTTPBase,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	if p.SampleRate() == 0 {
		return nil, fmt.Errorf("elevenlabs: output format %q is not pcm", p.outputFormat)
	}
	return p, nil
}

// Name implements synth.Provider.
func (p *Provider) Name() string {
	return "elevenlabs"
}

// SampleRate implements synth.Provider. It is parsed from the output format.
func (p *Provider) SampleRate() int {
	rate, ok := strings.CutPrefix(p.outputFormat, "pcm_")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(rate)
	if err != nil {
		return 0
	}
	return n
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// boiMessage opens the stream.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

type textMessage struct {
	Text                 string `json:"text"`
	TryTriggerGeneration bool   `json:"try_trigger_generation,omitempty"`
}

type audioResponse struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize implements synth.Provider.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, synth.ErrEmptyText
	}
	if voice == "" {
		voice = p.voice
	}

	conn, resp, err := websocket.Dial(ctx, p.streamURL(voice), nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		code := synth.CodeUnavailable
		if resp != nil {
			code = synth.CodeForStatus(resp.StatusCode)
		}
		return nil, synth.NewError(p.Name(), code, "dial", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	messages := []any{
		boiMessage{
			Text:          " ", // the stream requires a non-empty first text value
			VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
			XiAPIKey:      p.apiKey,
			OutputFormat:  p.outputFormat,
		},
		textMessage{Text: text + " ", TryTriggerGeneration: true},
		textMessage{Text: ""}, // end of stream
	}
	for _, m := range messages {
		payload, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("elevenlabs: encode message: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			return nil, p.wrap(ctx, "send", err)
		}
	}

	var pcm bytes.Buffer
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return nil, p.wrap(ctx, "read", err)
		}

		var r audioResponse
		if err := json.Unmarshal(msg, &r); err != nil {
			continue
		}
		if r.Error != "" {
			return nil, synth.NewError(p.Name(), synth.CodeFailure, r.Error, nil)
		}
		if r.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(r.Audio)
			if err != nil {
				return nil, synth.NewError(p.Name(), synth.CodeBadResponse, "invalid audio chunk", err)
			}
			pcm.Write(chunk)
		}
		if r.IsFinal {
			conn.Close(websocket.StatusNormalClosure, "done")
			break
		}
	}

	if pcm.Len() == 0 {
		return nil, synth.NewError(p.Name(), synth.CodeBadResponse, "no audio received", nil)
	}
	return pcm.Bytes(), nil
}

func (p *Provider) streamURL(voice string) string {
	return fmt.Sprintf("%s/text-to-speech/%s/stream-input?model_id=%s&output_format=%s",
		p.wsBase, voice, p.model, p.outputFormat)
}

func (p *Provider) wrap(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return synth.NewError(p.Name(), synth.CodeUnavailable, op, err)
}

type voicesResponse struct {
	Voices []struct {
		VoiceID string            `json:"voice_id"`
		Name    string            `json:"name"`
		Labels  map[string]string `json:"labels"`
	} `json:"voices"`
}

// Voices implements synth.VoiceLister.
func (p *Provider) Voices(ctx context.Context) ([]synth.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.httpBase+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, p.wrap(ctx, "list voices", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, synth.NewError(p.Name(), synth.CodeForStatus(resp.StatusCode),
			fmt.Sprintf("list voices: unexpected status %d", resp.StatusCode), nil)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, synth.NewError(p.Name(), synth.CodeBadResponse, "list voices decode", err)
	}

	out := make([]synth.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		out = append(out, synth.Voice{
			ID:       v.VoiceID,
			Name:     v.Name,
			Language: v.Labels["language"],
			Gender:   v.Labels["gender"],
			Provider: p.Name(),
		})
	}
	return out, nil
}
