// Package piper implements synth.Provider with the Piper offline speech
// engine. Piper writes raw 16-bit mono PCM at the model's sample rate.
package piper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dgnsrekt/readalong/internal/synth"
)

const (
	defaultSampleRate = 22050
	synthTimeout      = 30 * time.Second

	maxTextSize  = 5000
	maxAudioSize = 10 * 1024 * 1024
)

// ErrNoModel is returned when no voice model is configured.
var ErrNoModel = errors.New("piper model path is required")

// Runner executes a command with stdin and returns its stdout.
type Runner func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error)

// Config holds Piper settings.
type Config struct {
	// ModelPath is the .onnx voice model.
	ModelPath string

	// ConfigPath defaults to the model path with ".json" appended, which is
	// how Piper voices are distributed.
	ConfigPath string

	// Speaker is the default speaker of multi-speaker models.
	Speaker string

	// LengthScale stretches phoneme length; 1 is the model's own pace.
	LengthScale float64

	// Run replaces command execution, for tests.
	Run Runner
}

// modelConfig is the subset of the model's JSON config we read.
type modelConfig struct {
	Audio struct {
		SampleRate int `json:"sample_rate"`
	} `json:"audio"`
	Language struct {
		Code string `json:"code"`
	} `json:"language"`
	Dataset      string         `json:"dataset"`
	SpeakerIDMap map[string]int `json:"speaker_id_map"`
}

// Provider synthesizes with the piper command.
type Provider struct {
	modelPath   string
	configPath  string
	speaker     string
	lengthScale float64
	model       modelConfig
	run         Runner
}

var (
	_ synth.Provider    = (*Provider)(nil)
	_ synth.VoiceLister = (*Provider)(nil)
)

// New creates a Piper provider. The model must exist; its JSON config is
// optional and supplies the sample rate and speakers.
func New(cfg Config) (*Provider, error) {
	if cfg.ModelPath == "" {
		return nil, ErrNoModel
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}
	if cfg.ConfigPath == "" {
		cfg.ConfigPath = cfg.ModelPath + ".json"
	}
	if cfg.LengthScale <= 0 {
		cfg.LengthScale = 1
	}
	if cfg.Run == nil {
		cfg.Run = runCommand
	}

	p := &Provider{
		modelPath:   cfg.ModelPath,
		configPath:  cfg.ConfigPath,
		speaker:     cfg.Speaker,
		lengthScale: cfg.LengthScale,
		run:         cfg.Run,
	}
	if b, err := os.ReadFile(cfg.ConfigPath); err == nil {
		if err := json.Unmarshal(b, &p.model); err != nil {
			return nil, fmt.Errorf("invalid model config %s: %w", cfg.ConfigPath, err)
		}
	}
	return p, nil
}

// Name implements synth.Provider.
func (p *Provider) Name() string {
	return "piper"
}

// SampleRate implements synth.Provider.
func (p *Provider) SampleRate() int {
	if p.model.Audio.SampleRate > 0 {
		return p.model.Audio.SampleRate
	}
	return defaultSampleRate
}

// Synthesize implements synth.Provider. voice selects a speaker by name or
// numeric id.
func (p *Provider) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, synth.ErrEmptyText
	}
	if len(text) > maxTextSize {
		return nil, synth.NewError(p.Name(), synth.CodeInvalidInput,
			fmt.Sprintf("text too long: %d characters (max %d)", len(text), maxTextSize), nil)
	}

	args := []string{
		"--model", p.modelPath,
		"--output-raw",
		"--length-scale", strconv.FormatFloat(p.lengthScale, 'f', 2, 64),
	}
	if _, err := os.Stat(p.configPath); err == nil {
		args = append(args, "--config", p.configPath)
	}

	if voice == "" {
		voice = p.speaker
	}
	if voice != "" {
		id, err := p.speakerID(voice)
		if err != nil {
			return nil, err
		}
		args = append(args, "--speaker", strconv.Itoa(id))
	}

	runCtx, cancel := context.WithTimeout(ctx, synthTimeout)
	defer cancel()
	// text goes in on stdin, so it is written before piper starts reading
	pcm, err := p.run(runCtx, []byte(text), "piper", args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if runCtx.Err() != nil {
			return nil, synth.NewError(p.Name(), synth.CodeTimeout, "synthesis timed out", err)
		}
		return nil, synth.NewError(p.Name(), synth.CodeUnavailable, "piper failed", err)
	}
	if len(pcm) == 0 {
		return nil, synth.NewError(p.Name(), synth.CodeBadResponse, "piper produced no audio output", nil)
	}
	if len(pcm) > maxAudioSize {
		return nil, synth.NewError(p.Name(), synth.CodeBadResponse,
			fmt.Sprintf("piper output too large: %d bytes (max %d)", len(pcm), maxAudioSize), nil)
	}
	return pcm, nil
}

func (p *Provider) speakerID(voice string) (int, error) {
	if id, ok := p.model.SpeakerIDMap[voice]; ok {
		return id, nil
	}
	if id, err := strconv.Atoi(voice); err == nil && id >= 0 {
		return id, nil
	}
	return 0, synth.NewError(p.Name(), synth.CodeInvalidInput, fmt.Sprintf("unknown speaker %q", voice), nil)
}

// Voices implements synth.VoiceLister. Single-speaker models have one voice
// named after the model.
func (p *Provider) Voices(context.Context) ([]synth.Voice, error) {
	lang := strings.ReplaceAll(p.model.Language.Code, "_", "-")

	if len(p.model.SpeakerIDMap) == 0 {
		name := p.model.Dataset
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(p.modelPath), filepath.Ext(p.modelPath))
		}
		return []synth.Voice{{ID: "", Name: name, Language: lang, Provider: p.Name()}}, nil
	}

	voices := make([]synth.Voice, 0, len(p.model.SpeakerIDMap))
	for name := range p.model.SpeakerIDMap {
		voices = append(voices, synth.Voice{ID: name, Name: name, Language: lang, Provider: p.Name()})
	}
	sort.Slice(voices, func(i, j int) bool { return voices[i].ID < voices[j].ID })
	return voices, nil
}

// Validate checks that piper is installed.
func Validate() error {
	if _, err := exec.LookPath("piper"); err != nil {
		return fmt.Errorf("piper not found in PATH: %w", err)
	}
	return nil
}

func runCommand(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)

	// interrupt first so piper can clean up, then kill
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 100 * time.Millisecond

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
