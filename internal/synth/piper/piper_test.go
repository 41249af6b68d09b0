package piper

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgnsrekt/readalong/internal/synth"
)

type call struct {
	args  []string
	stdin string
}

func writeModel(t *testing.T, config string) string {
	t.Helper()
	dir := t.TempDir()
	model := filepath.Join(dir, "en_US-libritts-high.onnx")
	require.NoError(t, os.WriteFile(model, []byte("onnx"), 0o600))
	if config != "" {
		require.NoError(t, os.WriteFile(model+".json", []byte(config), 0o600))
	}
	return model
}

func recorder(calls *[]call, out []byte, err error) Runner {
	return func(_ context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, call{args: args, stdin: string(stdin)})
		return out, err
	}
}

const multiSpeaker = `{
	"audio": {"sample_rate": 16000},
	"language": {"code": "en_US"},
	"dataset": "libritts",
	"speaker_id_map": {"p3922": 0, "p240": 7}
}`

func TestNewRequiresModel(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoModel)

	_, err = New(Config{ModelPath: filepath.Join(t.TempDir(), "missing.onnx")})
	assert.Error(t, err)
}

func TestSynthesizeArgs(t *testing.T) {
	var calls []call
	p, err := New(Config{ModelPath: writeModel(t, multiSpeaker), Run: recorder(&calls, make([]byte, 64), nil)})
	require.NoError(t, err)
	assert.Equal(t, 16000, p.SampleRate())

	pcm, err := p.Synthesize(context.Background(), "Hello there.", "p240")
	require.NoError(t, err)
	assert.Len(t, pcm, 64)

	require.Len(t, calls, 1)
	assert.Equal(t, "Hello there.", calls[0].stdin)
	args := strings.Join(calls[0].args, " ")
	assert.Contains(t, args, "--output-raw")
	assert.Contains(t, args, "--length-scale 1.00")
	assert.Contains(t, args, "--speaker 7")
	assert.Contains(t, args, "--config ")
}

func TestSynthesizeErrors(t *testing.T) {
	var calls []call
	model := writeModel(t, "")

	p, err := New(Config{ModelPath: model, Run: recorder(&calls, nil, errors.New("exit status 1"))})
	require.NoError(t, err)
	assert.Equal(t, defaultSampleRate, p.SampleRate())

	_, err = p.Synthesize(context.Background(), "  ", "")
	assert.ErrorIs(t, err, synth.ErrEmptyText)

	_, err = p.Synthesize(context.Background(), "Hi.", "")
	assert.True(t, synth.IsRetryable(err))

	_, err = p.Synthesize(context.Background(), "Hi.", "nobody")
	var se *synth.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, synth.CodeInvalidInput, se.Code)

	p, err = New(Config{ModelPath: model, Run: recorder(&calls, nil, nil)})
	require.NoError(t, err)
	_, err = p.Synthesize(context.Background(), "Hi.", "")
	require.ErrorAs(t, err, &se)
	assert.Equal(t, synth.CodeBadResponse, se.Code)
}

func TestVoices(t *testing.T) {
	p, err := New(Config{ModelPath: writeModel(t, multiSpeaker), Run: recorder(new([]call), nil, nil)})
	require.NoError(t, err)

	voices, err := p.Voices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 2)
	assert.Equal(t, "p240", voices[0].ID)
	assert.Equal(t, "en-US", voices[0].Language)
	assert.Equal(t, "piper", voices[0].Provider)

	p, err = New(Config{ModelPath: writeModel(t, `{"language": {"code": "de_DE"}}`), Run: recorder(new([]call), nil, nil)})
	require.NoError(t, err)
	voices, err = p.Voices(context.Background())
	require.NoError(t, err)
	require.Len(t, voices, 1)
	assert.Equal(t, "en_US-libritts-high", voices[0].Name)
	assert.Equal(t, "de-DE", voices[0].Language)
}

func TestInvalidModelConfig(t *testing.T) {
	_, err := New(Config{ModelPath: writeModel(t, "{not json")})
	assert.Error(t, err)
}
