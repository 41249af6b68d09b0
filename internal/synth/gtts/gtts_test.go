package gtts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dgnsrekt/readalong/internal/synth"
)

type call struct {
	name  string
	args  []string
	stdin []byte
}

func fakeRunner(calls *[]call, outputs map[string][]byte, fail string) Runner {
	return func(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, call{name: name, args: args, stdin: stdin})
		if name == fail {
			return nil, errors.New("exit status 1")
		}
		return outputs[name], nil
	}
}

func TestSynthesizePipeline(t *testing.T) {
	var calls []call
	p := New(Config{Run: fakeRunner(&calls, map[string][]byte{
		"gtts-cli": []byte("ID3mp3"),
		"ffmpeg":   make([]byte, 96),
	}, "")})

	pcm, err := p.Synthesize(context.Background(), "Bonjour.", "fr:ca")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(pcm) != 96 {
		t.Errorf("pcm length = %d, want 96", len(pcm))
	}
	if len(calls) != 2 {
		t.Fatalf("got %d commands, want 2", len(calls))
	}

	gttsArgs := strings.Join(calls[0].args, " ")
	if !strings.Contains(gttsArgs, "-l fr") || !strings.Contains(gttsArgs, "-t ca") {
		t.Errorf("gtts-cli args = %q", gttsArgs)
	}
	if string(calls[1].stdin) != "ID3mp3" {
		t.Errorf("ffmpeg stdin = %q", calls[1].stdin)
	}
	if !strings.Contains(strings.Join(calls[1].args, " "), "-ar 24000") {
		t.Errorf("ffmpeg args = %v", calls[1].args)
	}
}

func TestSynthesizeDefaults(t *testing.T) {
	var calls []call
	p := New(Config{Slow: true, Run: fakeRunner(&calls, map[string][]byte{
		"gtts-cli": []byte("mp3"),
		"ffmpeg":   []byte{0, 0},
	}, "")})

	if _, err := p.Synthesize(context.Background(), "Hi.", ""); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	args := strings.Join(calls[0].args, " ")
	if !strings.Contains(args, "-l en") || !strings.Contains(args, "--slow") {
		t.Errorf("gtts-cli args = %q", args)
	}
}

func TestSynthesizeErrors(t *testing.T) {
	tests := []struct {
		name     string
		outputs  map[string][]byte
		fail     string
		text     string
		wantCode synth.Code
		wantErr  error
	}{
		{name: "empty text", text: " ", wantErr: synth.ErrEmptyText},
		{name: "gtts fails", text: "x", fail: "gtts-cli", wantCode: synth.CodeUnavailable},
		{name: "no mp3", text: "x", outputs: map[string][]byte{}, wantCode: synth.CodeBadResponse},
		{name: "ffmpeg fails", text: "x", outputs: map[string][]byte{"gtts-cli": []byte("a")}, fail: "ffmpeg", wantCode: synth.CodeUnavailable},
		{name: "no pcm", text: "x", outputs: map[string][]byte{"gtts-cli": []byte("a")}, wantCode: synth.CodeBadResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []call
			p := New(Config{Run: fakeRunner(&calls, tt.outputs, tt.fail)})
			_, err := p.Synthesize(context.Background(), tt.text, "")

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			var se *synth.Error
			if !errors.As(err, &se) {
				t.Fatalf("expected *synth.Error, got %v", err)
			}
			if se.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", se.Code, tt.wantCode)
			}
		})
	}
}

func TestVoices(t *testing.T) {
	voices, err := New(Config{}).Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	if len(voices) == 0 || voices[0].Provider != "gtts" {
		t.Errorf("voices = %v", voices)
	}
}
