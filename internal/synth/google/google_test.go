package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dgnsrekt/readalong/internal/synth"
)

func TestSynthesize(t *testing.T) {
	var got synthesizeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text:synthesize" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "secret" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(synthesizeResponse{
			AudioContent: base64.StdEncoding.EncodeToString([]byte{1, 2, 3, 4}),
		})
	}))
	defer srv.Close()

	p, err := New("secret", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	audio, err := p.Synthesize(context.Background(), "Hello there.", "de-DE-Wavenet-B")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(audio) != 4 {
		t.Errorf("audio length = %d, want 4", len(audio))
	}
	if got.Input.Text != "Hello there." {
		t.Errorf("text = %q", got.Input.Text)
	}
	if got.Voice.LanguageCode != "de-DE" || got.Voice.Name != "de-DE-Wavenet-B" {
		t.Errorf("voice = %+v", got.Voice)
	}
	if got.AudioConfig.AudioEncoding != "LINEAR16" || got.AudioConfig.SampleRateHertz != 24000 {
		t.Errorf("audio config = %+v", got.AudioConfig)
	}
}

func TestSynthesizeErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCode  synth.Code
		retryable bool
	}{
		{name: "unauthorized", status: http.StatusForbidden, wantCode: synth.CodeUnauthorized},
		{name: "rate limited", status: http.StatusTooManyRequests, wantCode: synth.CodeRateLimited, retryable: true},
		{name: "server error", status: http.StatusBadGateway, wantCode: synth.CodeUnavailable, retryable: true},
		{name: "bad request", status: http.StatusBadRequest, wantCode: synth.CodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"code":1,"message":"nope"}}`))
			}))
			defer srv.Close()

			p, _ := New("k", WithBaseURL(srv.URL))
			_, err := p.Synthesize(context.Background(), "Hi.", "")

			var se *synth.Error
			if !errors.As(err, &se) {
				t.Fatalf("expected *synth.Error, got %v", err)
			}
			if se.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", se.Code, tt.wantCode)
			}
			if se.Message != "nope" {
				t.Errorf("message = %q", se.Message)
			}
			if se.Retryable() != tt.retryable {
				t.Errorf("retryable = %v, want %v", se.Retryable(), tt.retryable)
			}
		})
	}
}

func TestVoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"voices":[
			{"languageCodes":["en-GB"],"name":"en-GB-Neural2-A","ssmlGender":"FEMALE"},
			{"languageCodes":[],"name":"fr-FR-Standard-B","ssmlGender":"MALE"}
		]}`))
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	voices, err := p.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	if voices[0].Language != "en-GB" || voices[0].Gender != "female" || voices[0].Provider != "google" {
		t.Errorf("voice 0 = %+v", voices[0])
	}
	if voices[1].Language != "fr-FR" {
		t.Errorf("voice 1 language = %q", voices[1].Language)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(""); !errors.Is(err, synth.ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestLanguageOf(t *testing.T) {
	tests := map[string]string{
		"en-US-Wavenet-D":   "en-US",
		"cmn-CN-Standard-A": "cmn-CN",
		"alloy":             "en-US",
		"":                  "en-US",
	}
	for in, want := range tests {
		if got := LanguageOf(in); got != want {
			t.Errorf("LanguageOf(%q) = %q, want %q", in, got, want)
		}
	}
}
