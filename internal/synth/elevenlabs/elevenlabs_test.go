package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/dgnsrekt/readalong/internal/synth"
)

// streamServer answers each stream with the given chunks, then isFinal.
func streamServer(t *testing.T, chunks [][]byte, got *[]map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var m map[string]any
			_ = json.Unmarshal(msg, &m)
			*got = append(*got, m)
			if m["text"] == "" {
				break
			}
		}

		for _, c := range chunks {
			payload, _ := json.Marshal(audioResponse{Audio: base64.StdEncoding.EncodeToString(c)})
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				return
			}
		}
		final, _ := json.Marshal(audioResponse{IsFinal: true})
		_ = conn.Write(ctx, websocket.MessageText, final)
		conn.Close(websocket.StatusNormalClosure, "")
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestSynthesizeCollectsChunks(t *testing.T) {
	var got []map[string]any
	srv := streamServer(t, [][]byte{{1, 2}, {3, 4, 5, 6}}, &got)
	defer srv.Close()

	p, err := New("xi-key", WithBaseURLs(wsURL(srv), srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	audio, err := p.Synthesize(context.Background(), "Hello.", "voice-1")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != string([]byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("audio = %v", audio)
	}

	if len(got) != 3 {
		t.Fatalf("server received %d messages, want 3", len(got))
	}
	if got[0]["xi_api_key"] != "xi-key" || got[0]["output_format"] != "pcm_22050" {
		t.Errorf("BOI message = %v", got[0])
	}
	if got[1]["text"] != "Hello. " {
		t.Errorf("text message = %v", got[1])
	}
}

func TestSynthesizeNoAudio(t *testing.T) {
	var got []map[string]any
	srv := streamServer(t, nil, &got)
	defer srv.Close()

	p, _ := New("k", WithBaseURLs(wsURL(srv), srv.URL))
	_, err := p.Synthesize(context.Background(), "Hello.", "")

	var se *synth.Error
	if !errors.As(err, &se) || se.Code != synth.CodeBadResponse {
		t.Errorf("expected bad response error, got %v", err)
	}
}

func TestSampleRateFromFormat(t *testing.T) {
	p, err := New("k", WithOutputFormat("pcm_16000"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.SampleRate() != 16000 {
		t.Errorf("sample rate = %d", p.SampleRate())
	}
	if _, err := New("k", WithOutputFormat("mp3_44100_128")); err == nil {
		t.Error("expected error for non-pcm format")
	}
}

func TestVoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"voices":[{"voice_id":"abc","name":"Rachel","labels":{"gender":"female"}}]}`))
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURLs("ws://unused", srv.URL))
	voices, err := p.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "abc" || voices[0].Gender != "female" {
		t.Errorf("voices = %+v", voices)
	}

	bad, _ := New("wrong", WithBaseURLs("ws://unused", srv.URL))
	_, err = bad.Voices(context.Background())
	var se *synth.Error
	if !errors.As(err, &se) || !se.Fatal() {
		t.Errorf("expected fatal error, got %v", err)
	}
}
