package whisper

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/stt"
)

// newTestServer returns a whisper-server stand-in that records the request
// and replies with the given body.
func newTestServer(t *testing.T, status int, body any) (*httptest.Server, *http.Request) {
	t.Helper()
	var captured http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = *r
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		captured.MultipartForm = r.MultipartForm
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestTranscribe(t *testing.T) {
	t.Parallel()
	srv, req := newTestServer(t, http.StatusOK, map[string]any{
		"text":     "  I'd like to book a cleaning.  ",
		"language": "en",
		"segments": []map[string]any{
			{"avg_logprob": -0.1},
			{"avg_logprob": -0.3},
		},
	})

	p, err := New(srv.URL, WithLanguage("en"), WithModel("base.en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pcm := make([]byte, 32000) // one second
	result, err := p.Transcribe(context.Background(), pcm, stt.Options{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if result.Text != "I'd like to book a cleaning." {
		t.Errorf("text: got %q", result.Text)
	}
	want := math.Exp(-0.2)
	if math.Abs(result.Confidence-want) > 1e-9 {
		t.Errorf("confidence: got %v, want %v", result.Confidence, want)
	}
	if result.Duration != time.Second {
		t.Errorf("duration: got %v, want 1s", result.Duration)
	}

	form := req.MultipartForm
	if form == nil {
		t.Fatal("no multipart form captured")
	}
	if got := form.Value["response_format"]; len(got) != 1 || got[0] != "verbose_json" {
		t.Errorf("response_format: got %v", got)
	}
	if got := form.Value["language"]; len(got) != 1 || got[0] != "en" {
		t.Errorf("language: got %v", got)
	}
	if got := form.Value["model"]; len(got) != 1 || got[0] != "base.en" {
		t.Errorf("model: got %v", got)
	}
	files := form.File["file"]
	if len(files) != 1 {
		t.Fatalf("file parts: got %d, want 1", len(files))
	}
	// WAV header adds 44 bytes to the PCM payload.
	if files[0].Size != int64(len(pcm)+44) {
		t.Errorf("wav size: got %d, want %d", files[0].Size, len(pcm)+44)
	}
}

func TestTranscribe_NoSegmentsUsesDefaultConfidence(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, http.StatusOK, map[string]any{"text": "hello"})

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	result, err := p.Transcribe(context.Background(), make([]byte, 640), stt.Options{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Confidence != stt.DefaultConfidence {
		t.Errorf("confidence: got %v, want %v", result.Confidence, stt.DefaultConfidence)
	}
}

func TestTranscribe_EmptyText(t *testing.T) {
	t.Parallel()
	srv, _ := newTestServer(t, http.StatusOK, map[string]any{"text": "   "})

	p, _ := New(srv.URL)
	result, err := p.Transcribe(context.Background(), make([]byte, 640), stt.Options{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "" || result.Confidence != 0 {
		t.Errorf("got %+v, want empty result", result)
	}
}

func TestTranscribe_EmptyAudioSkipsRequest(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server must not be called for empty audio")
	}))
	t.Cleanup(srv.Close)

	p, _ := New(srv.URL)
	result, err := p.Transcribe(context.Background(), nil, stt.Options{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if result.Text != "" {
		t.Errorf("got %+v, want zero result", result)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	p, _ := New(srv.URL)
	if _, err := p.Transcribe(context.Background(), make([]byte, 640), stt.Options{}); err == nil {
		t.Error("expected error for HTTP 500")
	}
}

func TestNew_EmptyURL(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Error("expected error for empty server URL")
	}
}

func TestConfidenceClamping(t *testing.T) {
	t.Parallel()
	// A positive logprob would push exp() above 1; it must clamp.
	conf := confidenceFromLogprobs([]inferenceSegment{{AvgLogprob: 0.5}})
	if conf != 1 {
		t.Errorf("got %v, want 1", conf)
	}
}

func TestPCMToFloat32Mono(t *testing.T) {
	t.Parallel()
	// Stereo pair (16384, -16384) averages to 0.
	pcm := []byte{0x00, 0x40, 0x00, 0xC0}
	mono := pcmToFloat32Mono(pcm, 2)
	if len(mono) != 1 {
		t.Fatalf("samples: got %d, want 1", len(mono))
	}
	if mono[0] != 0 {
		t.Errorf("got %v, want 0", mono[0])
	}

	// Mono passthrough scales to [-1, 1).
	mono = pcmToFloat32Mono([]byte{0x00, 0x40}, 1)
	if mono[0] != 0.5 {
		t.Errorf("got %v, want 0.5", mono[0])
	}
}
