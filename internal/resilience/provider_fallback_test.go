package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/llm"
	llmmock "github.com/aishwarymishra09/voice-chat-be/pkg/provider/llm/mock"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/stt"
	sttmock "github.com/aishwarymishra09/voice-chat-be/pkg/provider/stt/mock"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/tts"
	ttsmock "github.com/aishwarymishra09/voice-chat-be/pkg/provider/tts/mock"
)

func fallbackCfg() FallbackConfig {
	return FallbackConfig{Breaker: BreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour}}
}

func TestSTTFallback_FailsOver(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Provider{Err: errBackend}
	backup := &sttmock.Provider{Result: stt.Result{Text: "book a cleaning", Confidence: 0.91}}

	f := NewSTTFallback(primary, "whisper", fallbackCfg())
	f.AddFallback("deepgram", backup)

	got, err := f.Transcribe(context.Background(), []byte{0x01, 0x02}, stt.Options{Language: "en"})
	if err != nil {
		t.Fatalf("Transcribe() error: %v", err)
	}
	if got.Text != "book a cleaning" {
		t.Errorf("Text = %q, want backup transcript", got.Text)
	}
	if len(backup.TranscribeCalls) != 1 || backup.TranscribeCalls[0].Opts.Language != "en" {
		t.Errorf("backup calls = %+v, want one call with language en", backup.TranscribeCalls)
	}
}

func TestLLMFallback_PrimaryWins(t *testing.T) {
	t.Parallel()

	primary := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "We open at nine."}}
	backup := &llmmock.Provider{}

	f := NewLLMFallback(primary, "openai", fallbackCfg())
	f.AddFallback("anyllm", backup)

	resp, err := f.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if resp.Content != "We open at nine." {
		t.Errorf("Content = %q", resp.Content)
	}
	if len(backup.CompleteCalls) != 0 {
		t.Error("backup was called although the primary succeeded")
	}
}

func TestTTSFallback_FailsOver(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{Err: errBackend}
	backup := &ttsmock.Provider{Clip: tts.Clip{Audio: []byte{0xFF}, MIME: "audio/wav", Duration: 2 * time.Second}}

	f := NewTTSFallback(primary, "elevenlabs", fallbackCfg())
	f.AddFallback("coqui", backup)

	clip, err := f.Synthesize(context.Background(), "Take your time.", tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}
	if clip.MIME != "audio/wav" || clip.Duration != 2*time.Second {
		t.Errorf("clip = %+v, want backup clip", clip)
	}
}
