package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/aishwarymishra09/voice-chat-be/internal/dialog"
	"github.com/aishwarymishra09/voice-chat-be/internal/session"
	"github.com/aishwarymishra09/voice-chat-be/internal/transcript"
	"github.com/aishwarymishra09/voice-chat-be/internal/transcript/phonetic"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/llm"
	llmmock "github.com/aishwarymishra09/voice-chat-be/pkg/provider/llm/mock"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/stt"
	sttmock "github.com/aishwarymishra09/voice-chat-be/pkg/provider/stt/mock"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/tts"
	ttsmock "github.com/aishwarymishra09/voice-chat-be/pkg/provider/tts/mock"
)

type testPipeline struct {
	stt       *sttmock.Provider
	llm       *llmmock.Provider
	tts       *ttsmock.Provider
	store     *session.Store
	processor *Processor
	sessionID string
}

func newTestPipeline(t *testing.T, opts ...Option) *testPipeline {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := session.NewStore(client)

	sttP := &sttmock.Provider{}
	llmP := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "We open at nine."}}
	ttsP := &ttsmock.Provider{Clip: tts.Clip{Audio: []byte{0x01}, MIME: "audio/mpeg", Duration: time.Second}}

	dlg := dialog.NewEngine(store, llmP)

	ctx := context.Background()
	now := time.Now().UTC()
	sess := &session.Session{ID: "sess-1", Status: session.StatusActive, CreatedAt: now, LastActive: now}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if _, err := dlg.Greet(ctx, sess.ID); err != nil {
		t.Fatalf("greet: %v", err)
	}

	opts = append(opts, WithRetryDelay(time.Millisecond))
	return &testPipeline{
		stt:       sttP,
		llm:       llmP,
		tts:       ttsP,
		store:     store,
		processor: New(sttP, ttsP, dlg, opts...),
		sessionID: sess.ID,
	}
}

func TestProcessTurn_FullPipeline(t *testing.T) {
	p := newTestPipeline(t)
	p.stt.Result = stt.Result{Text: "I'd like to book a cleaning.", Confidence: 0.92}

	tr, err := p.processor.ProcessTurn(context.Background(), p.sessionID, []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if tr.Transcript != "I'd like to book a cleaning." {
		t.Errorf("transcript = %q", tr.Transcript)
	}
	if tr.Outcome.Kind != dialog.OutcomeReply {
		t.Errorf("outcome = %v, want reply", tr.Outcome.Kind)
	}
	if tr.Outcome.Text != "We open at nine." {
		t.Errorf("reply = %q", tr.Outcome.Text)
	}
	if len(tr.Clip.Audio) == 0 {
		t.Error("reply was not synthesized")
	}
	if len(p.tts.SynthesizeCalls) != 1 || p.tts.SynthesizeCalls[0].Text != "We open at nine." {
		t.Errorf("tts calls = %+v", p.tts.SynthesizeCalls)
	}
}

func TestProcessTurn_AppliesVocabularyCorrection(t *testing.T) {
	corrector := transcript.New(phonetic.New(), []string{"root canal"})
	p := newTestPipeline(t, WithCorrector(corrector))
	p.stt.Result = stt.Result{Text: "I think I need a root kanal", Confidence: 0.9}

	tr, err := p.processor.ProcessTurn(context.Background(), p.sessionID, []byte{0x01})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if tr.Transcript != "I think I need a root canal" {
		t.Errorf("corrected transcript = %q", tr.Transcript)
	}
	if tr.RawTranscript != "I think I need a root kanal" {
		t.Errorf("raw transcript = %q", tr.RawTranscript)
	}
}

func TestProcessTurn_ZeroConfidenceDefaults(t *testing.T) {
	p := newTestPipeline(t)
	p.stt.Result = stt.Result{Text: "hello there, can you help me"}

	tr, err := p.processor.ProcessTurn(context.Background(), p.sessionID, []byte{0x01})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if tr.Confidence != stt.DefaultConfidence {
		t.Errorf("confidence = %v, want default %v", tr.Confidence, stt.DefaultConfidence)
	}
	if tr.Outcome.Kind != dialog.OutcomeReply {
		t.Errorf("outcome = %v, soft accept expected", tr.Outcome.Kind)
	}
}

func TestProcessTurn_DropsNoiseFloorResult(t *testing.T) {
	p := newTestPipeline(t)
	p.stt.Result = stt.Result{Text: "mmmh", Confidence: 0.05}

	tr, err := p.processor.ProcessTurn(context.Background(), p.sessionID, []byte{0x01})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if tr.Outcome.Kind != dialog.OutcomeSilent {
		t.Errorf("outcome = %v, want silent", tr.Outcome.Kind)
	}
	if len(p.llm.CompleteCalls) != 0 {
		t.Error("language model was called for a noise-floor result")
	}
	if len(p.tts.SynthesizeCalls) != 0 {
		t.Error("synthesis was called for a noise-floor result")
	}
}

func TestProcessTurn_STTRetriesOnce(t *testing.T) {
	p := newTestPipeline(t)
	p.stt.Err = errors.New("stt: server unavailable")

	tr, err := p.processor.ProcessTurn(context.Background(), p.sessionID, []byte{0x01})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if got := len(p.stt.TranscribeCalls); got != 2 {
		t.Errorf("stt called %d times, want 2 (one retry)", got)
	}
	if tr.Outcome.Text != dialog.PromptApology {
		t.Errorf("reply = %q, want apology", tr.Outcome.Text)
	}
	if tr.Outcome.Phase != dialog.PhaseListening {
		t.Errorf("phase = %v, want listening — call must stay open", tr.Outcome.Phase)
	}
	if len(p.llm.CompleteCalls) != 0 {
		t.Error("language model was called despite failed transcription")
	}
}

func TestProcessTurn_TTSFailureKeepsText(t *testing.T) {
	p := newTestPipeline(t)
	p.stt.Result = stt.Result{Text: "do you take walk-ins on saturdays", Confidence: 0.9}
	p.tts.Err = errors.New("tts: quota exceeded")

	tr, err := p.processor.ProcessTurn(context.Background(), p.sessionID, []byte{0x01})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}

	if tr.Outcome.Text != "We open at nine." {
		t.Errorf("reply text = %q — text reply must survive synthesis failure", tr.Outcome.Text)
	}
	if len(tr.Clip.Audio) != 0 {
		t.Error("clip should be empty when synthesis fails")
	}
}

func TestProcessTurn_EmptyTranscriptClarifies(t *testing.T) {
	p := newTestPipeline(t)
	p.stt.Result = stt.Result{Text: ""}

	tr, err := p.processor.ProcessTurn(context.Background(), p.sessionID, []byte{0x01})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if tr.Outcome.Kind != dialog.OutcomeClarify {
		t.Errorf("outcome = %v, want clarify", tr.Outcome.Kind)
	}
	if len(tr.Clip.Audio) == 0 {
		t.Error("clarification prompt was not synthesized")
	}
}

func TestGreet_SynthesizesGreeting(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := session.NewStore(client)

	ttsP := &ttsmock.Provider{Clip: tts.Clip{Audio: []byte{0x01}, MIME: "audio/mpeg", Duration: 2 * time.Second}}
	dlg := dialog.NewEngine(store, &llmmock.Provider{})
	proc := New(&sttmock.Provider{}, ttsP, dlg, WithRetryDelay(time.Millisecond))

	ctx := context.Background()
	now := time.Now().UTC()
	sess := &session.Session{ID: "sess-greet", Status: session.StatusActive, CreatedAt: now, LastActive: now}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}

	tr, err := proc.Greet(ctx, "sess-greet")
	if err != nil {
		t.Fatalf("Greet: %v", err)
	}
	if tr.Outcome.Text != dialog.PromptGreeting {
		t.Errorf("greeting = %q", tr.Outcome.Text)
	}
	if len(tr.Clip.Audio) == 0 {
		t.Error("greeting was not synthesized")
	}

	// Second greet is a no-op and produces no audio.
	again, err := proc.Greet(ctx, "sess-greet")
	if err != nil {
		t.Fatalf("second Greet: %v", err)
	}
	if again.Outcome.Text != "" || len(again.Clip.Audio) != 0 {
		t.Errorf("second greet = %+v, want silent", again)
	}
}

func TestSpeak_RetriesThenFails(t *testing.T) {
	p := newTestPipeline(t)
	p.tts.Err = errors.New("tts: down")

	_, err := p.processor.Speak(context.Background(), "Are you still there?")
	if err == nil {
		t.Fatal("Speak() = nil error, want failure after retry")
	}
	if got := len(p.tts.SynthesizeCalls); got != 2 {
		t.Errorf("tts called %d times, want 2", got)
	}
}
