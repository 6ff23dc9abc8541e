// Package engine runs the per-turn voice pipeline: STT transcription, clinic
// vocabulary correction, dialogue processing, and reply synthesis.
//
// A Processor is stateless between calls; all conversation state lives in the
// session store, so any server instance can process any session's turns. One
// Processor serves all sessions concurrently.
package engine

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aishwarymishra09/voice-chat-be/internal/dialog"
	"github.com/aishwarymishra09/voice-chat-be/internal/observe"
	"github.com/aishwarymishra09/voice-chat-be/internal/resilience"
	"github.com/aishwarymishra09/voice-chat-be/internal/transcript"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/stt"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/tts"
)

// sttOptions is the fixed audio format the turn engine delivers: 16 kHz mono
// PCM, English recognition.
var sttOptions = stt.Options{
	SampleRate: 16000,
	Channels:   1,
	Language:   "en",
}

// noiseFloor is the transcription confidence below which a result is treated
// as noise and discarded without routing.
const noiseFloor = 0.1

// TurnResult is the outcome of processing one finalized utterance.
type TurnResult struct {
	// Transcript is the corrected caller transcript. Empty when transcription
	// failed or produced nothing.
	Transcript string

	// RawTranscript is the transcript before vocabulary correction.
	RawTranscript string

	// Confidence is the STT confidence for the utterance.
	Confidence float64

	// Outcome is the dialogue engine's decision for this turn.
	Outcome dialog.Outcome

	// Clip is the synthesized reply audio. Zero (no Audio) when the outcome
	// carries no text or when synthesis failed; the caller should still
	// deliver Outcome.Text over the data channel.
	Clip tts.Clip
}

// Processor wires the pipeline stages together.
type Processor struct {
	stt       stt.Provider
	tts       tts.Provider
	dialog    *dialog.Engine
	corrector *transcript.Corrector
	voice     tts.VoiceProfile

	metrics    *observe.Metrics
	logger     *slog.Logger
	retryDelay time.Duration
}

// Option configures a Processor.
type Option func(*Processor)

// WithCorrector sets the transcript corrector. Without one, raw STT output is
// used unchanged.
func WithCorrector(c *transcript.Corrector) Option {
	return func(p *Processor) { p.corrector = c }
}

// WithVoice sets the TTS voice profile for all synthesized replies.
func WithVoice(v tts.VoiceProfile) Option {
	return func(p *Processor) { p.voice = v }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// WithRetryDelay sets the backoff before the single retry of a failed
// provider call.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.retryDelay = d
		}
	}
}

// New constructs a Processor over the given providers and dialogue engine.
func New(sttP stt.Provider, ttsP tts.Provider, dlg *dialog.Engine, opts ...Option) *Processor {
	p := &Processor{
		stt:        sttP,
		tts:        ttsP,
		dialog:     dlg,
		logger:     slog.Default(),
		retryDelay: 250 * time.Millisecond,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Dialog exposes the underlying dialogue engine for callers that need to
// record nudges or fail a conversation directly.
func (p *Processor) Dialog() *dialog.Engine {
	return p.dialog
}

// ProcessTurn runs the full pipeline for one finalized utterance: transcribe,
// correct, decide, synthesize. Provider failures are retried once; when a
// stage still fails the caller gets an apologetic reply instead of an error,
// and the conversation stays open.
func (p *Processor) ProcessTurn(ctx context.Context, sessionID string, pcm []byte) (*TurnResult, error) {
	ctx, span := observe.StartSpan(ctx, "turn.process",
		trace.WithAttributes(attribute.String("session_id", sessionID)))
	defer span.End()

	start := time.Now()

	sttCtx, sttSpan := observe.StartSpan(ctx, "turn.transcribe")
	result, err := resilience.Retry(sttCtx, p.retryDelay, func(ctx context.Context) (stt.Result, error) {
		return p.stt.Transcribe(ctx, pcm, sttOptions)
	})
	sttSpan.End()
	p.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		p.metrics.RecordProviderError(ctx, "stt", "transcribe")
		p.logger.Error("turn: transcription failed", "session_id", sessionID, "err", err)
		return p.apologize(ctx, sessionID)
	}

	raw := result.Text
	confidence := result.Confidence
	if confidence == 0 && raw != "" {
		confidence = stt.DefaultConfidence
	}

	// Results below the noise floor never reach the router. Empty
	// transcripts still go through so repeated unintelligible turns
	// escalate instead of looping forever.
	if raw != "" && confidence < noiseFloor {
		p.logger.Debug("turn: dropped low-confidence result",
			"session_id", sessionID, "confidence", confidence)
		return &TurnResult{
			RawTranscript: raw,
			Confidence:    confidence,
			Outcome:       dialog.Outcome{Kind: dialog.OutcomeSilent, Phase: dialog.PhaseListening},
		}, nil
	}

	corrected := raw
	if p.corrector != nil {
		cr := p.corrector.Correct(raw)
		corrected = cr.Corrected
		for _, c := range cr.Corrections {
			p.logger.Debug("turn: transcript corrected",
				"session_id", sessionID,
				"original", c.Original,
				"corrected", c.Corrected,
			)
		}
	}

	dlgCtx, dlgSpan := observe.StartSpan(ctx, "turn.dialogue")
	outcome, err := p.dialog.ProcessTurn(dlgCtx, sessionID, corrected, confidence)
	dlgSpan.End()
	if err != nil {
		return nil, err
	}
	p.metrics.RecordRouterDecision(ctx, outcome.Kind.String())

	tr := &TurnResult{
		Transcript:    corrected,
		RawTranscript: raw,
		Confidence:    confidence,
		Outcome:       outcome,
	}
	p.synthesize(ctx, sessionID, tr)
	p.metrics.TurnDuration.Record(ctx, time.Since(start).Seconds())
	return tr, nil
}

// Greet starts the conversation and synthesizes the opening line. Repeated
// calls for the same session return an empty result.
func (p *Processor) Greet(ctx context.Context, sessionID string) (*TurnResult, error) {
	text, err := p.dialog.Greet(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	tr := &TurnResult{Outcome: dialog.Outcome{
		Kind:  dialog.OutcomeReply,
		Text:  text,
		Phase: dialog.PhaseListening,
	}}
	if text != "" {
		p.synthesize(ctx, sessionID, tr)
	}
	return tr, nil
}

// Speak synthesizes a standalone prompt (nudge, continuation cue, comfort
// noise) without touching conversation state.
func (p *Processor) Speak(ctx context.Context, text string) (tts.Clip, error) {
	ctx, span := observe.StartSpan(ctx, "turn.synthesize")
	defer span.End()

	start := time.Now()
	clip, err := resilience.Retry(ctx, p.retryDelay, func(ctx context.Context) (tts.Clip, error) {
		return p.tts.Synthesize(ctx, text, p.voice)
	})
	p.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		p.metrics.RecordProviderError(ctx, "tts", "synthesize")
		return tts.Clip{}, err
	}
	return clip, nil
}

// apologize builds the fallback turn result used when transcription is
// unavailable: the receptionist apologizes and keeps listening. The turn is
// not counted and conversation state is untouched.
func (p *Processor) apologize(ctx context.Context, sessionID string) (*TurnResult, error) {
	tr := &TurnResult{Outcome: dialog.Outcome{
		Kind:  dialog.OutcomeReply,
		Text:  dialog.PromptApology,
		Phase: dialog.PhaseListening,
	}}
	p.synthesize(ctx, sessionID, tr)
	return tr, nil
}

// synthesize fills tr.Clip from the outcome text. Synthesis failure is
// non-fatal: the text reply still reaches the client as data.
func (p *Processor) synthesize(ctx context.Context, sessionID string, tr *TurnResult) {
	if tr.Outcome.Text == "" {
		return
	}
	clip, err := p.Speak(ctx, tr.Outcome.Text)
	if err != nil {
		p.logger.Error("turn: synthesis failed, replying with text only",
			"session_id", sessionID, "err", err)
		return
	}
	tr.Clip = clip
}
