package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aishwarymishra09/voice-chat-be/internal/observe"
	"github.com/aishwarymishra09/voice-chat-be/internal/session"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/llm"
	"github.com/aishwarymishra09/voice-chat-be/pkg/types"
)

const (
	// maxClarifications bounds consecutive clarification rounds before the
	// call is handed off.
	maxClarifications = 2

	// maxTurns bounds the total conversation length.
	maxTurns = 20

	// historyDepth is how many recent turns the language model sees.
	historyDepth = 10
)

// EngineOption configures an [Engine].
type EngineOption func(*Engine)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithGate replaces the completeness gate. Defaults to the rule-only gate.
func WithGate(gate *Gate) EngineOption {
	return func(e *Engine) { e.gate = gate }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithGreeting overrides the opening line. Defaults to [PromptGreeting].
func WithGreeting(text string) EngineOption {
	return func(e *Engine) {
		if text != "" {
			e.greeting = text
		}
	}
}

// Engine drives the conversation state machine for all sessions. It holds no
// per-session state of its own — phase and counters live in the session
// store — so a single Engine serves every call.
type Engine struct {
	store    *session.Store
	llm      llm.Provider
	gate     *Gate
	greeting string
	logger   *slog.Logger
	metrics  *observe.Metrics
	now      func() time.Time
}

// NewEngine builds a conversation engine on top of the session store and a
// language model provider.
func NewEngine(store *session.Store, provider llm.Provider, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		llm:      provider,
		gate:     NewGate(),
		greeting: PromptGreeting,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// Greet opens the conversation: INIT → GREETING → LISTENING. Returns the
// greeting text to synthesize. Greeting an already-running conversation just
// re-arms LISTENING without repeating the greeting.
func (e *Engine) Greet(ctx context.Context, sessionID string) (string, error) {
	st, err := e.store.LoadDialog(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if st.Phase != "" && st.Phase != string(PhaseInit) {
		st.Phase = string(PhaseListening)
		return "", e.store.SaveDialog(ctx, sessionID, st)
	}

	st.Phase = string(PhaseListening)
	if err := e.store.SaveDialog(ctx, sessionID, st); err != nil {
		return "", err
	}
	e.appendHistory(ctx, sessionID, "assistant", e.greeting, 1)
	return e.greeting, nil
}

// RecordNudge counts a silence prompt against the conversation.
func (e *Engine) RecordNudge(ctx context.Context, sessionID string) error {
	st, err := e.store.LoadDialog(ctx, sessionID)
	if err != nil {
		return err
	}
	st.SilencePrompts++
	return e.store.SaveDialog(ctx, sessionID, st)
}

// Fail moves the conversation to ERROR → END and returns the final utterance
// to play before the session closes. Used for unrecoverable failures.
func (e *Engine) Fail(ctx context.Context, sessionID string) string {
	st, err := e.store.LoadDialog(ctx, sessionID)
	if err == nil {
		st.Phase = string(PhaseEnd)
		if err := e.store.SaveDialog(ctx, sessionID, st); err != nil {
			e.logger.WarnContext(ctx, "failed to persist error phase", "session_id", sessionID, "error", err)
		}
	}
	return PromptError
}

// ProcessTurn runs one completed user turn through the conversation state
// machine: completeness gate, confidence routing, language-model reply.
//
// The returned Outcome tells the transport what to play and whether the
// session ends. ProcessTurn persists the updated phase and counters before
// returning.
func (e *Engine) ProcessTurn(ctx context.Context, sessionID, text string, confidence float64) (Outcome, error) {
	st, err := e.store.LoadDialog(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if st.Phase == string(PhaseEnd) {
		return Outcome{Kind: OutcomeSilent, Phase: PhaseEnd}, nil
	}

	trimmed := strings.TrimSpace(text)
	combined := trimmed
	if st.PendingText != "" {
		combined = strings.TrimSpace(st.PendingText + " " + trimmed)
	}

	// Empty transcript: the buffer held no intelligible speech.
	if !hasAlnum(combined) {
		return e.clarify(ctx, sessionID, st, true)
	}

	// Completeness gate: hold the turn open while the caller finishes.
	if e.gate.Incomplete(ctx, combined) {
		st.Phase = string(PhaseListening)
		st.PendingText = combined
		if err := e.store.SaveDialog(ctx, sessionID, st); err != nil {
			return Outcome{}, err
		}
		e.logger.DebugContext(ctx, "turn held as incomplete", "session_id", sessionID, "pending", combined)
		return Outcome{Kind: OutcomeIncomplete, Phase: PhaseListening}, nil
	}

	route, soft := RouteTranscript(combined, confidence)
	if soft {
		e.logger.InfoContext(ctx, "accepting low-confidence transcript",
			"session_id", sessionID, "confidence", confidence)
	}

	switch route {
	case RouteReject:
		return e.clarify(ctx, sessionID, st, true)
	case RouteClarify:
		return e.clarify(ctx, sessionID, st, false)
	}

	return e.respond(ctx, sessionID, st, combined, confidence)
}

// clarify moves the conversation to CLARIFYING. counted distinguishes
// rejections (which consume a clarification round) from confirm requests
// (which do not). More than maxClarifications counted rounds escalates and
// ends the call.
func (e *Engine) clarify(ctx context.Context, sessionID string, st session.DialogState, counted bool) (Outcome, error) {
	if counted {
		st.ClarificationCount++
	}

	if st.ClarificationCount > maxClarifications {
		st.Phase = string(PhaseEnd)
		st.PendingText = ""
		if err := e.store.SaveDialog(ctx, sessionID, st); err != nil {
			return Outcome{}, err
		}
		e.appendHistory(ctx, sessionID, "assistant", PromptEscalate, 1)
		return Outcome{
			Kind:        OutcomeEnd,
			Text:        PromptEscalate,
			Phase:       PhaseEnd,
			CloseReason: session.CloseReasonError,
		}, nil
	}

	st.Phase = string(PhaseClarifying)
	st.PendingText = ""
	if err := e.store.SaveDialog(ctx, sessionID, st); err != nil {
		return Outcome{}, err
	}

	prompt := PromptConfirm
	if counted {
		prompt = PromptRepeat
	}
	e.appendHistory(ctx, sessionID, "assistant", prompt, 1)
	return Outcome{Kind: OutcomeClarify, Text: prompt, Phase: PhaseClarifying}, nil
}

// respond sends the accepted transcript to the language model and finishes
// the turn. A model failure recovers into LISTENING with an apology rather
// than killing the call.
func (e *Engine) respond(ctx context.Context, sessionID string, st session.DialogState, userText string, confidence float64) (Outcome, error) {
	st.Phase = string(PhaseResponding)
	st.PendingText = ""
	st.ClarificationCount = 0
	if err := e.store.SaveDialog(ctx, sessionID, st); err != nil {
		return Outcome{}, err
	}

	e.appendHistory(ctx, sessionID, "user", userText, confidence)

	messages, err := e.recentMessages(ctx, sessionID)
	if err != nil {
		e.logger.WarnContext(ctx, "failed to load history", "session_id", sessionID, "error", err)
		messages = []types.Message{{Role: "user", Content: userText}}
	}

	llmStart := e.now()
	resp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     messages,
	})
	e.metrics.LLMDuration.Record(ctx, time.Since(llmStart).Seconds())
	if err != nil {
		e.metrics.RecordProviderError(ctx, "llm", "complete")
		e.logger.ErrorContext(ctx, "language model call failed", "session_id", sessionID, "error", err)
		st.Phase = string(PhaseListening)
		if saveErr := e.store.SaveDialog(ctx, sessionID, st); saveErr != nil {
			return Outcome{}, saveErr
		}
		return Outcome{Kind: OutcomeReply, Text: PromptApology, Phase: PhaseListening}, nil
	}

	reply := strings.TrimSpace(resp.Content)
	e.appendHistory(ctx, sessionID, "assistant", reply, 1)

	st.TurnCount++
	if st.TurnCount >= maxTurns {
		st.Phase = string(PhaseEnd)
		if err := e.store.SaveDialog(ctx, sessionID, st); err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Kind:        OutcomeEnd,
			Text:        reply + " " + PromptWrapUp,
			UserText:    userText,
			Phase:       PhaseEnd,
			CloseReason: session.CloseReasonTurnLimit,
		}, nil
	}

	st.Phase = string(PhaseListening)
	if err := e.store.SaveDialog(ctx, sessionID, st); err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeReply, Text: reply, UserText: userText, Phase: PhaseListening}, nil
}

// recentMessages converts the newest-first history into the chronological
// message list the language model expects.
func (e *Engine) recentMessages(ctx context.Context, sessionID string) ([]types.Message, error) {
	records, err := e.store.History(ctx, sessionID, historyDepth)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dialog: empty history for session %s", sessionID)
	}

	messages := make([]types.Message, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		messages = append(messages, types.Message{Role: records[i].Role, Content: records[i].Text})
	}
	return messages, nil
}

// appendHistory records one utterance, logging rather than failing on error:
// a history write must never break a live turn.
func (e *Engine) appendHistory(ctx context.Context, sessionID, role, text string, confidence float64) {
	rec := types.TurnRecord{
		Role:       role,
		Text:       text,
		Confidence: confidence,
		Timestamp:  e.now(),
	}
	if err := e.store.AppendHistory(ctx, sessionID, rec); err != nil {
		e.logger.WarnContext(ctx, "failed to append history", "session_id", sessionID, "error", err)
	}
}
