package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/aishwarymishra09/voice-chat-be/internal/dialog"
	"github.com/aishwarymishra09/voice-chat-be/internal/engine"
	"github.com/aishwarymishra09/voice-chat-be/internal/session"
	"github.com/aishwarymishra09/voice-chat-be/internal/turn"
	"github.com/aishwarymishra09/voice-chat-be/pkg/audio"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/tts"
)

// tickInterval drives the turn engine's timers between audio chunks, so
// nudges and end-of-turn confirmation fire even when the client sends
// nothing.
const tickInterval = 100 * time.Millisecond

// wsMessage is the JSON envelope for all text frames on the voice socket.
// Audio travels as binary frames immediately after the wsMessage describing
// them.
type wsMessage struct {
	// Type is one of: ready, state, transcription, response, barge_in,
	// nudge, continuation_cue, comfort, error, close.
	Type string `json:"type"`

	SessionID  string  `json:"session_id,omitempty"`
	State      string  `json:"state,omitempty"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Seq        int     `json:"seq,omitempty"`
	Reason     string  `json:"reason,omitempty"`

	// MIME and DurationMs describe the binary audio frame that follows,
	// when the message carries one.
	MIME       string `json:"mime,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// jobKind selects what the stream worker does with a queued job.
type jobKind int

const (
	jobGreet jobKind = iota
	jobTurn
	jobPrompt
)

// job is one unit of pipeline work. Jobs run on a single worker goroutine so
// turns and prompts for a stream never interleave.
type job struct {
	kind jobKind

	// audio is the finalized turn PCM. Set for jobTurn.
	audio []byte

	// msgType and text describe the prompt to speak. Set for jobPrompt.
	msgType string
	text    string
	seq     int
}

// jobResult is what the worker hands back to the stream loop.
type jobResult struct {
	kind jobKind

	// turn is the pipeline result. Set for jobGreet and jobTurn.
	turn *engine.TurnResult

	// msg and clip are the prompt message and its audio. Set for jobPrompt.
	msg  wsMessage
	clip tts.Clip
}

// voiceStream is the per-connection actor: one reader goroutine, one pipeline
// worker, and a main loop that owns the turn engine and the socket writes.
type voiceStream struct {
	srv       *Server
	conn      *websocket.Conn
	sessionID string

	turns *turn.Engine
	eval  *turn.Evaluator
	barge *turn.BargeInDetector
	norm  *audio.Normalizer

	// botSpeakingUntil marks the expected end of the current bot playback.
	// While it lies in the future, caller audio is screened for barge-in
	// instead of being fed to the turn engine.
	botSpeakingUntil time.Time

	jobs    chan job
	results chan jobResult

	// control carries in-band client control messages (ping, end).
	control chan string
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.manager.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("voice: session lookup failed", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "could not load session")
		return
	}
	if sess.Status == session.StatusClosed {
		writeError(w, http.StatusConflict, "session already closed")
		return
	}

	eval, err := turn.NewEvaluator(s.vad)
	if err != nil {
		s.logger.Error("voice: vad session failed", "session_id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "voice detection unavailable")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		_ = eval.Close()
		s.logger.Warn("voice: websocket accept failed", "session_id", id, "err", err)
		return
	}

	vs := &voiceStream{
		srv:       s,
		conn:      conn,
		sessionID: id,
		turns:     turn.NewEngine(s.timing),
		eval:      eval,
		barge:     turn.NewBargeInDetector(),
		norm:      &audio.Normalizer{Source: sourceFormat(sess.Metadata)},
		jobs:      make(chan job, 8),
		results:   make(chan jobResult, 8),
		control:   make(chan string, 4),
	}
	vs.run(r.Context())
}

// sourceFormat reads the client capture format from session metadata.
// Browsers typically capture 48 kHz stereo; absent or malformed metadata
// means the client already sends the canonical format.
func sourceFormat(metadata map[string]string) audio.Format {
	src := audio.Canonical
	if v, err := strconv.Atoi(metadata["sample_rate"]); err == nil && v > 0 {
		src.SampleRate = v
	}
	if v, err := strconv.Atoi(metadata["channels"]); err == nil && v > 0 {
		src.Channels = v
	}
	return src
}

// run owns the connection until the caller hangs up or the session ends.
func (vs *voiceStream) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer vs.eval.Close()
	defer vs.conn.Close(websocket.StatusNormalClosure, "session ended")

	logger := vs.srv.logger.With("session_id", vs.sessionID)
	logger.Info("voice: stream opened")

	if err := vs.srv.manager.Touch(ctx, vs.sessionID); err != nil {
		logger.Warn("voice: initial touch failed", "err", err)
	}

	inbound := make(chan []byte, 16)
	readErr := make(chan error, 1)
	go vs.readLoop(ctx, inbound, readErr)
	go vs.worker(ctx)

	if err := vs.send(ctx, wsMessage{Type: "ready", SessionID: vs.sessionID}); err != nil {
		return
	}
	vs.jobs <- job{kind: jobGreet}

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-readErr:
			logger.Info("voice: client disconnected", "err", err)
			if cerr := vs.srv.manager.Close(ctx, vs.sessionID, session.CloseReasonClient); cerr != nil {
				logger.Warn("voice: close on disconnect failed", "err", cerr)
			}
			return

		case chunk := <-inbound:
			if !vs.handleChunk(ctx, logger, chunk) {
				return
			}

		case typ := <-vs.control:
			switch typ {
			case "ping":
				if !vs.touch(ctx, logger) {
					return
				}
			case "end":
				logger.Info("voice: client ended session")
				vs.closeSession(ctx, logger, session.CloseReasonClient)
				return
			}

		case now := <-ticker.C:
			if !vs.handleEvents(ctx, logger, now, vs.turns.Tick(now)) {
				return
			}

		case res := <-vs.results:
			if !vs.handleResult(ctx, logger, res) {
				return
			}
		}
	}
}

// readLoop pumps binary audio frames from the socket. Text frames carry
// in-band control (ping, end); anything else is dropped.
func (vs *voiceStream) readLoop(ctx context.Context, inbound chan<- []byte, readErr chan<- error) {
	for {
		typ, data, err := vs.conn.Read(ctx)
		if err != nil {
			select {
			case readErr <- err:
			case <-ctx.Done():
			}
			return
		}
		if typ != websocket.MessageBinary {
			vs.srv.metrics.RecordWSMessage(ctx, "in", "text")
			var msg wsMessage
			if json.Unmarshal(data, &msg) == nil && (msg.Type == "ping" || msg.Type == "end") {
				select {
				case vs.control <- msg.Type:
				case <-ctx.Done():
					return
				}
			}
			continue
		}
		vs.srv.metrics.RecordWSMessage(ctx, "in", "audio")
		select {
		case inbound <- data:
		case <-ctx.Done():
			return
		}
	}
}

// worker runs pipeline jobs one at a time so a slow turn cannot interleave
// with a prompt for the same stream.
func (vs *voiceStream) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-vs.jobs:
			res := vs.runJob(ctx, j)
			select {
			case vs.results <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (vs *voiceStream) runJob(ctx context.Context, j job) jobResult {
	logger := vs.srv.logger.With("session_id", vs.sessionID)

	switch j.kind {
	case jobGreet:
		tr, err := vs.srv.processor.Greet(ctx, vs.sessionID)
		if err != nil {
			logger.Error("voice: greeting failed", "err", err)
			return jobResult{kind: jobGreet, turn: &engine.TurnResult{}}
		}
		return jobResult{kind: jobGreet, turn: tr}

	case jobTurn:
		tr, err := vs.srv.processor.ProcessTurn(ctx, vs.sessionID, j.audio)
		if err != nil {
			logger.Error("voice: turn processing failed", "err", err)
			text := vs.srv.processor.Dialog().Fail(ctx, vs.sessionID)
			clip, _ := vs.srv.processor.Speak(ctx, text)
			return jobResult{kind: jobTurn, turn: &engine.TurnResult{
				Outcome: dialog.Outcome{
					Kind:        dialog.OutcomeEnd,
					Text:        text,
					Phase:       dialog.PhaseEnd,
					CloseReason: session.CloseReasonError,
				},
				Clip: clip,
			}}
		}
		return jobResult{kind: jobTurn, turn: tr}

	default: // jobPrompt
		if j.msgType == "nudge" {
			if err := vs.srv.processor.Dialog().RecordNudge(ctx, vs.sessionID); err != nil {
				logger.Warn("voice: recording nudge failed", "err", err)
			}
		}
		clip, err := vs.srv.processor.Speak(ctx, j.text)
		if err != nil {
			logger.Warn("voice: prompt synthesis failed", "type", j.msgType, "err", err)
		}
		return jobResult{
			kind: jobPrompt,
			msg:  wsMessage{Type: j.msgType, Text: j.text, Seq: j.seq},
			clip: clip,
		}
	}
}

// handleChunk routes one inbound audio chunk: barge-in screening while the
// bot is speaking, the turn engine otherwise. Returns false to end the
// stream.
func (vs *voiceStream) handleChunk(ctx context.Context, logger *slog.Logger, chunk []byte) bool {
	now := time.Now()

	chunk = vs.norm.Normalize(chunk)
	if chunk == nil {
		return true
	}

	if now.Before(vs.botSpeakingUntil) {
		for _, prob := range vs.eval.FrameProbabilities(chunk) {
			if !vs.barge.ProcessFrame(prob) {
				continue
			}
			logger.Info("voice: barge-in")
			vs.srv.metrics.BargeIns.Add(ctx, 1)
			vs.botSpeakingUntil = time.Time{}
			vs.turns.Interrupt(now)
			if err := vs.send(ctx, wsMessage{Type: "barge_in"}); err != nil {
				return false
			}
			// The interrupting chunk opens a fresh turn below.
			break
		}
		if !vs.botSpeakingUntil.IsZero() {
			return true
		}
	}

	v := vs.eval.Evaluate(chunk)
	return vs.handleEvents(ctx, logger, now, vs.turns.ProcessChunk(now, chunk, v))
}

// handleEvents reacts to turn engine output. Returns false to end the stream.
func (vs *voiceStream) handleEvents(ctx context.Context, logger *slog.Logger, now time.Time, events []turn.Event) bool {
	for _, ev := range events {
		switch ev.Type {
		case turn.TurnStart:
			vs.srv.metrics.RecordTurnEvent(ctx, "turn_start")
			if !vs.touch(ctx, logger) {
				return false
			}
			if err := vs.send(ctx, wsMessage{Type: "state", State: turn.StateListening.String()}); err != nil {
				return false
			}

		case turn.TurnEnd:
			vs.srv.metrics.RecordTurnEvent(ctx, "turn_end")
			if !vs.touch(ctx, logger) {
				return false
			}
			vs.jobs <- job{kind: jobTurn, audio: ev.Audio}

		case turn.Nudge:
			vs.srv.metrics.RecordTurnEvent(ctx, "nudge")
			vs.jobs <- job{kind: jobPrompt, msgType: "nudge", text: dialog.PromptNudge, seq: ev.NudgeSeq}

		case turn.ContinuationCue:
			vs.srv.metrics.RecordTurnEvent(ctx, "continuation")
			vs.jobs <- job{kind: jobPrompt, msgType: "continuation_cue", text: dialog.PromptContinuation}

		case turn.ComfortNoise:
			vs.srv.metrics.RecordTurnEvent(ctx, "comfort")
			vs.jobs <- job{kind: jobPrompt, msgType: "comfort", text: dialog.PromptComfort}
		}
	}
	return true
}

// handleResult delivers a finished job to the client. Returns false to end
// the stream.
func (vs *voiceStream) handleResult(ctx context.Context, logger *slog.Logger, res jobResult) bool {
	switch res.kind {
	case jobGreet, jobTurn:
		tr := res.turn
		if tr.Transcript != "" {
			msg := wsMessage{Type: "transcription", Text: tr.Transcript, Confidence: tr.Confidence}
			if err := vs.send(ctx, msg); err != nil {
				return false
			}
		}

		switch tr.Outcome.Kind {
		case dialog.OutcomeIncomplete:
			// The caller may have resumed speaking during transcription
			// latency; that continuation already opened a new turn, and
			// re-arming the wait here would discard its audio. The held
			// text is prefixed to the new turn's transcript either way.
			if vs.turns.State() == turn.StateIdle {
				vs.turns.TurnIncomplete(time.Now())
			}
			return true

		case dialog.OutcomeSilent:
			return true

		case dialog.OutcomeEnd:
			if !vs.speak(ctx, wsMessage{
				Type:   "response",
				Text:   tr.Outcome.Text,
				State:  string(tr.Outcome.Phase),
				Reason: tr.Outcome.CloseReason,
			}, tr.Clip) {
				return false
			}
			vs.closeSession(ctx, logger, tr.Outcome.CloseReason)
			return false

		default:
			if tr.Outcome.Text == "" {
				return true
			}
			return vs.speak(ctx, wsMessage{
				Type:  "response",
				Text:  tr.Outcome.Text,
				State: string(tr.Outcome.Phase),
			}, tr.Clip)
		}

	default: // jobPrompt
		return vs.speak(ctx, res.msg, res.clip)
	}
}

// speak sends a text message and, when synthesis produced audio, the binary
// clip after it, then opens the barge-in window for the clip's duration.
func (vs *voiceStream) speak(ctx context.Context, msg wsMessage, clip tts.Clip) bool {
	if len(clip.Audio) > 0 {
		msg.MIME = clip.MIME
		msg.DurationMs = clip.Duration.Milliseconds()
	}
	if err := vs.send(ctx, msg); err != nil {
		return false
	}
	if len(clip.Audio) == 0 {
		return true
	}
	if err := vs.conn.Write(ctx, websocket.MessageBinary, clip.Audio); err != nil {
		return false
	}
	vs.srv.metrics.RecordWSMessage(ctx, "out", "audio")
	vs.botSpeakingUntil = time.Now().Add(clip.Duration)
	vs.barge.Reset()
	return true
}

// touch keeps the session alive; a closed or vanished session ends the
// stream.
func (vs *voiceStream) touch(ctx context.Context, logger *slog.Logger) bool {
	err := vs.srv.manager.Touch(ctx, vs.sessionID)
	switch {
	case err == nil:
		return true
	case errors.Is(err, session.ErrClosed), errors.Is(err, session.ErrNotFound):
		logger.Info("voice: session expired under live stream")
		_ = vs.send(ctx, wsMessage{Type: "close", Reason: session.CloseReasonIdle})
		return false
	default:
		logger.Warn("voice: touch failed", "err", err)
		return true
	}
}

// closeSession ends the session after a final utterance and tells the client.
func (vs *voiceStream) closeSession(ctx context.Context, logger *slog.Logger, reason string) {
	if err := vs.srv.manager.Close(ctx, vs.sessionID, reason); err != nil {
		logger.Warn("voice: session close failed", "err", err)
		return
	}
	_ = vs.send(ctx, wsMessage{Type: "close", Reason: reason})
}

// send marshals and writes one text frame.
func (vs *voiceStream) send(ctx context.Context, msg wsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := vs.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return err
	}
	vs.srv.metrics.RecordWSMessage(ctx, "out", msg.Type)
	return nil
}
