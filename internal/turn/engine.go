package turn

import (
	"time"

	"github.com/aishwarymishra09/voice-chat-be/pkg/audio"
)

// State is the turn-taking engine state.
type State int

const (
	// StateIdle: no open turn; waiting for the caller to start speaking.
	StateIdle State = iota

	// StateListening: an open turn is accumulating audio.
	StateListening

	// StateCandidateEnd: a pause long enough to be a possible end of turn.
	StateCandidateEnd

	// StateWaitingIncomplete: the last utterance was linguistically incomplete;
	// holding the floor briefly for a continuation.
	StateWaitingIncomplete
)

// String returns the lowercase name of the state.
func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateCandidateEnd:
		return "candidate_end"
	case StateWaitingIncomplete:
		return "waiting_incomplete"
	default:
		return "idle"
	}
}

// EventType enumerates engine outputs.
type EventType int

const (
	// TurnStart: the caller began speaking; a turn is now open.
	TurnStart EventType = iota

	// TurnEnd: the turn is over; Event.Audio holds the buffered PCM.
	TurnEnd

	// Nudge: prolonged silence with no open turn; prompt the caller.
	Nudge

	// ContinuationCue: brief verbal encouragement after an incomplete utterance.
	ContinuationCue

	// ComfortNoise: the continuation window expired; a filler closes it out.
	ComfortNoise
)

// Event is an output of the turn-taking engine.
type Event struct {
	Type EventType

	// Audio is the buffered turn PCM. Set only on TurnEnd.
	Audio []byte

	// Speech is the accumulated voiced duration of the turn. Set on TurnEnd.
	Speech time.Duration

	// NudgeSeq is the 1-based nudge number within the current waiting period.
	// Set only on Nudge.
	NudgeSeq int
}

// Timing holds the turn boundary parameters. All decisions are made from the
// timestamps supplied by the caller, so replaying a stream with identical
// timestamps reproduces identical events.
type Timing struct {
	// CandidateEnd is the pause that makes an end of turn plausible.
	CandidateEnd time.Duration

	// FinalEnd is the additional pause that confirms the end.
	FinalEnd time.Duration

	// MinSpeech is the minimum voiced time for a turn to be emitted at all.
	MinSpeech time.Duration

	// Nudge is the idle silence before each "are you there" prompt.
	Nudge time.Duration

	// MaxNudges caps prompts per waiting period; after that the engine is silent.
	MaxNudges int

	// IncompleteWait is the pause before a continuation cue is played.
	IncompleteWait time.Duration

	// ComfortWait is the pause that closes the continuation window.
	ComfortWait time.Duration
}

// DefaultTiming returns the production turn boundary parameters.
func DefaultTiming() Timing {
	return Timing{
		CandidateEnd:   1000 * time.Millisecond,
		FinalEnd:       400 * time.Millisecond,
		MinSpeech:      300 * time.Millisecond,
		Nudge:          1500 * time.Millisecond,
		MaxNudges:      3,
		IncompleteWait: 300 * time.Millisecond,
		ComfortWait:    1500 * time.Millisecond,
	}
}

// Engine is the four-state turn boundary detector. It is driven by
// ProcessChunk for arriving audio and Tick for the passage of time; within a
// single call, timer transitions are evaluated before the chunk's verdict.
//
// An Engine belongs to a single stream and is not safe for concurrent use.
type Engine struct {
	timing Timing

	state  State
	buf    []byte
	speech time.Duration

	// lastVoice is the end of the most recent voiced chunk in the open turn.
	lastVoice time.Time

	// idleSince anchors the nudge clock while no turn is open.
	idleSince time.Time
	nudges    int

	// incompleteSince anchors the continuation window.
	incompleteSince time.Time
	cueSent         bool
}

// NewEngine creates an idle Engine. The zero Timing field values are replaced
// by defaults.
func NewEngine(timing Timing) *Engine {
	def := DefaultTiming()
	if timing.CandidateEnd <= 0 {
		timing.CandidateEnd = def.CandidateEnd
	}
	if timing.FinalEnd <= 0 {
		timing.FinalEnd = def.FinalEnd
	}
	if timing.MinSpeech <= 0 {
		timing.MinSpeech = def.MinSpeech
	}
	if timing.Nudge <= 0 {
		timing.Nudge = def.Nudge
	}
	if timing.MaxNudges <= 0 {
		timing.MaxNudges = def.MaxNudges
	}
	if timing.IncompleteWait <= 0 {
		timing.IncompleteWait = def.IncompleteWait
	}
	if timing.ComfortWait <= 0 {
		timing.ComfortWait = def.ComfortWait
	}
	return &Engine{timing: timing}
}

// State returns the current engine state.
func (e *Engine) State() State { return e.state }

// BufferedBytes returns the size of the open turn's audio buffer.
func (e *Engine) BufferedBytes() int { return len(e.buf) }

// Tick advances the engine's timers to now and returns any events that fire.
func (e *Engine) Tick(now time.Time) []Event {
	return e.tick(now, false)
}

// tick applies the timer transitions. voiced suppresses the idle nudge: a
// voiced chunk landing on the nudge deadline opens a turn instead of
// prompting over the caller.
func (e *Engine) tick(now time.Time, voiced bool) []Event {
	var events []Event

	switch e.state {
	case StateIdle:
		if e.idleSince.IsZero() {
			e.idleSince = now
			break
		}
		if voiced || e.nudges >= e.timing.MaxNudges {
			break
		}
		if now.Sub(e.idleSince) >= e.timing.Nudge {
			e.nudges++
			e.idleSince = now
			events = append(events, Event{Type: Nudge, NudgeSeq: e.nudges})
		}

	case StateListening, StateCandidateEnd:
		// Both checks run so a late tick can pass through the candidate
		// window and confirm the end in one step.
		if e.state == StateListening && !e.lastVoice.IsZero() &&
			now.Sub(e.lastVoice) >= e.timing.CandidateEnd {
			e.state = StateCandidateEnd
		}
		if e.state == StateCandidateEnd &&
			now.Sub(e.lastVoice) >= e.timing.CandidateEnd+e.timing.FinalEnd {
			events = append(events, e.finalize(now)...)
		}

	case StateWaitingIncomplete:
		elapsed := now.Sub(e.incompleteSince)
		if !e.cueSent && elapsed >= e.timing.IncompleteWait {
			e.cueSent = true
			events = append(events, Event{Type: ContinuationCue})
		}
		if elapsed >= e.timing.ComfortWait {
			events = append(events, Event{Type: ComfortNoise})
			e.toIdle(now)
		}
	}

	return events
}

// ProcessChunk feeds one classified audio chunk into the engine. Timer
// transitions at now are applied first, then the verdict — except the idle
// nudge, which a voiced chunk at the deadline cancels rather than racing.
func (e *Engine) ProcessChunk(now time.Time, chunk []byte, v Verdict) []Event {
	events := e.tick(now, e.isVoiced(v))

	voiced := e.isVoiced(v)
	switch e.state {
	case StateIdle:
		if voiced {
			e.state = StateListening
			e.buf = append(e.buf[:0:0], chunk...)
			e.speech = audio.PCMDuration(len(chunk))
			e.lastVoice = now
			e.nudges = 0
			events = append(events, Event{Type: TurnStart})
		}

	case StateListening:
		e.buf = append(e.buf, chunk...)
		if voiced {
			e.lastVoice = now
			e.speech += audio.PCMDuration(len(chunk))
		}

	case StateCandidateEnd:
		e.buf = append(e.buf, chunk...)
		if voiced {
			// The pause was intra-turn; resume the same turn.
			e.state = StateListening
			e.lastVoice = now
			e.speech += audio.PCMDuration(len(chunk))
		}

	case StateWaitingIncomplete:
		if voiced {
			// Continuation of the same logical turn; the previous audio was
			// already emitted, so a fresh buffer starts here.
			e.state = StateListening
			e.buf = append(e.buf[:0:0], chunk...)
			e.speech = audio.PCMDuration(len(chunk))
			e.lastVoice = now
			e.cueSent = false
		}
	}

	return events
}

// TurnIncomplete opens the continuation window. The dialogue layer calls this
// after a TURN_END whose transcript was judged linguistically incomplete.
func (e *Engine) TurnIncomplete(now time.Time) {
	e.state = StateWaitingIncomplete
	e.incompleteSince = now
	e.cueSent = false
	e.buf = nil
	e.speech = 0
}

// Interrupt discards any open turn, for barge-in or stream restart. The next
// voiced chunk starts a fresh turn.
func (e *Engine) Interrupt(now time.Time) {
	e.toIdle(now)
}

// isVoiced applies the state-dependent verdict interpretation: Uncertain
// counts as voice when waiting for speech onset and as silence inside a turn.
func (e *Engine) isVoiced(v Verdict) bool {
	switch e.state {
	case StateIdle, StateWaitingIncomplete:
		return v.Kind == Voice || v.Kind == Uncertain
	default:
		return v.Kind == Voice
	}
}

// finalize closes the open turn: emit it if enough speech accumulated,
// otherwise discard it as noise.
func (e *Engine) finalize(now time.Time) []Event {
	speech, buf := e.speech, e.buf
	e.toIdle(now)
	if speech < e.timing.MinSpeech {
		return nil
	}
	return []Event{{Type: TurnEnd, Audio: buf, Speech: speech}}
}

// toIdle resets per-turn state and restarts the nudge clock.
func (e *Engine) toIdle(now time.Time) {
	e.state = StateIdle
	e.buf = nil
	e.speech = 0
	e.lastVoice = time.Time{}
	e.idleSince = now
	e.cueSent = false
}
