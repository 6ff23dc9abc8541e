package turn

import (
	"testing"
	"time"
)

// ─── helpers ───────────────────────────────────────────────────────────────

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(ms int) time.Time { return t0.Add(time.Duration(ms) * time.Millisecond) }

// chunk200 is 200 ms of canonical PCM (content irrelevant to the engine).
func chunk200() []byte { return make([]byte, 6400) }

var (
	voice     = Verdict{Kind: Voice, Probability: 1.0}
	uncertain = Verdict{Kind: Uncertain, Probability: 0.5}
	silence   = Verdict{Kind: Silence, Probability: 0.0}
)

func eventTypes(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func wantEvents(t *testing.T, events []Event, want ...EventType) {
	t.Helper()
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

// ─── turn boundary detection ───────────────────────────────────────────────

func TestEngine_CompleteTurn(t *testing.T) {
	t.Parallel()
	e := NewEngine(Timing{})

	events := e.ProcessChunk(at(0), chunk200(), voice)
	wantEvents(t, events, TurnStart)
	if e.State() != StateListening {
		t.Fatalf("state: got %v, want listening", e.State())
	}

	e.ProcessChunk(at(200), chunk200(), voice)

	// Silence builds toward candidate end (1000 ms after last voice at 200).
	for ms := 400; ms <= 1000; ms += 200 {
		wantEvents(t, e.ProcessChunk(at(ms), chunk200(), silence))
	}
	if e.State() != StateListening {
		t.Fatalf("state at 1000ms: got %v, want listening", e.State())
	}
	wantEvents(t, e.ProcessChunk(at(1200), chunk200(), silence))
	if e.State() != StateCandidateEnd {
		t.Fatalf("state at 1200ms: got %v, want candidate_end", e.State())
	}

	// Final end confirms 1400 ms after last voice.
	events = e.ProcessChunk(at(1600), chunk200(), silence)
	wantEvents(t, events, TurnEnd)
	if events[0].Speech != 400*time.Millisecond {
		t.Errorf("speech: got %v, want 400ms", events[0].Speech)
	}
	if len(events[0].Audio) == 0 {
		t.Error("turn end carried no audio")
	}
	if e.State() != StateIdle {
		t.Errorf("state after turn end: got %v, want idle", e.State())
	}
	if e.BufferedBytes() != 0 {
		t.Errorf("buffer not cleared: %d bytes", e.BufferedBytes())
	}
}

func TestEngine_IntraTurnPauseResumes(t *testing.T) {
	t.Parallel()
	e := NewEngine(Timing{})

	e.ProcessChunk(at(0), chunk200(), voice)
	for ms := 200; ms <= 1200; ms += 200 {
		e.ProcessChunk(at(ms), chunk200(), silence)
	}
	if e.State() != StateCandidateEnd {
		t.Fatalf("state: got %v, want candidate_end", e.State())
	}

	// Voice during the confirmation window resumes the same turn.
	wantEvents(t, e.ProcessChunk(at(1300), chunk200(), voice))
	if e.State() != StateListening {
		t.Fatalf("state after resume: got %v, want listening", e.State())
	}

	// The eventual turn end carries audio from both segments.
	events := e.ProcessChunk(at(1300+1500), chunk200(), silence)
	wantEvents(t, events, TurnEnd)
	if events[0].Speech != 400*time.Millisecond {
		t.Errorf("speech: got %v, want 400ms", events[0].Speech)
	}
}

func TestEngine_ShortBlipDiscarded(t *testing.T) {
	t.Parallel()
	e := NewEngine(Timing{})

	// A single 200 ms voiced chunk is below the 300 ms speech floor.
	e.ProcessChunk(at(0), chunk200(), voice)
	events := e.Tick(at(1500))
	wantEvents(t, events)
	if e.State() != StateIdle {
		t.Errorf("state: got %v, want idle", e.State())
	}
}

func TestEngine_UncertainInterpretation(t *testing.T) {
	t.Parallel()
	e := NewEngine(Timing{})

	// Uncertain opens a turn from idle...
	events := e.ProcessChunk(at(0), chunk200(), uncertain)
	wantEvents(t, events, TurnStart)

	// ...but counts as silence inside the turn: with no clear voice after
	// t=0, the candidate clock runs from there.
	for ms := 200; ms <= 1200; ms += 200 {
		e.ProcessChunk(at(ms), chunk200(), uncertain)
	}
	if e.State() != StateCandidateEnd {
		t.Errorf("state: got %v, want candidate_end", e.State())
	}
}

// ─── nudges ────────────────────────────────────────────────────────────────

func TestEngine_NudgesCappedAndReset(t *testing.T) {
	t.Parallel()
	e := NewEngine(Timing{})

	e.Tick(at(0)) // arm the nudge clock

	events := e.Tick(at(1500))
	wantEvents(t, events, Nudge)
	if events[0].NudgeSeq != 1 {
		t.Errorf("nudge seq: got %d, want 1", events[0].NudgeSeq)
	}
	wantEvents(t, e.Tick(at(3000)), Nudge)
	wantEvents(t, e.Tick(at(4500)), Nudge)

	// Cap reached: further silence stays silent.
	wantEvents(t, e.Tick(at(6000)))
	wantEvents(t, e.Tick(at(60000)))

	// A turn resets the counter.
	e.ProcessChunk(at(61000), chunk200(), voice)
	e.Interrupt(at(61200))
	wantEvents(t, e.Tick(at(61200+1500)), Nudge)
}

func TestEngine_VoiceAtNudgeDeadlineStartsTurnWithoutNudge(t *testing.T) {
	t.Parallel()
	e := NewEngine(Timing{})

	e.Tick(at(0)) // arm the nudge clock

	// Speech landing exactly on the nudge deadline opens the turn; the
	// prompt must not fire over the caller.
	events := e.ProcessChunk(at(1500), chunk200(), voice)
	wantEvents(t, events, TurnStart)

	// Same boundary with an uncertain verdict, which counts as voice while
	// idle.
	e = NewEngine(Timing{})
	e.Tick(at(0))
	wantEvents(t, e.ProcessChunk(at(1500), chunk200(), uncertain), TurnStart)

	// A silent chunk at the deadline still nudges.
	e = NewEngine(Timing{})
	e.Tick(at(0))
	wantEvents(t, e.ProcessChunk(at(1500), chunk200(), silence), Nudge)
}

// ─── continuation window ───────────────────────────────────────────────────

func TestEngine_IncompleteContinuation(t *testing.T) {
	t.Parallel()
	e := NewEngine(Timing{})

	e.TurnIncomplete(at(0))
	if e.State() != StateWaitingIncomplete {
		t.Fatalf("state: got %v, want waiting_incomplete", e.State())
	}

	// Cue after 300 ms, exactly once.
	wantEvents(t, e.Tick(at(100)))
	wantEvents(t, e.Tick(at(300)), ContinuationCue)
	wantEvents(t, e.Tick(at(600)))

	// Voice resumes the turn with a fresh buffer.
	events := e.ProcessChunk(at(700), chunk200(), voice)
	wantEvents(t, events)
	if e.State() != StateListening {
		t.Fatalf("state: got %v, want listening", e.State())
	}
	if e.BufferedBytes() != 6400 {
		t.Errorf("buffer: got %d bytes, want 6400", e.BufferedBytes())
	}
}

func TestEngine_IncompleteWindowExpires(t *testing.T) {
	t.Parallel()
	e := NewEngine(Timing{})

	e.TurnIncomplete(at(0))
	wantEvents(t, e.Tick(at(300)), ContinuationCue)
	events := e.Tick(at(1500))
	wantEvents(t, events, ComfortNoise)
	if e.State() != StateIdle {
		t.Errorf("state: got %v, want idle", e.State())
	}
}

// ─── interrupts and overrides ──────────────────────────────────────────────

func TestEngine_Interrupt(t *testing.T) {
	t.Parallel()
	e := NewEngine(Timing{})

	e.ProcessChunk(at(0), chunk200(), voice)
	e.ProcessChunk(at(200), chunk200(), voice)
	e.Interrupt(at(300))
	if e.State() != StateIdle {
		t.Fatalf("state: got %v, want idle", e.State())
	}
	if e.BufferedBytes() != 0 {
		t.Errorf("buffer survived interrupt: %d bytes", e.BufferedBytes())
	}

	// Next voice starts a fresh turn.
	wantEvents(t, e.ProcessChunk(at(400), chunk200(), voice), TurnStart)
}

func TestEngine_TimingOverrides(t *testing.T) {
	t.Parallel()
	e := NewEngine(Timing{CandidateEnd: 500 * time.Millisecond, FinalEnd: 100 * time.Millisecond, MinSpeech: 100 * time.Millisecond})

	e.ProcessChunk(at(0), chunk200(), voice)
	wantEvents(t, e.ProcessChunk(at(550), chunk200(), silence))
	if e.State() != StateCandidateEnd {
		t.Fatalf("state: got %v, want candidate_end", e.State())
	}
	wantEvents(t, e.Tick(at(650)), TurnEnd)
}

// ─── determinism ───────────────────────────────────────────────────────────

func TestEngine_ReplayIsDeterministic(t *testing.T) {
	t.Parallel()

	run := func() []EventType {
		e := NewEngine(Timing{})
		var all []Event
		verdicts := []Verdict{voice, voice, silence, uncertain, silence, silence, silence, silence, silence, voice, silence}
		for i, v := range verdicts {
			all = append(all, e.ProcessChunk(at(i*200), chunk200(), v)...)
		}
		all = append(all, e.Tick(at(5000))...)
		return eventTypes(all)
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("replay diverged: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("replay diverged at %d: %v vs %v", i, a, b)
		}
	}
}
