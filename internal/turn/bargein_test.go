package turn

import "testing"

func TestBargeIn_TwoConsecutiveVoicedFrames(t *testing.T) {
	t.Parallel()
	d := NewBargeInDetector()

	if d.ProcessFrame(0.9) {
		t.Error("fired after a single voiced frame")
	}
	if !d.ProcessFrame(0.7) {
		t.Error("did not fire after two consecutive voiced frames")
	}
}

func TestBargeIn_RunResetOnQuietFrame(t *testing.T) {
	t.Parallel()
	d := NewBargeInDetector()

	d.ProcessFrame(0.9)
	d.ProcessFrame(0.2) // breaks the run
	if d.ProcessFrame(0.9) {
		t.Error("fired without two consecutive voiced frames")
	}
	if !d.ProcessFrame(0.9) {
		t.Error("did not fire once the run rebuilt")
	}
}

func TestBargeIn_ThresholdIsInclusive(t *testing.T) {
	t.Parallel()
	d := NewBargeInDetector()

	d.ProcessFrame(0.6)
	if !d.ProcessFrame(0.6) {
		t.Error("frames at exactly 0.6 must count toward the run")
	}
}

func TestBargeIn_SelfResetsAfterFiring(t *testing.T) {
	t.Parallel()
	d := NewBargeInDetector()

	d.ProcessFrame(0.9)
	if !d.ProcessFrame(0.9) {
		t.Fatal("expected fire")
	}
	// The run starts over: one frame is not enough.
	if d.ProcessFrame(0.9) {
		t.Error("fired immediately after a previous fire")
	}
}

func TestBargeIn_Reset(t *testing.T) {
	t.Parallel()
	d := NewBargeInDetector()

	d.ProcessFrame(0.9)
	d.Reset()
	if d.ProcessFrame(0.9) {
		t.Error("fired across an explicit reset")
	}
}
