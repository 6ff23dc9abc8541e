package energy_test

import (
	"encoding/binary"
	"testing"

	"github.com/aishwarymishra09/voice-chat-be/pkg/audio"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/vad"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/vad/energy"
)

// frameWithAmplitude builds one 20 ms frame whose every sample has the given
// normalized amplitude.
func frameWithAmplitude(level float64) []byte {
	sample := int16(level * 32768)
	frame := make([]byte, audio.FrameBytes)
	for i := 0; i < len(frame); i += 2 {
		binary.LittleEndian.PutUint16(frame[i:], uint16(sample))
	}
	return frame
}

func newSession(t *testing.T) vad.SessionHandle {
	t.Helper()
	sess, err := energy.New().NewSession(vad.Config{
		SampleRate:      audio.SampleRate,
		FrameSizeMs:     20,
		SpeechThreshold: 0.5,
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestSession_Probabilities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		amplitude float64
		wantProb  float64
	}{
		{"clear speech", 0.10, 1.0},
		{"at clear edge", 0.031, 1.0},
		{"uncertain", 0.020, 0.5},
		{"weak signal", 0.007, 0.3},
		{"silence", 0.001, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sess := newSession(t)
			ev, err := sess.ProcessFrame(frameWithAmplitude(tt.amplitude))
			if err != nil {
				t.Fatalf("ProcessFrame: %v", err)
			}
			if ev.Probability != tt.wantProb {
				t.Errorf("probability: got %v, want %v", ev.Probability, tt.wantProb)
			}
		})
	}
}

func TestSession_SpeechTransitions(t *testing.T) {
	t.Parallel()
	sess := newSession(t)

	loud := frameWithAmplitude(0.10)
	quiet := frameWithAmplitude(0.001)

	ev, _ := sess.ProcessFrame(loud)
	if ev.Type != vad.VADSpeechStart {
		t.Errorf("first loud frame: got %v, want VADSpeechStart", ev.Type)
	}
	ev, _ = sess.ProcessFrame(loud)
	if ev.Type != vad.VADSpeechContinue {
		t.Errorf("second loud frame: got %v, want VADSpeechContinue", ev.Type)
	}
	ev, _ = sess.ProcessFrame(quiet)
	if ev.Type != vad.VADSpeechEnd {
		t.Errorf("quiet after speech: got %v, want VADSpeechEnd", ev.Type)
	}
	ev, _ = sess.ProcessFrame(quiet)
	if ev.Type != vad.VADSilence {
		t.Errorf("sustained quiet: got %v, want VADSilence", ev.Type)
	}

	// Reset clears the in-speech flag.
	sess.ProcessFrame(loud)
	sess.Reset()
	ev, _ = sess.ProcessFrame(loud)
	if ev.Type != vad.VADSpeechStart {
		t.Errorf("after reset: got %v, want VADSpeechStart", ev.Type)
	}
}

func TestSession_WrongFrameSize(t *testing.T) {
	t.Parallel()
	sess := newSession(t)
	if _, err := sess.ProcessFrame(make([]byte, 100)); err == nil {
		t.Error("expected error for wrong frame size")
	}
}

func TestSession_Closed(t *testing.T) {
	t.Parallel()
	sess := newSession(t)
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := sess.ProcessFrame(frameWithAmplitude(0.1)); err == nil {
		t.Error("expected error after Close")
	}
}

func TestNewSession_InvalidConfig(t *testing.T) {
	t.Parallel()
	eng := energy.New()
	if _, err := eng.NewSession(vad.Config{SampleRate: 0, FrameSizeMs: 20}); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := eng.NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 0}); err == nil {
		t.Error("expected error for zero frame size")
	}
	if _, err := eng.NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 20, SpeechThreshold: 1.5}); err == nil {
		t.Error("expected error for out-of-range threshold")
	}
}

func TestMeanAmplitude(t *testing.T) {
	t.Parallel()
	if got := energy.MeanAmplitude(nil); got != 0 {
		t.Errorf("empty input: got %v, want 0", got)
	}
	frame := frameWithAmplitude(0.25)
	got := energy.MeanAmplitude(frame)
	if got < 0.24 || got > 0.26 {
		t.Errorf("got %v, want ~0.25", got)
	}
}
