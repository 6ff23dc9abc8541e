// Package turn implements the human-like turn-taking core: per-chunk voice
// verdicts, the four-state turn boundary engine, and barge-in detection.
//
// The pipeline operates on 16 kHz mono 16-bit PCM in 20 ms frames. Chunks of
// any byte length are accepted; incomplete trailing frames fall back to
// whole-chunk energy gating.
package turn

import (
	"github.com/aishwarymishra09/voice-chat-be/pkg/audio"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/vad"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/vad/energy"
)

// VerdictKind classifies a chunk of audio.
type VerdictKind int

const (
	// Silence: no voiced frames at all.
	Silence VerdictKind = iota

	// WeakSignal: a few voiced frames, below the uncertainty band.
	WeakSignal

	// Uncertain: a substantial minority of voiced frames.
	Uncertain

	// Voice: at least half the frames are voiced.
	Voice
)

// String returns the lowercase name of the verdict kind.
func (k VerdictKind) String() string {
	switch k {
	case Voice:
		return "voice"
	case Uncertain:
		return "uncertain"
	case WeakSignal:
		return "weak_signal"
	default:
		return "silence"
	}
}

// Verdict is the voice-activity classification of one audio chunk.
type Verdict struct {
	Kind        VerdictKind
	Probability float64
}

// Evaluator turns raw PCM chunks into Verdicts. It holds a VAD session for
// frame-level detection and falls back to energy gating when the session is
// unavailable, errors, or the chunk is shorter than one frame.
//
// An Evaluator belongs to a single audio stream and is not safe for
// concurrent use.
type Evaluator struct {
	sess vad.SessionHandle

	clear     float64
	uncertain float64
	weak      float64
}

// NewEvaluator creates an Evaluator backed by the given VAD engine. A nil
// engine selects pure energy gating.
func NewEvaluator(engine vad.Engine) (*Evaluator, error) {
	e := &Evaluator{
		clear:     energy.DefaultClearThreshold,
		uncertain: energy.DefaultUncertainThreshold,
		weak:      energy.DefaultWeakThreshold,
	}
	if engine != nil {
		sess, err := engine.NewSession(vad.Config{
			SampleRate:      audio.SampleRate,
			FrameSizeMs:     int(audio.FrameDuration.Milliseconds()),
			SpeechThreshold: 0.5,
		})
		if err != nil {
			return nil, err
		}
		e.sess = sess
	}
	return e, nil
}

// Close releases the underlying VAD session.
func (e *Evaluator) Close() error {
	if e.sess == nil {
		return nil
	}
	return e.sess.Close()
}

// Reset clears detector state between audio segments.
func (e *Evaluator) Reset() {
	if e.sess != nil {
		e.sess.Reset()
	}
}

// FrameProbabilities returns the per-frame speech probability for every
// complete 20 ms frame in the chunk. It returns nil when the chunk holds no
// complete frame or the VAD session is unavailable; callers then fall back to
// chunk-level evaluation.
func (e *Evaluator) FrameProbabilities(chunk []byte) []float64 {
	if e.sess == nil || len(chunk) < audio.FrameBytes {
		return nil
	}
	n := len(chunk) / audio.FrameBytes
	probs := make([]float64, 0, n)
	for i := range n {
		frame := chunk[i*audio.FrameBytes : (i+1)*audio.FrameBytes]
		ev, err := e.sess.ProcessFrame(frame)
		if err != nil {
			return nil
		}
		probs = append(probs, ev.Probability)
	}
	return probs
}

// Evaluate classifies one chunk. Frame-level detection maps the voiced-frame
// ratio onto the verdict bands; otherwise the whole chunk is energy gated.
func (e *Evaluator) Evaluate(chunk []byte) Verdict {
	probs := e.FrameProbabilities(chunk)
	if probs == nil {
		return e.energyVerdict(chunk)
	}

	voiced := 0
	for _, p := range probs {
		if p >= 0.5 {
			voiced++
		}
	}
	ratio := float64(voiced) / float64(len(probs))
	switch {
	case ratio >= 0.5:
		return Verdict{Kind: Voice, Probability: 1.0}
	case ratio >= 0.25:
		return Verdict{Kind: Uncertain, Probability: 0.5}
	case ratio > 0:
		return Verdict{Kind: WeakSignal, Probability: 0.3}
	default:
		return Verdict{Kind: Silence, Probability: 0.0}
	}
}

// energyVerdict gates the whole chunk by normalized mean amplitude.
func (e *Evaluator) energyVerdict(chunk []byte) Verdict {
	level := energy.MeanAmplitude(chunk)
	switch {
	case level >= e.clear:
		return Verdict{Kind: Voice, Probability: 1.0}
	case level >= e.uncertain:
		return Verdict{Kind: Uncertain, Probability: 0.5}
	case level >= e.weak:
		return Verdict{Kind: WeakSignal, Probability: 0.3}
	default:
		return Verdict{Kind: Silence, Probability: 0.0}
	}
}
