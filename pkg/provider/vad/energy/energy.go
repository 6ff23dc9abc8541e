// Package energy implements vad.Engine with a normalized-amplitude gate.
//
// It classifies each 20 ms frame by the mean absolute sample amplitude
// normalized to [0, 1]. The default band edges distinguish clear speech,
// uncertain signal, weak signal, and silence. This is the engine the pipeline
// falls back to when no model-based detector is configured; it is cheap,
// allocation-free per frame, and deterministic.
package energy

import (
	"encoding/binary"
	"fmt"

	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/vad"
)

// Default band edges for normalized mean amplitude.
const (
	DefaultClearThreshold     = 0.030
	DefaultUncertainThreshold = 0.015
	DefaultWeakThreshold      = 0.005
)

// Engine implements vad.Engine using amplitude gating.
type Engine struct {
	clear     float64
	uncertain float64
	weak      float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithThresholds overrides the three band edges. Values must satisfy
// clear > uncertain > weak > 0.
func WithThresholds(clear, uncertain, weak float64) Option {
	return func(e *Engine) {
		e.clear, e.uncertain, e.weak = clear, uncertain, weak
	}
}

// New creates an energy-gate VAD engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		clear:     DefaultClearThreshold,
		uncertain: DefaultUncertainThreshold,
		weak:      DefaultWeakThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewSession implements vad.Engine.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: invalid sample rate %d", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy: invalid frame size %dms", cfg.FrameSizeMs)
	}
	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("energy: speech threshold %v out of range [0,1]", cfg.SpeechThreshold)
	}
	threshold := cfg.SpeechThreshold
	if threshold == 0 {
		threshold = 0.5
	}
	frameBytes := cfg.SampleRate / 1000 * cfg.FrameSizeMs * 2
	return &session{engine: e, frameBytes: frameBytes, threshold: threshold}, nil
}

var _ vad.Engine = (*Engine)(nil)

type session struct {
	engine     *Engine
	frameBytes int
	threshold  float64
	inSpeech   bool
	closed     bool
}

// ProcessFrame implements vad.SessionHandle.
func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	if s.closed {
		return vad.VADEvent{}, fmt.Errorf("energy: session closed")
	}
	if len(frame) != s.frameBytes {
		return vad.VADEvent{}, fmt.Errorf("energy: frame size %d, want %d", len(frame), s.frameBytes)
	}

	prob := s.engine.probability(frame)
	speech := prob >= s.threshold

	ev := vad.VADEvent{Probability: prob}
	switch {
	case speech && !s.inSpeech:
		ev.Type = vad.VADSpeechStart
	case speech:
		ev.Type = vad.VADSpeechContinue
	case s.inSpeech:
		ev.Type = vad.VADSpeechEnd
	default:
		ev.Type = vad.VADSilence
	}
	s.inSpeech = speech
	return ev, nil
}

// Reset implements vad.SessionHandle.
func (s *session) Reset() {
	s.inSpeech = false
}

// Close implements vad.SessionHandle.
func (s *session) Close() error {
	s.closed = true
	return nil
}

var _ vad.SessionHandle = (*session)(nil)

// probability maps the frame's normalized mean amplitude onto the band edges.
func (e *Engine) probability(frame []byte) float64 {
	energy := MeanAmplitude(frame)
	switch {
	case energy >= e.clear:
		return 1.0
	case energy >= e.uncertain:
		return 0.5
	case energy >= e.weak:
		return 0.3
	default:
		return 0.0
	}
}

// MeanAmplitude returns the mean absolute sample value of 16-bit little-endian
// PCM, normalized to [0, 1]. A trailing odd byte is ignored.
func MeanAmplitude(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return sum / float64(n) / 32768.0
}
