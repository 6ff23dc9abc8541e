package stt

import "time"

// Result is a speech-to-text result for one complete utterance.
type Result struct {
	// Text is the transcribed speech content, whitespace-trimmed.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Whisper backends
	// derive it from segment log-probabilities; backends that do not report
	// confidence use DefaultConfidence.
	Confidence float64

	// Language is the detected or requested language code.
	Language string

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}

// DefaultConfidence is reported when the backend returns text but no usable
// confidence signal. It sits in the soft-accept band so downstream routing
// neither trusts nor discards such results outright.
const DefaultConfidence = 0.5
