// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., a local whisper-server,
// the whisper.cpp bindings, or Deepgram) and exposes a uniform batch
// interface. Turn-taking hands the provider one complete utterance at a time,
// so transcription is a single context-aware call rather than a stream.
//
// Implementations must be safe for concurrent use; multiple sessions may
// transcribe simultaneously.
package stt

import "context"

// Options describes the audio format and recognition hints for a
// transcription call. Zero values select provider defaults.
type Options struct {
	// SampleRate is the audio sample rate in Hz. The pipeline delivers 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most
	// STT backends). Implementors may downmix internally.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en", "de").
	// An empty string lets the provider auto-detect, if supported.
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe converts one utterance of raw 16-bit little-endian PCM into
	// text. The audio must match opts (or the provider defaults when opts
	// fields are zero).
	//
	// An empty utterance yields an empty Result, not an error; errors are
	// reserved for transport and engine failures.
	Transcribe(ctx context.Context, pcm []byte, opts Options) (Result, error)
}
