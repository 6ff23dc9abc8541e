// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or a
// local Coqui server) and presents a uniform batch interface. The dialogue
// engine synthesizes one utterance at a time — a greeting, a reply, a nudge —
// and the transport ships the whole clip to the client together with its play
// time, which drives the bot-speaking window for barge-in detection.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into a single audio clip using the given voice.
	// The clip's Duration must reflect actual play time as closely as the
	// backend allows, since it gates barge-in detection.
	//
	// Returns an error if the backend is unreachable, the voice is unknown, or
	// ctx is cancelled before synthesis completes. Empty text is an error.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (Clip, error)
}
