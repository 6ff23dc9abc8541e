// Package types defines the shared types used across the voice-chat packages.
//
// These types form the lingua franca between providers, the turn-taking
// pipeline, the dialogue engine, and the transports. They are intentionally
// minimal — each package defines its own domain types, but cross-cutting data
// structures live here to avoid circular imports.
package types

import "time"

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// TurnRecord is a complete exchange record written to the conversation
// history. It captures the caller's utterance and the assistant's reply,
// forming the atomic unit of session history.
type TurnRecord struct {
	// Role identifies who spoke: "user" or "assistant".
	Role string `json:"role"`

	// Text is the (possibly corrected) transcript or reply text.
	Text string `json:"text"`

	// Confidence is the ASR confidence for user turns; zero for assistant turns.
	Confidence float64 `json:"confidence,omitempty"`

	// Timestamp is when this record was written.
	Timestamp time.Time `json:"timestamp"`
}
