// Package session manages the lifecycle and persistence of voice call
// sessions.
//
// A session is born when a client requests one over HTTP, lives while its
// WebSocket connection streams audio, and dies when the caller hangs up, the
// idle timeout fires, or the hard duration cap is reached. All session state
// lives in Redis so any instance of the service can pick up a session, and a
// [Manager] janitor sweeps expired sessions in the background.
//
// Redis layout per session:
//
//	session:{id}                 hash   metadata (status, timestamps, close reason)
//	sessions:active              set    IDs of open sessions, swept by the janitor
//	conversation:{id}            hash   dialogue phase and counters
//	conversation:{id}:history    list   turn records, newest first, capped at 50
package session

import (
	"errors"
	"time"
)

// Close reasons recorded when a session ends.
const (
	CloseReasonClient      = "client_closed"
	CloseReasonIdle        = "idle_timeout"
	CloseReasonMaxDuration = "max_duration"
	CloseReasonTurnLimit   = "turn_limit"
	CloseReasonError       = "error"
)

// Session statuses. A session is created NEW, becomes ACTIVE on first
// client activity, drops to IDLE when the idle timeout passes without
// activity, and ends CLOSED.
const (
	StatusNew    = "new"
	StatusActive = "active"
	StatusIdle   = "idle"
	StatusClosed = "closed"
)

var (
	// ErrNotFound is returned when no session exists for the given ID.
	ErrNotFound = errors.New("session: not found")

	// ErrClosed is returned when an operation targets a closed session.
	ErrClosed = errors.New("session: closed")
)

// Session is the metadata record for one voice call.
type Session struct {
	// ID is the UUID assigned at creation.
	ID string

	// Status is one of the Status* constants.
	Status string

	// CreatedAt is when the session was created.
	CreatedAt time.Time

	// LastActive is the time of the most recent client activity. The
	// janitor closes sessions whose LastActive falls behind the idle
	// timeout.
	LastActive time.Time

	// CloseReason records why the session ended. Empty while active.
	CloseReason string

	// Metadata carries caller-supplied key/value pairs from the create
	// request (e.g., per-call timing overrides).
	Metadata map[string]string
}

// DialogState is the persisted slice of the conversation state machine:
// the phase plus the counters that drive phase transitions. The dialogue
// engine loads it at the start of a turn and saves it back after.
type DialogState struct {
	// Phase is the current conversation phase name.
	Phase string `json:"phase"`

	// TurnCount is the number of completed user turns.
	TurnCount int `json:"turn_count"`

	// ClarificationCount counts consecutive clarification rounds.
	ClarificationCount int `json:"clarification_count"`

	// SilencePrompts counts "are you still there?" nudges sent.
	SilencePrompts int `json:"silence_prompts"`

	// PendingText accumulates transcribed text across an incomplete
	// utterance that the caller is still finishing.
	PendingText string `json:"pending_text"`
}
