// Package dialog implements the per-session conversation state machine and
// the decision logic around one user turn.
//
// The conversation moves through a fixed set of phases: a session greets the
// caller, listens for a turn, processes the transcript, responds, and either
// keeps listening or winds the call down. The transcript itself passes
// through two gates before the language model sees it: a linguistic
// completeness check that can hold the turn open while the caller finishes a
// sentence, and a confidence router that decides whether to accept the text,
// ask for confirmation, or ask the caller to repeat.
//
// Phase and counters persist in Redis through the session store, so the
// engine itself is stateless per call and any instance can continue a
// conversation.
package dialog

// Phase is a conversation state machine phase.
type Phase string

// Conversation phases. End is absorbing; Error always advances to End.
const (
	PhaseInit       Phase = "init"
	PhaseGreeting   Phase = "greeting"
	PhaseListening  Phase = "listening"
	PhaseProcessing Phase = "processing"
	PhaseResponding Phase = "responding"
	PhaseClarifying Phase = "clarifying"
	PhaseError      Phase = "error"
	PhaseEnd        Phase = "end"
)

// OutcomeKind classifies what the caller of the engine should do with an
// [Outcome].
type OutcomeKind int

const (
	// OutcomeReply carries text to synthesize and play to the caller.
	OutcomeReply OutcomeKind = iota

	// OutcomeClarify carries a clarification question; the turn did not
	// reach the language model.
	OutcomeClarify

	// OutcomeIncomplete means the caller seems to still be mid-sentence:
	// the turn engine should be put into its continuation wait and no
	// audio is played now.
	OutcomeIncomplete

	// OutcomeSilent means the input was unusable and the session should
	// simply listen again without speaking.
	OutcomeSilent

	// OutcomeEnd carries a final utterance after which the session closes.
	OutcomeEnd
)

// String implements fmt.Stringer.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeReply:
		return "reply"
	case OutcomeClarify:
		return "clarify"
	case OutcomeIncomplete:
		return "incomplete"
	case OutcomeSilent:
		return "silent"
	case OutcomeEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Outcome is the engine's decision for one processed turn.
type Outcome struct {
	// Kind tells the transport what to do.
	Kind OutcomeKind

	// Text is the utterance to synthesize. Empty for OutcomeIncomplete and
	// OutcomeSilent.
	Text string

	// UserText is the accepted user transcript, with any pending prefix
	// from an earlier incomplete fragment applied. Set only when the turn
	// reached the language model.
	UserText string

	// Phase is the conversation phase after the turn.
	Phase Phase

	// CloseReason is set alongside OutcomeEnd.
	CloseReason string
}
