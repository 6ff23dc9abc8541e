package dialog

// Canned utterances for the receptionist persona. Everything the bot says
// outside of a language-model reply comes from this list, so the voice stays
// consistent and no model call is needed on the hot paths.
const (
	// PromptGreeting opens every call.
	PromptGreeting = "Hello! Thank you for calling Bright Smile Dental Clinic. How can I help you today?"

	// PromptNudge is spoken when the caller has been silent in between turns.
	PromptNudge = "Are you still there?"

	// PromptContinuation acknowledges a caller who paused mid-sentence.
	PromptContinuation = "Mm-hmm… go on."

	// PromptComfort reassures a caller who is taking long to continue.
	PromptComfort = "Take your time, I'm listening."

	// PromptRepeat is used when the transcript was empty or rejected.
	PromptRepeat = "I'm sorry, I didn't catch that. Could you say it again?"

	// PromptConfirm is used for low-confidence transcripts worth confirming
	// rather than discarding.
	PromptConfirm = "I'm not sure I heard you right — could you repeat that for me?"

	// PromptApology covers a recovered backend failure.
	PromptApology = "I'm sorry, something went wrong on my end. Could you say that once more?"

	// PromptEscalate ends the call after repeated failed clarifications.
	PromptEscalate = "I'm having trouble understanding. Let me have one of our staff call you back. Thank you for calling, goodbye!"

	// PromptWrapUp ends a conversation that has reached the turn limit.
	PromptWrapUp = "Thank you for calling Bright Smile Dental Clinic today. If there's anything else, please call us again. Goodbye!"

	// PromptError ends the call after an unrecoverable failure.
	PromptError = "I'm sorry, I'm unable to continue this call right now. Please call back in a few minutes. Goodbye!"
)

// systemPrompt is the receptionist persona given to the language model.
const systemPrompt = "You are the friendly phone receptionist of Bright Smile Dental Clinic. " +
	"Keep answers short and conversational — one or two sentences, suitable for being read aloud. " +
	"You can help with appointments, opening hours, services, and general questions. " +
	"If you don't know something, offer to have a staff member call back. Never invent medical advice."
