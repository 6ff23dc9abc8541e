package tts

import "time"

// VoiceProfile describes a TTS voice configuration.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default).
	SpeedFactor float64

	// Metadata holds provider-specific voice attributes (stability,
	// similarity boost, etc.).
	Metadata map[string]string
}

// Clip is one synthesized utterance.
type Clip struct {
	// Audio is the encoded audio payload.
	Audio []byte

	// MIME is the payload encoding (e.g., "audio/mpeg", "audio/wav").
	MIME string

	// Duration is the clip's play time. Backends that cannot measure it
	// exactly derive it from the encoder bitrate or a speaking-rate estimate.
	Duration time.Duration
}

// EstimateSpeechDuration approximates play time from word count at a typical
// conversational rate. Used when a backend reports no timing at all.
func EstimateSpeechDuration(text string) time.Duration {
	words := 0
	inWord := false
	for _, r := range text {
		space := r == ' ' || r == '\n' || r == '\t'
		if !space && !inWord {
			words++
		}
		inWord = !space
	}
	if words == 0 {
		return 0
	}
	// ~150 words per minute.
	return time.Duration(words) * time.Minute / 150
}
