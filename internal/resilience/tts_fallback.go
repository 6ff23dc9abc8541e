package resilience

import (
	"context"

	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across
// multiple synthesis backends, each behind its own circuit breaker.
//
// Fallback backends may return a different MIME type than the primary
// (ElevenLabs ships MP3, a local Coqui server ships WAV); callers must honor
// Clip.MIME rather than assume the primary's encoding.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a TTSFallback with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional synthesis backend.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize renders the utterance with the first healthy backend.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Clip, error) {
	return Execute(f.group, func(p tts.Provider) (tts.Clip, error) {
		return p.Synthesize(ctx, text, voice)
	})
}
