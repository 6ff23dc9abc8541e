// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to inject synthesized clips and inspect the text that was
// submitted.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Provider.Synthesize.
type SynthesizeCall struct {
	// Text is the utterance passed to Synthesize.
	Text string

	// Voice is the VoiceProfile passed to Synthesize.
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
// The zero value returns a small fixed clip for every call.
type Provider struct {
	mu sync.Mutex

	// Clip is returned by every Synthesize call. When zero, a one-second
	// placeholder clip is returned.
	Clip tts.Clip

	// Err, if non-nil, is returned by every Synthesize call.
	Err error

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call and returns Clip, Err.
func (p *Provider) Synthesize(_ context.Context, text string, voice tts.VoiceProfile) (tts.Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Voice: voice})
	if p.Err != nil {
		return tts.Clip{}, p.Err
	}
	clip := p.Clip
	if clip.Audio == nil {
		clip = tts.Clip{Audio: []byte("mp3"), MIME: "audio/mpeg", Duration: time.Second}
	}
	return clip, nil
}

// ResetCalls clears all recorded call history. Thread-safe.
func (p *Provider) ResetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
