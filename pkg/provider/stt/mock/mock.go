// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to inject transcription results and inspect the audio that was
// submitted.
package mock

import (
	"context"
	"sync"

	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// PCM is a copy of the audio passed to Transcribe.
	PCM []byte

	// Opts is the Options passed to Transcribe.
	Opts stt.Options
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Results is a queue of results returned by successive Transcribe calls.
	// When the queue is exhausted, Result is returned instead.
	Results []stt.Result

	// Result is returned by Transcribe once Results is drained.
	Result stt.Result

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the next queued result (or Result)
// along with Err.
func (p *Provider) Transcribe(_ context.Context, pcm []byte, opts stt.Options) (stt.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{PCM: cp, Opts: opts})
	result := p.Result
	if len(p.Results) > 0 {
		result = p.Results[0]
		p.Results = p.Results[1:]
	}
	return result, p.Err
}

// ResetCalls clears all recorded call history. Thread-safe.
func (p *Provider) ResetCalls() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
