// Package deepgram provides a Deepgram-backed STT provider using the
// prerecorded transcription API.
//
// The turn-taking pipeline hands over complete utterances, so the hosted
// batch endpoint (POST /v1/listen) fits without a streaming connection. The
// provider is typically wired as the fallback behind a local whisper backend.
//
// Usage:
//
//	p, err := deepgram.New(apiKey, deepgram.WithModel("nova-2"))
//	result, err := p.Transcribe(ctx, pcm, stt.Options{})
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aishwarymishra09/voice-chat-be/pkg/audio"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/stt"
)

const (
	defaultBaseURL = "https://api.deepgram.com"
	defaultModel   = "nova-2"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model (e.g., "nova-2", "base"). Defaults to "nova-2".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the API base URL, mainly for tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider backed by the Deepgram prerecorded API.
// It is stateless between calls and safe for concurrent use.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates a Provider with the given API key.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// listenResponse is the subset of the Deepgram response the pipeline needs.
type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
			DetectedLanguage string `json:"detected_language"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, opts stt.Options) (stt.Result, error) {
	if len(pcm) == 0 {
		return stt.Result{}, nil
	}

	sr := opts.SampleRate
	if sr <= 0 {
		sr = audio.SampleRate
	}
	ch := opts.Channels
	if ch <= 0 {
		ch = 1
	}

	q := url.Values{}
	q.Set("model", p.model)
	if opts.Language != "" {
		q.Set("language", opts.Language)
	} else {
		q.Set("detect_language", "true")
	}

	wav := audio.EncodeWAV(pcm, sr, ch)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/listen?"+q.Encode(), strings.NewReader(string(wav)))
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, fmt.Errorf("deepgram: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: read response body: %w", err)
	}

	var parsed listenResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return stt.Result{}, fmt.Errorf("deepgram: parse JSON response: %w", err)
	}

	result := stt.Result{
		Language: opts.Language,
		Duration: time.Duration(len(pcm)) * time.Second / time.Duration(sr*ch*2),
	}
	if len(parsed.Results.Channels) == 0 {
		return result, nil
	}
	channel := parsed.Results.Channels[0]
	if channel.DetectedLanguage != "" {
		result.Language = channel.DetectedLanguage
	}
	if len(channel.Alternatives) == 0 {
		return result, nil
	}
	alt := channel.Alternatives[0]
	result.Text = strings.TrimSpace(alt.Transcript)
	if result.Text != "" {
		result.Confidence = alt.Confidence
	}
	return result, nil
}
