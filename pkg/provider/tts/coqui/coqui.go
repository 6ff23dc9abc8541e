// Package coqui provides a local Coqui TTS-backed provider that connects to a
// standard Coqui TTS server (ghcr.io/coqui-ai/tts-cpu) via GET /api/tts. It
// is typically wired as the offline fallback behind a hosted TTS backend.
//
// The server returns a WAV clip per utterance; duration is read from the WAV
// header so the bot-speaking window matches real play time.
//
// Usage:
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	clip, err := p.Synthesize(ctx, "One moment please.", voice)
package coqui

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/tts"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the language forwarded as language_id for multilingual
// models. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements tts.Provider backed by a standard Coqui TTS server.
// It is stateless between calls and safe for concurrent use.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
}

// New creates a Provider that connects to the Coqui server at serverURL
// (e.g., "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimSuffix(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Clip{}, errors.New("coqui: text must not be empty")
	}

	q := url.Values{}
	q.Set("text", text)
	if voice.ID != "" {
		q.Set("speaker_id", voice.ID)
	}
	if p.language != "" {
		q.Set("language_id", p.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+"/api/tts?"+q.Encode(), nil)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("coqui: create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("coqui: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tts.Clip{}, fmt.Errorf("coqui: server returned HTTP %d", resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("coqui: read audio: %w", err)
	}
	if len(wav) == 0 {
		return tts.Clip{}, errors.New("coqui: empty audio response")
	}

	duration := wavDuration(wav)
	if duration == 0 {
		duration = tts.EstimateSpeechDuration(text)
	}

	return tts.Clip{Audio: wav, MIME: "audio/wav", Duration: duration}, nil
}

// wavDuration reads the byte rate and data length from a RIFF/WAVE header.
// Returns 0 when the payload is not a well-formed PCM WAV file.
func wavDuration(wav []byte) time.Duration {
	if len(wav) < 44 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return 0
	}
	byteRate := binary.LittleEndian.Uint32(wav[28:32])
	dataLen := binary.LittleEndian.Uint32(wav[40:44])
	if byteRate == 0 {
		return 0
	}
	if int(dataLen) > len(wav)-44 {
		dataLen = uint32(len(wav) - 44)
	}
	return time.Duration(dataLen) * time.Second / time.Duration(byteRate)
}
