// Package elevenlabs provides an ElevenLabs-backed TTS provider.
//
// Synthesis uses the REST endpoint (POST /v1/text-to-speech/{voice_id}) in
// batch mode: the dialogue engine submits one utterance and receives a
// complete MP3 clip. Clip duration is derived from the byte length at the
// requested constant encoder bitrate, which is exact enough to gate the
// bot-speaking window.
//
// Usage:
//
//	p, err := elevenlabs.New(apiKey)
//	clip, err := p.Synthesize(ctx, "Hello! How can I help?", voice)
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/tts"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModelID = "eleven_turbo_v2_5"
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM" // "Rachel", the stock voice

	// outputFormat is a constant-bitrate MP3: 128 kbit/s = 16000 bytes per
	// second of audio, which makes duration a pure function of payload size.
	outputFormat   = "mp3_44100_128"
	mp3BytesPerSec = 16000
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModelID sets the ElevenLabs model (e.g., "eleven_turbo_v2_5",
// "eleven_multilingual_v2").
func WithModelID(id string) Option {
	return func(p *Provider) { p.modelID = id }
}

// WithBaseURL overrides the API base URL, mainly for tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements tts.Provider backed by the ElevenLabs REST API.
// It is stateless between calls and safe for concurrent use.
type Provider struct {
	apiKey     string
	modelID    string
	baseURL    string
	httpClient *http.Client
}

// New creates a Provider with the given API key.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		modelID:    defaultModelID,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// synthesizeRequest is the JSON body for the text-to-speech endpoint.
type synthesizeRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability,omitempty"`
	SimilarityBoost float64 `json:"similarity_boost,omitempty"`
	Speed           float64 `json:"speed,omitempty"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (tts.Clip, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Clip{}, errors.New("elevenlabs: text must not be empty")
	}

	voiceID := voice.ID
	if voiceID == "" {
		voiceID = defaultVoiceID
	}

	reqBody := synthesizeRequest{Text: text, ModelID: p.modelID}
	if settings := settingsFromProfile(voice); settings != nil {
		reqBody.VoiceSettings = settings
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", p.baseURL, voiceID, outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return tts.Clip{}, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("elevenlabs: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return tts.Clip{}, fmt.Errorf("elevenlabs: server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	mp3, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	if len(mp3) == 0 {
		return tts.Clip{}, errors.New("elevenlabs: empty audio response")
	}

	duration := time.Duration(len(mp3)) * time.Second / mp3BytesPerSec
	if duration == 0 {
		duration = tts.EstimateSpeechDuration(text)
	}

	return tts.Clip{Audio: mp3, MIME: "audio/mpeg", Duration: duration}, nil
}

// settingsFromProfile maps the generic profile onto ElevenLabs voice
// settings. Returns nil when the profile carries nothing to send.
func settingsFromProfile(voice tts.VoiceProfile) *voiceSettings {
	var s voiceSettings
	any := false
	if v, err := strconv.ParseFloat(voice.Metadata["stability"], 64); err == nil {
		s.Stability = v
		any = true
	}
	if v, err := strconv.ParseFloat(voice.Metadata["similarity_boost"], 64); err == nil {
		s.SimilarityBoost = v
		any = true
	}
	if voice.SpeedFactor != 0 && voice.SpeedFactor != 1 {
		s.Speed = voice.SpeedFactor
		any = true
	}
	if !any {
		return nil
	}
	return &s
}
