// Package whisper provides whisper.cpp-backed STT providers.
//
// Provider talks to a running whisper-server binary (REST API at
// POST /inference); NativeProvider links whisper.cpp directly through the CGO
// bindings. Both transcribe one buffered utterance per call, which matches
// the turn-taking pipeline: the turn engine decides utterance boundaries, so
// no silence segmentation happens here.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	result, err := p.Transcribe(ctx, pcm, stt.Options{})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/aishwarymishra09/voice-chat-be/pkg/audio"
	"github.com/aishwarymishra09/voice-chat-be/pkg/provider/stt"
)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper-server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code sent to the whisper-server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider backed by a whisper-server HTTP endpoint.
// It is stateless between calls and safe for concurrent use.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a Provider that connects to the whisper-server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimSuffix(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// inferenceResponse is the verbose_json shape returned by whisper-server.
// Servers running without verbose output omit the segments array.
type inferenceResponse struct {
	Text     string             `json:"text"`
	Language string             `json:"language"`
	Segments []inferenceSegment `json:"segments"`
}

type inferenceSegment struct {
	AvgLogprob float64 `json:"avg_logprob"`
}

// Transcribe implements stt.Provider. It encodes the PCM as WAV, POSTs it to
// the /inference endpoint as multipart/form-data, and derives confidence from
// the mean segment log-probability when the server reports it.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, opts stt.Options) (stt.Result, error) {
	if len(pcm) == 0 {
		return stt.Result{}, nil
	}

	sr := opts.SampleRate
	if sr <= 0 {
		sr = defaultSampleRate
	}
	ch := opts.Channels
	if ch <= 0 {
		ch = 1
	}
	lang := opts.Language
	if lang == "" {
		lang = p.language
	}

	wav := audio.EncodeWAV(pcm, sr, ch)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"response_format": "verbose_json",
		"language":        lang,
	}
	if p.model != "" {
		fields["model"] = p.model
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return stt.Result{}, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: read response body: %w", err)
	}

	var parsed inferenceResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	text := strings.TrimSpace(parsed.Text)
	result := stt.Result{
		Text:     text,
		Language: parsed.Language,
		Duration: time.Duration(len(pcm)) * time.Second / time.Duration(sr*ch*2),
	}
	if text == "" {
		return result, nil
	}
	if result.Language == "" {
		result.Language = lang
	}
	result.Confidence = confidenceFromLogprobs(parsed.Segments)
	return result, nil
}

// confidenceFromLogprobs converts per-segment average log-probabilities into
// a single confidence value via exp(mean avg_logprob), clamped to [0, 1].
// Responses without segments yield the default confidence.
func confidenceFromLogprobs(segments []inferenceSegment) float64 {
	if len(segments) == 0 {
		return stt.DefaultConfidence
	}
	var sum float64
	for _, s := range segments {
		sum += s.AvgLogprob
	}
	conf := math.Exp(sum / float64(len(segments)))
	if conf > 1 {
		conf = 1
	}
	if conf < 0 {
		conf = 0
	}
	return conf
}
