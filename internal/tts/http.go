// Package tts provides the synthesis backends that call the external
// text-to-speech model.
//
// Two backends are available: HTTPClient talks to a model hosted behind an
// HTTP server, and CommandSynthesizer runs the model's command-line entry
// point once per chunk. Both satisfy Backend and wrap every failure in
// core.ErrSynthesis so callers can classify it.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/voice-narrator/internal/core"
)

// API endpoints and paths.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiHealth         = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
	contentTypeXWAV   = "audio/x-wav"
)

const defaultLanguage = "en"

// Error messages.
const (
	errFmtUnexpectedContentType = "unexpected content type: expected audio/wav, got %q"
	errFmtServiceErrorWithCode  = "TTS service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus    = "TTS service returned non-OK status: %s, body: %s"
)

var (
	// ErrTextEmpty is returned when asked to synthesize empty text.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrEmptyAudio is returned when the backend produced no audio.
	ErrEmptyAudio = errors.New("received empty audio data")
)

// SpeechRequest is the JSON payload sent to the TTS server for one chunk.
type SpeechRequest struct {
	// Text is the chunk to speak. It must contain at least one
	// non-whitespace character.
	Text string `json:"text"`

	// AudioPromptPath is a reference clip for voice cloning, resolved by the
	// server. When empty the model's built-in voice is used.
	AudioPromptPath string `json:"audio_prompt_path,omitempty"`

	// Exaggeration controls emotional intensity. The neutral style sends
	// 0.5; lower values give a flatter delivery.
	Exaggeration float64 `json:"exaggeration"`

	// CFGWeight is the classifier-free guidance weight, which mostly governs
	// pacing. Higher values read slower and more deliberately.
	CFGWeight float64 `json:"cfg_weight"`

	// Temperature controls sampling randomness. It is omitted when zero so
	// the model default applies.
	Temperature float64 `json:"temperature,omitempty"`

	// Device is the processing device the server should run on ("cuda" or "cpu").
	Device string `json:"device"`

	// Language is the target language code. Defaults to "en".
	Language string `json:"language"`
}

// ErrorResponse represents a structured error response from the TTS server.
type ErrorResponse struct {
	// Detail contains a human-readable error description.
	Detail string `json:"detail"`

	// ErrorCode provides a machine-readable error classification.
	ErrorCode string `json:"error_code,omitempty"`
}

// HTTPClient talks to a standalone TTS HTTP server hosting the model.
// It is safe for concurrent use, although the pipeline calls it sequentially.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	language   string
}

// NewHTTPClient creates a client for the server at baseURL
// (e.g. "http://localhost:8000"). The timeout applies to every request.
func NewHTTPClient(baseURL string, timeout time.Duration, language string) *HTTPClient {
	if language == "" {
		language = defaultLanguage
	}

	return &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: language,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize implements core.Synthesizer. The voice settings are copied into
// a SpeechRequest together with the client's language; any failure is
// wrapped in core.ErrSynthesis.
func (c *HTTPClient) Synthesize(ctx context.Context, text string, voice core.VoiceConfig) ([]byte, error) {
	audioData, err := c.GenerateSpeech(ctx, SpeechRequest{
		Text:            text,
		AudioPromptPath: voice.AudioPromptPath,
		Exaggeration:    voice.Exaggeration,
		CFGWeight:       voice.CFGWeight,
		Temperature:     voice.Temperature,
		Device:          voice.Device,
		Language:        c.language,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSynthesis, err)
	}

	return audioData, nil
}

// GenerateSpeech sends a generation request and returns the WAV payload.
//
// Blank text is rejected with ErrTextEmpty before any request is made. A
// non-200 response is decoded as an ErrorResponse when possible, otherwise
// the raw body is reported. A 200 response must carry audio/wav (or
// audio/x-wav) and a non-empty body, or ErrEmptyAudio is returned.
// Cancelling ctx aborts the request.
func (c *HTTPClient) GenerateSpeech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrTextEmpty
	}

	if req.Language == "" {
		req.Language = c.language
	}

	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiGenerateSpeech,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to TTS service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get(headerContentType))
	if mediaType != contentTypeWAV && mediaType != contentTypeXWAV {
		return nil, fmt.Errorf(errFmtUnexpectedContentType, resp.Header.Get(headerContentType))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

// HealthCheck verifies that the TTS server is up by requesting its health
// endpoint. Any status other than 200 is reported as an error.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

// parseErrorResponse decodes a structured JSON error, falling back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, strings.TrimSpace(string(body)))
}
