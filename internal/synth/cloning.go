package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/book-expert/audio-pipeline/internal/core"
	"github.com/book-expert/logger"
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
)

const (
	defaultCloneTemperature = 0.75
	defaultCloneLanguage    = "en"
)

var (
	// ErrModelNotLoaded is returned when the cloning server is up but its model is not.
	ErrModelNotLoaded = errors.New("voice cloning model is not loaded")
	// ErrSampleEmpty is returned when no reference voice sample was supplied.
	ErrSampleEmpty = errors.New("reference voice sample cannot be empty")
	// ErrUnexpectedContentType is returned when the server answers with something other than WAV.
	ErrUnexpectedContentType = errors.New("unexpected content type")
	// ErrCloningService wraps non-OK answers from the cloning server.
	ErrCloningService = errors.New("voice cloning service error")
)

// CloneRequest is the JSON payload accepted by the cloning server.
type CloneRequest struct {
	Text string `json:"text"`
	// SpeakerWAV is the reference sample; encoding/json sends it as base64.
	SpeakerWAV  []byte  `json:"speaker_wav"`
	Language    string  `json:"language"`
	Temperature float64 `json:"temperature"`
}

// CloneErrorResponse is the structured error body returned by the cloning server.
type CloneErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// CloningOptions configures a CloningEngine.
type CloningOptions struct {
	BaseURL     string
	Language    string
	Temperature float64
	Timeout     time.Duration
}

// CloningEngine synthesizes speech in the voice of a reference sample by
// calling a standalone cloning server over HTTP.
type CloningEngine struct {
	httpClient  *http.Client
	baseURL     string
	language    string
	temperature float64
	log         *logger.Logger
}

// NewCloningEngine creates a CloningEngine and verifies that the server has its
// model loaded. Callers treat an error as "cloning unavailable" rather than fatal.
func NewCloningEngine(ctx context.Context, opts CloningOptions, log *logger.Logger) (*CloningEngine, error) {
	engine := &CloningEngine{
		httpClient:  &http.Client{Timeout: opts.Timeout},
		baseURL:     opts.BaseURL,
		language:    opts.Language,
		temperature: opts.Temperature,
		log:         log,
	}

	if engine.language == "" {
		engine.language = defaultCloneLanguage
	}

	if engine.temperature == 0 {
		engine.temperature = defaultCloneTemperature
	}

	healthErr := engine.HealthCheck(ctx)
	if healthErr != nil {
		return nil, healthErr
	}

	return engine, nil
}

// Synthesize speaks req.Text in the voice of req.Sample.
func (e *CloningEngine) Synthesize(ctx context.Context, req core.SynthesisRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, synthesisError(ErrTextEmpty)
	}

	if len(req.Sample) == 0 {
		return nil, synthesisError(ErrSampleEmpty)
	}

	audio, err := e.GenerateSpeech(ctx, CloneRequest{
		Text:        req.Text,
		SpeakerWAV:  req.Sample,
		Language:    e.language,
		Temperature: e.temperature,
	})
	if err != nil {
		return nil, synthesisError(err)
	}

	return audio, nil
}

// GenerateSpeech posts a cloning request and returns the WAV body.
func (e *CloningEngine) GenerateSpeech(ctx context.Context, req CloneRequest) ([]byte, error) {
	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		e.baseURL+apiGenerateSpeech,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to cloning service at %s: %w", e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get(headerContentType))
	if mediaType != contentTypeWAV {
		return nil, fmt.Errorf("%w: expected %s, got %q", ErrUnexpectedContentType, contentTypeWAV, mediaType)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}

	e.log.Info("Cloning service produced %d bytes", len(audio))

	return audio, nil
}

// HealthCheck fails unless the server answers 200 and reports model_loaded.
func (e *CloningEngine) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", e.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned %s", ErrCloningService, resp.Status)
	}

	var health healthResponse

	decodeErr := json.NewDecoder(resp.Body).Decode(&health)
	if decodeErr != nil {
		return fmt.Errorf("failed to decode health response: %w", decodeErr)
	}

	if !health.ModelLoaded {
		return ErrModelNotLoaded
	}

	return nil
}

// parseErrorResponse decodes a structured error and falls back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp CloneErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf("%w (%s): %s (code: %s)",
			ErrCloningService, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf("%w: non-OK status %s, body: %s", ErrCloningService, resp.Status, string(body))
}

var _ core.SpeechSynthesizer = (*CloningEngine)(nil)
