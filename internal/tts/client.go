// Package tts turns text fragments into ordered audio segments through a
// remote speech synthesis collaborator.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/narrator/internal/core"
)

// API endpoints and paths.
const (
	apiSynthesize = "/v1/synthesize"
	apiHealth     = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeAudio  = "audio/"
)

// Error messages.
const (
	errFmtUnexpectedContentType = "%w: expected audio/*, got %q"
	errFmtServiceErrorWithCode  = "%w (%s): %s (code: %s)"
	errFmtServiceNonOKStatus    = "%w: %s, body: %s"
)

var (
	ErrUnexpectedContentType = errors.New("unexpected content type")
	ErrServiceStatus         = errors.New("speech service returned non-OK status")
	ErrHealthCheckFailed     = errors.New("speech service health check failed")
)

// HTTPClient is a core.Synthesizer backed by a self-hosted speech service
// that accepts SSML over JSON and answers with raw audio.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// SynthesisRequest is the JSON payload of a synthesis call.
type SynthesisRequest struct {
	Markup       string  `json:"markup"`
	LanguageCode string  `json:"language_code"`
	Voice        string  `json:"voice"`
	Gender       string  `json:"gender,omitempty"`
	Encoding     string  `json:"encoding"`
	SpeakingRate float64 `json:"speaking_rate"`
	Pitch        float64 `json:"pitch"`
}

// ErrorResponse is the structured error body returned by the service.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// NewHTTPClient returns a client for the service at baseURL (for example
// "http://localhost:8000"). The timeout applies to every request.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Synthesize implements core.Synthesizer. An empty body is returned as an
// empty payload so the caller can treat it like any other empty result.
func (c *HTTPClient) Synthesize(
	ctx context.Context,
	markup string,
	voice core.Voice,
	params core.AudioParams,
) ([]byte, error) {
	if markup == "" {
		return nil, ErrMarkupEmpty
	}

	requestBody, marshalErr := json.Marshal(SynthesisRequest{
		Markup:       markup,
		LanguageCode: voice.LanguageCode,
		Voice:        voice.Name,
		Gender:       string(voice.Gender),
		Encoding:     string(params.Encoding),
		SpeakingRate: params.SpeakingRate,
		Pitch:        params.Pitch,
	})
	if marshalErr != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", marshalErr)
	}

	httpReq, reqErr := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiSynthesize,
		bytes.NewReader(requestBody),
	)
	if reqErr != nil {
		return nil, fmt.Errorf("failed to create request: %w", reqErr)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeAudio+"*")

	resp, doErr := c.httpClient.Do(httpReq)
	if doErr != nil {
		return nil, fmt.Errorf("failed to send request to speech service at %s: %w", c.baseURL, doErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if !strings.HasPrefix(contentType, contentTypeAudio) {
		return nil, fmt.Errorf(errFmtUnexpectedContentType, ErrUnexpectedContentType, contentType)
	}

	audioData, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", readErr)
	}

	return audioData, nil
}

// HealthCheck verifies that the speech service is up.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if reqErr != nil {
		return fmt.Errorf("failed to create health check request: %w", reqErr)
	}

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrHealthCheckFailed, c.baseURL, doErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %s", ErrHealthCheckFailed, resp.Status)
	}

	return nil
}

// parseErrorResponse decodes a structured error, falling back to the raw
// body when the service did not answer with JSON.
func parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errorResp ErrorResponse

	decodeErr := json.Unmarshal(body, &errorResp)
	if decodeErr == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode,
			ErrServiceStatus, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, ErrServiceStatus, resp.Status, string(body))
}
