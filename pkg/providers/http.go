package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scoreflow/scoreflow/pkg/models"
)

// HTTPProvider calls a remote scoring backend over HTTP.
// Retry and backoff do not belong here; the invoker wraps each call.
type HTTPProvider struct {
	name       string
	endpoint   string
	apiKey     string
	enabled    bool
	timeout    time.Duration
	httpClient *http.Client
}

// HTTPProviderConfig configures a single remote scoring backend
type HTTPProviderConfig struct {
	Name     string
	Endpoint string
	APIKey   string
	Enabled  bool
	Timeout  time.Duration
}

// NewHTTPProvider creates a provider backed by a remote HTTP scoring service
func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		name:     cfg.Name,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		enabled:  cfg.Enabled,
		timeout:  timeout,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the provider name used in results and circuit state
func (p *HTTPProvider) Name() string {
	return p.name
}

// Enabled reports whether the provider is configured for use.
// A provider without an endpoint is never enabled.
func (p *HTTPProvider) Enabled() bool {
	return p.enabled && p.endpoint != ""
}

// scoreRequest is the wire format sent to the scoring backend
type scoreRequest struct {
	Input string `json:"input"`
}

// scoreResponse is the wire format returned by the scoring backend
type scoreResponse struct {
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Analyze submits the input to the backend. Failures return a classified
// *Error; the caller builds the failure ProviderResult from it.
func (p *HTTPProvider) Analyze(ctx context.Context, input string) (*models.ProviderResult, error) {
	if input == "" {
		return nil, NewError(KindValidation, p.name, fmt.Errorf("empty input"))
	}

	start := time.Now()

	body, err := json.Marshal(scoreRequest{Input: input})
	if err != nil {
		return nil, NewError(KindValidation, p.name, fmt.Errorf("failed to marshal request: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(KindValidation, p.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, Classify(p.name, err)
	}
	defer resp.Body.Close()

	if kerr := p.classifyStatus(resp.StatusCode); kerr != nil {
		io.Copy(io.Discard, resp.Body)
		return nil, kerr
	}

	var sr scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, NewError(KindServerError, p.name, fmt.Errorf("failed to decode response: %w", err))
	}

	if sr.Score < 0 || sr.Score > 100 {
		return nil, NewError(KindServerError, p.name, fmt.Errorf("score %.2f out of range", sr.Score))
	}

	return &models.ProviderResult{
		Provider:  p.name,
		Score:     sr.Score,
		Metadata:  sr.Metadata,
		Succeeded: true,
		Duration:  time.Since(start),
	}, nil
}

// classifyStatus maps HTTP status classes onto the error taxonomy
func (p *HTTPProvider) classifyStatus(status int) *Error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests:
		return NewError(KindRateLimited, p.name, fmt.Errorf("status %d", status))
	case status == http.StatusRequestTimeout:
		return NewError(KindTimeout, p.name, fmt.Errorf("status %d", status))
	case status >= 500:
		return NewError(KindServerError, p.name, fmt.Errorf("status %d", status))
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return NewError(KindValidation, p.name, fmt.Errorf("status %d", status))
	default:
		return NewError(KindUnavailable, p.name, fmt.Errorf("status %d", status))
	}
}
