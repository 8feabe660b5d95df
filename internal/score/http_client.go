package score

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/leadscope/leadscope/internal/domain"
)

var _ InferenceClient = (*HTTPClient)(nil)

// HTTPClient talks to the inference service over HTTP.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates an InferenceClient against the given base URL.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Score asks the inference service to rate content against the profile.
func (c *HTTPClient) Score(ctx context.Context, profile domain.ICPProfile, content *domain.DomainContent) (*domain.ScoreResponse, error) {
	var resp domain.ScoreResponse
	err := c.post(ctx, "/v1/score", map[string]any{
		"profile": profile,
		"content": content,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GenerateProfile asks the inference service to derive an ICP profile.
func (c *HTTPClient) GenerateProfile(ctx context.Context, attrs domain.CompanyAttributes) (*domain.ICPProfile, error) {
	var resp domain.ICPProfile
	err := c.post(ctx, "/v1/profiles", map[string]any{
		"attributes": attrs,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("inference: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("inference: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return &domain.PipelineError{
			Category:  domain.CategoryInference,
			Retriable: true,
			Err:       fmt.Errorf("inference: %w", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &domain.PipelineError{
			Category:   domain.CategoryInference,
			StatusCode: resp.StatusCode,
			Retriable:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			Err:        fmt.Errorf("inference: unexpected status %d", resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("inference: decode response: %w", err)
	}
	return nil
}
