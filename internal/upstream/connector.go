// Package upstream talks to the provider vendors' HTTP APIs.
package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Connector executes one chat completion against a provider upstream.
type Connector interface {
	Call(ctx context.Context, model string, payload []byte) ([]byte, error)
}

const completionsPath = "/v1/chat/completions"

// HTTPConnector is the production connector for OpenAI-style APIs.
type HTTPConnector struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPConnector(baseURL, apiKey string, timeout time.Duration) *HTTPConnector {
	return &HTTPConnector{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPConnector) Call(ctx context.Context, model string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upstream: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &ThrottleError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Cause:      &StatusError{Code: resp.StatusCode, Body: truncate(body)},
		}
	case resp.StatusCode >= 400:
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(body)}
	}

	return body, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return time.Second
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Second
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
