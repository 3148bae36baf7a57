package common

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// JSONClient posts JSON to platforms that have no Go SDK
type JSONClient struct {
	platform   string
	httpClient *http.Client
}

func NewJSONClient(platform string, timeout time.Duration) *JSONClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &JSONClient{
		platform:   platform,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PostJSON marshals payload, sends it and decodes a 2xx body into out.
// Non-2xx responses come back as *StatusError so the retry layer can classify them.
func (c *JSONClient) PostJSON(ctx context.Context, url string, headers map[string]string, payload, out any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{
			Platform:   c.platform,
			StatusCode: resp.StatusCode,
			Message:    ErrorMessage(body),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", c.platform, err)
	}
	return nil
}
