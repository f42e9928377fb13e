package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/claude/repcoach/internal/models"
)

// ErrRejected is returned when the server refuses a definition. Rejections
// are not retried.
var ErrRejected = errors.New("definition rejected")

// Client sends workout definitions to the repcoach server over HTTP.
type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
	backoff    time.Duration
}

// NewClient creates a new HTTP client for the repcoach server.
func NewClient(serverURL, apiKey string) *Client {
	return &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		backoff: time.Second,
	}
}

// SendDefinition POSTs a raw definition to the server's workout endpoint and
// returns the stored row. Retries up to 3 times with exponential backoff on
// transport errors and 5xx responses.
func (c *Client) SendDefinition(ctx context.Context, name, format string, data []byte) (models.WorkoutRow, error) {
	var row models.WorkoutRow

	q := url.Values{}
	q.Set("format", format)
	q.Set("source", string(models.SourceSync))
	if name != "" {
		q.Set("name", name)
	}
	endpoint := c.serverURL + "/api/v1/workouts?" + q.Encode()

	contentType := "application/yaml"
	if format == "json" {
		contentType = "application/json"
	}

	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return row, ctx.Err()
			case <-time.After(c.backoff << uint(attempt-1)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return row, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("X-API-Key", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(body, &row); err != nil {
				return row, fmt.Errorf("decoding response: %w", err)
			}
			return row, nil
		case resp.StatusCode < 500:
			return row, fmt.Errorf("%w (status %d): %s", ErrRejected, resp.StatusCode, bytes.TrimSpace(body))
		}
		lastErr = fmt.Errorf("upload failed (status %d): %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	return row, fmt.Errorf("after 3 attempts: %w", lastErr)
}
