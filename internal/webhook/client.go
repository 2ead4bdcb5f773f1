package webhook

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
)

// ErrEmptyInput is returned before any request is made when the message is
// blank or no group was given
var ErrEmptyInput = errors.New("empty message or no group selected")

// StatusError is returned when the webhook answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook %d: %s", e.StatusCode, e.Body)
}

// Payload is the JSON body posted to the webhook
type Payload struct {
	Message string   `json:"message"`
	Groups  []string `json:"groups"`
}

// Options configures a Client
type Options struct {
	// Timeout bounds the whole request. Zero leaves the transport defaults.
	Timeout   time.Duration
	Headers   map[string]string
	UserAgent string
}

// Client posts broadcast payloads to a webhook
type Client struct {
	url        string
	headers    map[string]string
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a new webhook client
func NewClient(url string, opts Options) *Client {
	return &Client{
		url:       url,
		headers:   opts.Headers,
		userAgent: opts.UserAgent,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

// URL returns the configured endpoint
func (c *Client) URL() string {
	return c.url
}

// Broadcast sends message to groups with a single POST. Group ids are passed
// through as given, duplicates included. On success the response body is
// returned when it is valid JSON, nil otherwise.
func (c *Client) Broadcast(ctx context.Context, message string, groups []string) (json.RawMessage, error) {
	if strings.TrimSpace(message) == "" || len(groups) == 0 {
		return nil, ErrEmptyInput
	}

	data, err := json.Marshal(Payload{Message: message, Groups: groups})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	// The webhook may answer with anything; only JSON is handed back
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !json.Valid(body) {
		return nil, nil
	}
	return json.RawMessage(body), nil
}
