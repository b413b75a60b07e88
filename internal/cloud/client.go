// Package cloud talks to the cloud sync REST service.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/starford/chatsync/internal/apperr"
)

// DefaultTimeout bounds a single request when the caller supplies no
// http.Client.
const DefaultTimeout = 30 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 64 << 20

// Client issues authenticated requests against the cloud base URL.
// It holds no token; every call is given one.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient returns a client for baseURL. A nil httpClient gets one with
// DefaultTimeout.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// do sends body as JSON (when non-nil) and returns the raw 2xx response
// body. Failures are *apperr.Error values of kind ErrTransport,
// ErrHTTPStatus or ErrUnauthenticated.
func (c *Client) do(ctx context.Context, method, path, token string, body any) ([]byte, error) {
	op := method + " " + path
	if strings.TrimSpace(token) == "" {
		return nil, apperr.New(op, apperr.ErrUnauthenticated, nil)
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("cloud: %s: encode body: %w", op, err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("cloud: %s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if !strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = "Bearer " + token
	}
	req.Header.Set("Authorization", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.New(op, apperr.ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, apperr.New(op, apperr.ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Status(op, resp.StatusCode)
	}
	return data, nil
}

// envelope is the application-level wrapper of every GET response.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

// unwrap returns the data payload of an envelope. An empty body, a
// success=false flag or a null payload are all decode failures, whatever
// the HTTP status was.
func unwrap(op string, body []byte) (json.RawMessage, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, apperr.Decodef(op, "empty response body")
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperr.New(op, apperr.ErrDecode, err)
	}
	if !env.Success {
		return nil, apperr.Decodef(op, "response reported success=false")
	}
	if isNull(env.Data) {
		return nil, apperr.Decodef(op, "response data is null")
	}
	return env.Data, nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
