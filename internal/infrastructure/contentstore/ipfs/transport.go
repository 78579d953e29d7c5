package ipfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var errEmptyHash = errors.New("daemon returned no content address")

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// apiError carries the Kubo daemon's structured error body so callers can
// recognize benign conditions like "already exists" by message.
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("daemon responded %d: %s", e.StatusCode, e.Message)
}

func apiErrorContains(err error, fragments ...string) bool {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		return false
	}
	message := strings.ToLower(apiErr.Message)
	for _, fragment := range fragments {
		if strings.Contains(message, fragment) {
			return true
		}
	}
	return false
}

// The RPC API is POST-only; every endpoint takes its arguments as query
// parameters and add additionally takes a multipart body.

func (c *Client) post(ctx context.Context, endpoint string, query url.Values, body io.Reader, operation string) error {
	return c.do(ctx, endpoint, query, body, "", nil, operation)
}

func (c *Client) postJSON(ctx context.Context, endpoint string, query url.Values, out any, operation string) error {
	return c.do(ctx, endpoint, query, nil, "", out, operation)
}

func (c *Client) postFile(ctx context.Context, endpoint string, query url.Values, data []byte, out any, operation string) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "blob")
	if err != nil {
		return fmt.Errorf("%s: build multipart body: %w", operation, err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("%s: build multipart body: %w", operation, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("%s: build multipart body: %w", operation, err)
	}
	return c.do(ctx, endpoint, query, &body, writer.FormDataContentType(), out, operation)
}

func (c *Client) do(ctx context.Context, endpoint string, query url.Values, body io.Reader, contentType string, out any, operation string) error {
	requestURL := c.baseURL + endpoint
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", operation, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", operation, err)
	}

	if resp.StatusCode != http.StatusOK {
		return &apiError{StatusCode: resp.StatusCode, Message: daemonMessage(payload)}
	}
	if out != nil {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", operation, err)
		}
	}
	return nil
}

func daemonMessage(payload []byte) string {
	var body struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal(payload, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(payload))
}
