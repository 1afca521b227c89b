package complianceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

func (c *Client) do(
	ctx context.Context,
	operation, method, path string,
	query url.Values,
	contentType string,
	body []byte,
	out any,
) (err error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set(requestIDHeader, requestID)

	started := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveBackendCall(operation, time.Since(started), err)
		}
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		statusErr := newHTTPStatusError(operation, resp)
		c.logger.Debug("backend_http_error",
			"operation", operation,
			"request_id", requestID,
			"status", resp.StatusCode,
		)
		return statusErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

// HTTPStatusError is a non-2xx backend reply. Message is the server's own
// explanation when the body carries one.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
	Message    string
}

func newHTTPStatusError(operation string, resp *http.Response) *HTTPStatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	body := strings.TrimSpace(string(raw))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       body,
		Message:    serverMessage(body),
	}
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "backend status error"
	}
	if e.Message == "" {
		return fmt.Sprintf("%s failed: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("%s failed: %s. %s", e.Operation, e.Status, e.Message)
}

// serverMessage prefers the message field of a JSON error body.
func serverMessage(body string) string {
	if body == "" {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return body
}
