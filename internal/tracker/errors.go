package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type APIError struct {
	Method     string
	Path       string
	Message    string
	StatusCode int
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Retryable reports whether the same request may succeed later.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= 500
}

func newAPIError(method, path string, resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
	}

	var parsed struct {
		ErrorMessages []string `json:"errorMessages"`
		Message       string   `json:"message"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		switch {
		case len(parsed.ErrorMessages) > 0:
			apiErr.Message = strings.Join(parsed.ErrorMessages, "; ")
		case parsed.Message != "":
			apiErr.Message = parsed.Message
		}
	}
	if len(apiErr.Message) > 500 {
		apiErr.Message = apiErr.Message[:500]
	}

	if secs, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("Retry-After"))); err == nil && secs > 0 {
		apiErr.RetryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}

// IsNotFound reports a 404 from Jira.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsRetryable classifies an error from a Client call. Timeouts and transport
// failures are retryable, as are 408, 429 and 5xx. Other statuses, decoding
// errors and caller cancellation are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
