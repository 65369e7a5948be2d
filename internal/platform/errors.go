package platform

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/diamondburned/arikawa/v3/utils/httputil"
)

// Sentinel errors for lookups that may legitimately come up empty.
// Callers branch on these instead of treating absence as exceptional.
var (
	// ErrNotFound reports a message or channel that no longer exists.
	ErrNotFound = errors.New("platform: not found")
	// ErrRoleNotFound reports a role name missing from the guild's role
	// set. This is a configuration error, not a runtime one.
	ErrRoleNotFound = errors.New("platform: role not found in guild")
)

// RateLimitError reports a 429 from the platform along with how long it
// asked us to wait.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("platform: rate limited, retry after %s", e.RetryAfter)
}

// rateLimitBody is the JSON payload Discord attaches to 429 responses.
type rateLimitBody struct {
	RetryAfter float64 `json:"retry_after"`
}

// AsRateLimit extracts a RateLimitError from an API error chain.
// It recognizes both our own RateLimitError and a raw 429 HTTP error.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}

	var httpErr *httputil.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusTooManyRequests {
		return nil, false
	}

	retryAfter := time.Second
	var body rateLimitBody
	if jsonErr := json.Unmarshal(httpErr.Body, &body); jsonErr == nil && body.RetryAfter > 0 {
		retryAfter = time.Duration(body.RetryAfter * float64(time.Second))
	}
	return &RateLimitError{RetryAfter: retryAfter}, true
}

// IsForbidden reports whether err is a permission rejection from the
// platform.
func IsForbidden(err error) bool {
	var httpErr *httputil.HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == http.StatusForbidden
}

// IsNotFound reports whether err means the target no longer exists.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var httpErr *httputil.HTTPError
	return errors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound
}
