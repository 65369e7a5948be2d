package platform

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/diamondburned/arikawa/v3/utils/httputil"
)

func TestAsRateLimit(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantOK    bool
		wantDelay time.Duration
	}{
		{
			name:      "own rate limit error",
			err:       &RateLimitError{RetryAfter: 2 * time.Second},
			wantOK:    true,
			wantDelay: 2 * time.Second,
		},
		{
			name: "wrapped rate limit error",
			err:  fmt.Errorf("delete message: %w", &RateLimitError{RetryAfter: time.Second}),
			wantOK:    true,
			wantDelay: time.Second,
		},
		{
			name: "http 429 with retry_after",
			err: &httputil.HTTPError{
				Status: http.StatusTooManyRequests,
				Body:   []byte(`{"retry_after": 1.5}`),
			},
			wantOK:    true,
			wantDelay: 1500 * time.Millisecond,
		},
		{
			name: "http 429 with unparseable body",
			err: &httputil.HTTPError{
				Status: http.StatusTooManyRequests,
				Body:   []byte("nope"),
			},
			wantOK:    true,
			wantDelay: time.Second,
		},
		{
			name:   "http 403 is not a rate limit",
			err:    &httputil.HTTPError{Status: http.StatusForbidden},
			wantOK: false,
		},
		{
			name:   "plain error",
			err:    fmt.Errorf("boom"),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl, ok := AsRateLimit(tt.err)
			if ok != tt.wantOK {
				t.Fatalf("AsRateLimit() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && rl.RetryAfter != tt.wantDelay {
				t.Errorf("RetryAfter = %v, want %v", rl.RetryAfter, tt.wantDelay)
			}
		})
	}
}

func TestIsForbidden(t *testing.T) {
	if !IsForbidden(&httputil.HTTPError{Status: http.StatusForbidden}) {
		t.Error("403 should be forbidden")
	}
	if IsForbidden(&httputil.HTTPError{Status: http.StatusNotFound}) {
		t.Error("404 should not be forbidden")
	}
	if IsForbidden(fmt.Errorf("boom")) {
		t.Error("plain error should not be forbidden")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(ErrNotFound) {
		t.Error("ErrNotFound should be not-found")
	}
	if !IsNotFound(fmt.Errorf("fetch: %w", ErrNotFound)) {
		t.Error("wrapped ErrNotFound should be not-found")
	}
	if !IsNotFound(&httputil.HTTPError{Status: http.StatusNotFound}) {
		t.Error("404 should be not-found")
	}
	if IsNotFound(&httputil.HTTPError{Status: http.StatusForbidden}) {
		t.Error("403 should not be not-found")
	}
}
