package httpclient

import (
	"fmt"
	"time"
)

// RetryExhaustedError reports a request that failed after every retry
// attempt. RetryAfter carries the delay the caller would have waited next,
// which upstream throttling code can surface to the user.
type RetryExhaustedError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *RetryExhaustedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("HTTP %d: %s (retry after %v)", e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}
