package client

import (
	"fmt"
)

// APIError represents a failed quality API request: a non-2xx status, a
// network failure, or a malformed JSON body. It aborts the whole run.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		if e.StatusCode != 0 {
			return fmt.Sprintf("quality API request failed (endpoint %s, status %d): %v",
				e.Endpoint, e.StatusCode, e.Err)
		}
		return fmt.Sprintf("quality API request failed (endpoint %s): %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("quality API request failed (endpoint %s, status %d): %s",
		e.Endpoint, e.StatusCode, e.Body)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}
