package llm

import (
	"errors"
	"fmt"
)

// Common errors returned by the inference client.
var (
	// ErrUnavailable indicates the endpoint could not be reached, timed out,
	// or failed with a server error.
	ErrUnavailable = errors.New("inference endpoint unavailable")

	// ErrMalformedResponse indicates a response that does not match the
	// chat completions schema or carries no usable content.
	ErrMalformedResponse = errors.New("malformed inference response")
)

// APIError represents a client error (4xx) from the inference endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("inference API error (status %d): %s", e.StatusCode, e.Message)
}
