package download

import (
	"errors"
	"fmt"
)

// Common errors returned by the download client.
var (
	// ErrNotFound indicates the conference/year data file does not exist.
	ErrNotFound = errors.New("conference data not found")

	// ErrRateLimited indicates the server rejected the request with 429.
	ErrRateLimited = errors.New("conference API rate limit exceeded")

	// ErrNetworkError indicates a network connectivity issue.
	ErrNetworkError = errors.New("network error communicating with conference API")

	// ErrInvalidResponse indicates an empty, non-JSON or mis-shaped body.
	ErrInvalidResponse = errors.New("invalid response from conference API")
)

// APIError represents an unexpected HTTP status from the conference API.
type APIError struct {
	StatusCode int
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("conference API error (status %d): %s", e.StatusCode, e.URL)
}

// IsNotFound returns true if the error indicates the data file was not found.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
