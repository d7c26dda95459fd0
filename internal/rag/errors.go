package rag

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for caller mistakes such as an empty message
	// or a non-positive result count. It is never worth retrying.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRetrieverUnavailable means vector search or paper hydration failed.
	ErrRetrieverUnavailable = errors.New("retriever unavailable")

	// ErrInferenceUnavailable means the completion endpoint could not be
	// reached, timed out, or answered with something unusable.
	ErrInferenceUnavailable = errors.New("inference unavailable")

	// ErrExport means the export sink could not be written.
	ErrExport = errors.New("export failed")

	// ErrConversationBusy is returned when a conversation already has a
	// request in flight.
	ErrConversationBusy = errors.New("conversation has a request in flight")
)

// BackendError records which external call failed during a turn.
// errors.Is matches both Kind and the underlying error.
type BackendError struct {
	Kind error  // ErrRetrieverUnavailable or ErrInferenceUnavailable
	Call string // e.g. "retriever.search"
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Call, e.Err)
}

func (e *BackendError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func retrieverError(call string, err error) error {
	return &BackendError{Kind: ErrRetrieverUnavailable, Call: call, Err: err}
}

func inferenceError(call string, err error) error {
	return &BackendError{Kind: ErrInferenceUnavailable, Call: call, Err: err}
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
