package core

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentNotFound is returned by a DocumentStore for a missing path.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrNoObservation is returned when an assessment is requested before
	// signals were observed in the session.
	ErrNoObservation = errors.New("no observed signals: call observe_signals first")

	// ErrNoActiveGoal is returned when an operation needs a goal and none is set.
	ErrNoActiveGoal = errors.New("no active goal")

	// ErrMalformedAssessment is returned when the model's assessment reply is
	// not valid JSON. It aborts the current turn.
	ErrMalformedAssessment = errors.New("malformed assessment response")

	// ErrMissingAPIKey is returned before any request when no credential is configured.
	ErrMissingAPIKey = errors.New("missing language model API key")

	// ErrAuthentication is returned when the endpoint rejects the credential.
	ErrAuthentication = errors.New("language model authentication failed")
)

// APIError is a non-2xx response from the language model endpoint other than
// an authentication failure.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("language model API error %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("language model API error %d: %s", e.StatusCode, e.Message)
}

// isFatal reports whether err must abort the current turn rather than be fed
// back to the model as a tool error.
func isFatal(err error) bool {
	var apiErr *APIError
	return errors.Is(err, ErrMalformedAssessment) ||
		errors.Is(err, ErrMissingAPIKey) ||
		errors.Is(err, ErrAuthentication) ||
		errors.As(err, &apiErr)
}
