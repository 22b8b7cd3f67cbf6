package fhir

import (
	"fmt"
)

// ErrorKind classifies an upstream fetch failure for logging and metrics.
// None of these errors escape the fetch loop; the kind only labels what cut
// the pagination short.
type ErrorKind string

const (
	// KindNetwork covers transport failures and timeouts.
	KindNetwork ErrorKind = "network"

	// KindStatus covers non-success HTTP responses.
	KindStatus ErrorKind = "status"

	// KindDecode covers unparsable response bodies.
	KindDecode ErrorKind = "decode"
)

// RequestError is an upstream fetch failure with request context attached.
type RequestError struct {
	URL        string
	StatusCode int
	Kind       ErrorKind
	Err        error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fhir %s error (status %d): %s", e.Kind, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("fhir %s error: %s: %v", e.Kind, e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RequestError) Unwrap() error {
	return e.Err
}
