package domain

import "fmt"

// ErrorType classifies a failed fetch for storage and retry decisions.
type ErrorType string

const (
	ErrorTimeout    ErrorType = "timeout"
	ErrorConnection ErrorType = "connection"
	ErrorDNS        ErrorType = "dns"
	ErrorHTTP       ErrorType = "http_error"
	ErrorInvalidURL ErrorType = "invalid_url"
)

// FetchError wraps a transport or protocol failure with its classification.
type FetchError struct {
	Type       ErrorType
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Type, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Type, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the call may help. Client errors and
// malformed input fail fast.
func (e *FetchError) Transient() bool {
	switch e.Type {
	case ErrorTimeout, ErrorConnection, ErrorDNS:
		return true
	case ErrorHTTP:
		return e.StatusCode >= 500
	default:
		return false
	}
}
