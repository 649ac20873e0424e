package domain

import (
	"errors"
	"fmt"
)

// ErrorClass tags why an attempt failed.
type ErrorClass string

const (
	ClassNone           ErrorClass = "success"
	ClassSchemaMismatch ErrorClass = "schema_mismatch"
	ClassTypeMismatch   ErrorClass = "type_mismatch"
	ClassUnauthorized   ErrorClass = "unauthorized"
	ClassServerError    ErrorClass = "server_error"
	ClassClientError    ErrorClass = "client_error"
	ClassUnreachable    ErrorClass = "unreachable"
)

// ErrMalformedResponse is returned when a response body does not decode as GraphQL JSON.
var ErrMalformedResponse = errors.New("malformed graphql response")

// ErrInvalidRequest is returned when an operation cannot be turned into an
// HTTP request at all, such as unserializable variables or a bad endpoint URL.
// Nothing was sent, so there is nothing to retry.
var ErrInvalidRequest = errors.New("invalid graphql request")

// TransportError is a failure surfaced by the transport. StatusCode is 0 when no
// HTTP status was received (connection refused, timeout, DNS).
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TerminalError is returned to the caller once no further retries will happen.
type TerminalError struct {
	Operation string
	Class     ErrorClass
	Attempts  int
	Errors    []GraphQLError
	Err       error
}

func (e *TerminalError) Error() string {
	msg := fmt.Sprintf("%s failed after %d attempt(s) [%s]", e.Operation, e.Attempts, e.Class)
	switch {
	case e.Err != nil:
		return msg + ": " + e.Err.Error()
	case len(e.Errors) > 0:
		return msg + ": " + e.Errors[0].Message
	}
	return msg
}

func (e *TerminalError) Unwrap() error { return e.Err }

// ClassOf extracts the failure class from a terminal error, or ClassNone.
func ClassOf(err error) ErrorClass {
	var te *TerminalError
	if errors.As(err, &te) {
		return te.Class
	}
	return ClassNone
}

// IsUnauthorized reports whether err ended in an auth failure (re-login needed).
func IsUnauthorized(err error) bool {
	return ClassOf(err) == ClassUnauthorized
}
