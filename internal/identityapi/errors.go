package identityapi

import (
	"errors"
	"fmt"
	"net/http"
)

// TransportError is a failure to reach the service or to read its answer.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerRejection is a non-2xx answer. Message is the service's own text.
type ServerRejection struct {
	Op      string
	Status  int
	Message string
}

func (e *ServerRejection) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.Status, http.StatusText(e.Status))
}

// IsUnauthorized reports whether err is a 401 or 403 rejection.
func IsUnauthorized(err error) bool {
	var sr *ServerRejection
	if !errors.As(err, &sr) {
		return false
	}
	return sr.Status == http.StatusUnauthorized || sr.Status == http.StatusForbidden
}

// MessageOf returns the service-provided message carried by err, or "".
func MessageOf(err error) string {
	var sr *ServerRejection
	if errors.As(err, &sr) {
		return sr.Message
	}
	return ""
}
