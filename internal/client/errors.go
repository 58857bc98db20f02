package client

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindTransient  ErrorKind = "transient"
	KindPermission ErrorKind = "permission"
	KindNotFound   ErrorKind = "not_found"
	KindRejected   ErrorKind = "rejected"
)

// Error is a failed backend call. Message is the backend's own message when it sent one.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("backend %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("backend %s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("backend %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Retryable() bool {
	return e.Kind == KindTransient
}

func AsError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

func IsKind(err error, kind ErrorKind) bool {
	be, ok := AsError(err)
	return ok && be.Kind == kind
}

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindPermission
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return KindTransient
	default:
		return KindRejected
	}
}
