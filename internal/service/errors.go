package service

import (
	"errors"

	"prep-service/internal/client"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrInvalidInput       = errors.New("invalid input")
	ErrConflict           = errors.New("conflict")
	ErrAgencyRequired     = errors.New("select an agency before continuing")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrActionNotAllowed   = errors.New("this action is not available right now")
)

// classified tags err with one of the sentinels above while keeping err's message.
type classified struct {
	class error
	err   error
}

func (e *classified) Error() string {
	return e.err.Error()
}

func (e *classified) Unwrap() []error {
	return []error{e.class, e.err}
}

func invalidInput(err error) error {
	return &classified{class: ErrInvalidInput, err: err}
}

func conflict(err error) error {
	return &classified{class: ErrConflict, err: err}
}

// fromBackend maps a client failure onto the service sentinels. Rejections keep the
// backend's *client.Error so its message reaches the user verbatim.
func fromBackend(err error) error {
	be, ok := client.AsError(err)
	if !ok {
		return err
	}
	switch be.Kind {
	case client.KindPermission:
		return &classified{class: ErrPermissionDenied, err: be}
	case client.KindNotFound:
		return &classified{class: ErrNotFound, err: be}
	case client.KindTransient:
		return &classified{class: ErrBackendUnavailable, err: be}
	default:
		return be
	}
}
