package session

import (
	"errors"
	"fmt"

	"github.com/naveenspark/quicknotes/pkg/domain"
)

var (
	// ErrBusy is returned when an OTP request or verification is already in flight.
	ErrBusy = errors.New("session: authentication request already in flight")
	// ErrStale is returned when the session moved on while a request was in
	// flight. The response was not applied.
	ErrStale = errors.New("session: state changed while request was in flight")
)

// TransitionError indicates an operation is not allowed in the current state.
type TransitionError struct {
	From  domain.Status
	Event string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session: no transition from %s on %s", e.From, e.Event)
}

// IsTransitionError reports whether err is a TransitionError.
func IsTransitionError(err error) bool {
	var e *TransitionError
	return errors.As(err, &e)
}
