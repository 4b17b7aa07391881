package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhouzirui/storyteller/backend/internal/service/step"
)

// ErrInvalidTransition is returned when an operation is not allowed in the
// current mode. The state is left untouched.
var ErrInvalidTransition = errors.New("invalid session transition")

// ValidationError reports missing or malformed local input. It is raised
// before any remote call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ErrorKind classifies ErrorInfo.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindRemote     ErrorKind = "remote"
	KindNetwork    ErrorKind = "network"
)

// ErrorInfo is the user-visible error slot of a session.
type ErrorInfo struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func describe(err error) *ErrorInfo {
	var (
		remote     *step.RemoteError
		network    *step.NetworkError
		validation *ValidationError
	)

	switch {
	case errors.As(err, &validation):
		return &ErrorInfo{Kind: KindValidation, Message: validation.Message}
	case errors.As(err, &remote):
		return &ErrorInfo{Kind: KindRemote, Status: remote.Status, Message: remote.Message}
	case errors.Is(err, context.DeadlineExceeded):
		return &ErrorInfo{Kind: KindNetwork, Message: "request timed out"}
	case errors.As(err, &network):
		return &ErrorInfo{Kind: KindNetwork, Message: network.Error()}
	default:
		return &ErrorInfo{Kind: KindRemote, Message: err.Error()}
	}
}

func transitionError(op string, mode Mode) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidTransition, op, mode)
}
