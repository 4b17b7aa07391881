package step

import (
	"errors"
	"fmt"
)

// ErrMissingImagePrompt is reported when the text phase gave nothing to illustrate.
var ErrMissingImagePrompt = errors.New("text result carries no image prompt")

// RemoteError is a non-success HTTP response from the generation service.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Status, e.Message)
}

// NetworkError means the call could not complete at all.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
