package docsync

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrUnsupportedPatchAction = errors.New("unsupported patch action")
	ErrMalformedPatchPath     = errors.New("malformed patch path")
	ErrMalformedDocument      = errors.New("malformed document value")
	ErrSessionDisposed        = errors.New("sync session disposed")
)

// SetupError is returned by CreateSync when the session could not be
// started. The world is left untouched.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("docsync setup: %v", e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

func setupError(err error, msg string) *SetupError {
	return &SetupError{Err: errors.Wrap(err, msg)}
}
