// Package xerrors implements the error taxonomy of the transfer engine's
// error handling design: TransientService, PermanentService, CommitRace,
// PayloadTooLarge, UnsupportedInput, and AuthFailure. Wrapping follows the
// teacher's convention of github.com/pkg/errors.Wrap/Wrapf so a cause
// chain survives up to the caller.
package xerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Context is attached to every typed error so a caller can report which
// operation, container, and blob were involved.
type Context struct {
	Op            string
	Container     string
	Blob          string
	HTTPStatus    int
	TransportCode int
}

func (c Context) String() string {
	s := c.Op
	if c.Container != "" {
		s += " container=" + c.Container
	}
	if c.Blob != "" {
		s += " blob=" + c.Blob
	}
	if c.HTTPStatus != 0 {
		s += fmt.Sprintf(" http=%d", c.HTTPStatus)
	}
	if c.TransportCode != 0 {
		s += fmt.Sprintf(" transport=%d", c.TransportCode)
	}
	return s
}

// TransientServiceError wraps a retryable outcome that ran out of retries.
type TransientServiceError struct {
	Context
	Cause error
}

func (e *TransientServiceError) Error() string {
	return "transient service error exhausted retries: " + e.Context.String()
}

func (e *TransientServiceError) Unwrap() error { return e.Cause }

// PermanentServiceError wraps a non-retryable HTTP failure.
type PermanentServiceError struct {
	Context
	Cause error
}

func (e *PermanentServiceError) Error() string {
	return "permanent service error: " + e.Context.String()
}

func (e *PermanentServiceError) Unwrap() error { return e.Cause }

// CommitRaceError is the unresolved InvalidBlockList race: the committed
// block set did not match the plan, so the original 400 is propagated.
type CommitRaceError struct {
	Context
	Cause error
}

func (e *CommitRaceError) Error() string {
	return "commit race could not be reconciled: " + e.Context.String()
}

func (e *CommitRaceError) Unwrap() error { return e.Cause }

// PayloadTooLargeError is raised by the block planner when no legal plan fits.
type PayloadTooLargeError struct {
	Context
	NumBytes   int64
	NumBlocks  int64
	MaxBlocks  int64
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("payload too large: %d bytes would require %d blocks, max is %d (%s)",
		e.NumBytes, e.NumBlocks, e.MaxBlocks, e.Context.String())
}

// UnsupportedInputError is raised before any HTTP request for a caller
// input that cannot be represented as a contiguous byte buffer.
type UnsupportedInputError struct {
	Context
	Reason string
}

func (e *UnsupportedInputError) Error() string {
	return "unsupported input: " + e.Reason + " (" + e.Context.String() + ")"
}

// AuthFailureError wraps a token-endpoint failure or a session with no
// refreshable credential.
type AuthFailureError struct {
	Context
	Cause error
}

func (e *AuthFailureError) Error() string {
	return "authentication failure: " + e.Context.String()
}

func (e *AuthFailureError) Unwrap() error { return e.Cause }

// ConfigurationError is raised when a session cannot possibly authenticate
// (spec.md §4.2 step 2, "no refreshable credential").
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// Wrap and Wrapf re-export github.com/pkg/errors so callers of this
// package never need to import it directly alongside xerrors.
func Wrap(err error, message string) error { return errors.Wrap(err, message) }

func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// Cause unwraps to the deepest error in a pkg/errors-style chain.
func Cause(err error) error { return errors.Cause(err) }
