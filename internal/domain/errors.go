package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or inconsistent caller input: wrong
// chunk counts, out-of-range indices, empty hash extraction, bad dimensions.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError creates a ValidationError with a formatted message.
func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ExternalToolError reports a failure or timeout of an external collaborator
// (codec concatenation, keyframe/hash extraction, audio fingerprinting).
type ExternalToolError struct {
	Tool string
	Err  error
}

func (e *ExternalToolError) Error() string {
	return fmt.Sprintf("external tool %s failed: %v", e.Tool, e.Err)
}

func (e *ExternalToolError) Unwrap() error { return e.Err }

// NewExternalToolError wraps err as a failure of the named tool.
func NewExternalToolError(tool string, err error) error {
	return &ExternalToolError{Tool: tool, Err: err}
}

// NotFoundError reports a missing session or corpus reference.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

// NewNotFoundError creates a NotFoundError for the given resource and key.
func NewNotFoundError(resource, key string) error {
	return &NotFoundError{Resource: resource, Key: key}
}

// ErrConcurrencyConflict indicates an operation raced with another on the
// same session (for example, the loser of a double-completion race). It is
// benign: callers treat it as a no-op rather than a failure.
var ErrConcurrencyConflict = errors.New("session is being processed by another caller")

// PersistenceError reports a storage-layer failure during an atomic
// analysis-run write. The whole run is treated as failed.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NewPersistenceError wraps err as a persistence failure during op.
func NewPersistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsExternalTool reports whether err is an ExternalToolError.
func IsExternalTool(err error) bool {
	var te *ExternalToolError
	return errors.As(err, &te)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}
