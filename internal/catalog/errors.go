package catalog

import (
	"errors"
	"fmt"
)

// ErrValidation marks records or queries that break the catalog invariants.
var ErrValidation = errors.New("catalog: validation failed")

var errPoolMissing = errors.New("database pool not configured")

// ValidationError describes a single invariant violation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("catalog: invalid %s: %s", e.Field, e.Reason)
}

// Is lets callers match any ValidationError against ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TransportError wraps failures talking to the store or the job queue.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return "catalog: " + e.Op + " failed"
	}
	return fmt.Sprintf("catalog: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps err unless it is nil or already a TransportError.
func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// IsTransport reports whether err carries a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
