package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed input payloads; never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrRunNotFound marks lookups of unknown pipeline runs.
	ErrRunNotFound = errors.New("run not found")
	// ErrTemporary marks collaborator failures worth retrying.
	ErrTemporary = errors.New("temporary failure")
	// ErrInternal marks invariant violations in the core itself; these are
	// defects, never retried, and surface with full diagnostics.
	ErrInternal = errors.New("internal invariant violation")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
