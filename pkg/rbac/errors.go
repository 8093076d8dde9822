package rbac

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a principal id does not resolve to a known principal
var ErrNotFound = errors.New("principal not found")

// ErrAlreadyExists is returned when provisioning a principal id that is taken
var ErrAlreadyExists = errors.New("principal already exists")

// ErrUnknownRole is returned when provisioning a principal with a role that has no template
var ErrUnknownRole = errors.New("unknown role")

// ValidationError rejects a write that names unregistered permission keys
type ValidationError struct {
	InvalidKeys []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid permission keys: %s", strings.Join(e.InvalidKeys, ", "))
}

// PersistenceError wraps a failure of the backing store
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err carries a *ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// validateOverrides returns a *ValidationError naming every unregistered key in m
func validateOverrides(m map[string]bool) error {
	if invalid := InvalidKeys(m); len(invalid) > 0 {
		return &ValidationError{InvalidKeys: invalid}
	}
	return nil
}
