package changetrail

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Tx.Update when no row matches the given id.
var ErrNotFound = errors.New("changetrail: record not found")

// InvalidInputError reports a builder argument that is not a keyed structure.
type InvalidInputError struct {
	Arg   string // "old" or "patch"
	Value any
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("changetrail: %s must be a map with string keys or a struct, got %T", e.Arg, e.Value)
}

// UnknownFieldError reports a patch key that has no counterpart in the old record.
// It is only returned by builders created with Strict.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("changetrail: unknown field %q", e.Field)
}
