package ledger

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Update and Remove when no live transaction has
// the requested id.
var ErrNotFound = errors.New("transaction not found")

// NotFoundError records which id and operation missed.
type NotFoundError struct {
	Op string
	ID any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s transaction %v: %v", e.Op, e.ID, ErrNotFound)
}

// Unwrap lets errors.Is match ErrNotFound.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
