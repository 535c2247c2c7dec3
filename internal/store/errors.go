package store

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every NotFoundError via errors.Is.
var ErrNotFound = errors.New("not found")

// ErrInvalidState is matched by every InvalidStateError via errors.Is.
var ErrInvalidState = errors.New("invalid state")

// NotFoundError reports an unknown id of some entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidStateError reports an operation attempted on an entity whose
// current status does not allow it.
type InvalidStateError struct {
	Entity   string
	ID       string
	Current  string
	Expected string
}

func (e *InvalidStateError) Error() string {
	if e.Current == "" {
		return fmt.Sprintf("%s %s is not %s", e.Entity, e.ID, e.Expected)
	}
	return fmt.Sprintf("%s %s is %s, expected %s", e.Entity, e.ID, e.Current, e.Expected)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }
