package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrOutOfStock     = errors.New("no copies available")
	ErrISBNConflict   = errors.New("book with this isbn already exists")
	ErrAlreadyDeleted = errors.New("already deleted")
	ErrInvariant      = errors.New("available quantity already at maximum")
)

// InvalidTransitionError reports an operation that is not legal from the
// loan's current status. Disallowed transitions always fail loudly.
type InvalidTransitionError struct {
	Op     string
	Status string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("operation %q is not allowed for loan status %q", e.Op, e.Status)
}

func NewInvalidTransition(op, status string) error {
	return &InvalidTransitionError{Op: op, Status: status}
}

func IsInvalidTransition(err error) bool {
	var e *InvalidTransitionError
	return errors.As(err, &e)
}
