package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinel causes for tier transitions. They are wrapped by AppErrors so
// callers can test them with errors.Is.
var (
	ErrTableExists = stderrors.New("target table already exists")
	ErrNoTable     = stderrors.New("no existing table to merge into")
	ErrOverlap     = stderrors.New("merge range overlaps existing table")
	ErrGap         = stderrors.New("merge range leaves trading-day gap")
)

// UnknownItemError is returned when a (stack, item) pair was never registered.
type UnknownItemError struct {
	Stack string
	Item  string
}

func (e *UnknownItemError) Error() string {
	if e.Item == "" {
		return fmt.Sprintf("unknown stack %q", e.Stack)
	}
	return fmt.Sprintf("unknown item %q in stack %q", e.Item, e.Stack)
}

// NewUnknownItemError wraps an UnknownItemError in a CONFIG AppError
func NewUnknownItemError(stack, item string) *AppError {
	cause := &UnknownItemError{Stack: stack, Item: item}
	return NewConfigError("registry lookup failed", cause).
		WithContext("stack", stack).
		WithContext("item", item)
}

// IsUnknownItem reports whether err was caused by an unregistered stack or item
func IsUnknownItem(err error) bool {
	var target *UnknownItemError
	return stderrors.As(err, &target)
}
