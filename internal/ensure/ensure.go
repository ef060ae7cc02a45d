// Package ensure implements the precondition checks actions run before they
// submit anything.
package ensure

import "fmt"

// EnsureError is returned when a precondition does not hold.
type EnsureError struct {
	Message string
}

func (e *EnsureError) Error() string {
	return e.Message
}

// That returns an *EnsureError carrying the formatted message when cond is
// false, and nil otherwise.
func That(cond bool, format string, args ...any) error {
	if cond {
		return nil
	}
	return &EnsureError{Message: fmt.Sprintf(format, args...)}
}
