package workflow

import (
	"errors"
	"fmt"
)

// AssertionError reports an observed value that does not match the expected literal or pattern.
type AssertionError struct {
	Section     string
	Expectation string
	Got         string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %q", e.Section, e.Expectation, e.Got)
}

// IsAssertion reports whether err is, or wraps, an *AssertionError.
func IsAssertion(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}

func mismatch(section, expectation, got string) error {
	return &AssertionError{Section: section, Expectation: expectation, Got: got}
}
