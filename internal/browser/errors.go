package browser

import (
	"errors"
	"fmt"
	"time"
)

// TimeoutError reports an awaited element or condition that never materialised.
type TimeoutError struct {
	Action  string
	Target  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %v: %s %s", e.Timeout, e.Action, e.Target)
}

// IsTimeout reports whether err is, or wraps, a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
