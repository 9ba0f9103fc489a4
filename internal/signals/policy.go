package signals

import (
	"fmt"
	"strings"
)

// KnownFlakyScriptURL is the single third-party asset whose load failures are tolerated.
// The portal falls back to a second CDN when this copy of the docx bundle is blocked.
const KnownFlakyScriptURL = "unpkg.com/docx@8.5.0/build/index.js"

// IsKnownFlaky reports whether a message describes one of the enumerated load failures
// of KnownFlakyScriptURL: blocked by ORB, corrupted content (Firefox), or refused because
// of nosniff MIME checking.
func IsKnownFlaky(message string) bool {
	switch {
	case strings.Contains(message, KnownFlakyScriptURL+" :: net::ERR_BLOCKED_BY_ORB"):
		return true
	case strings.Contains(message, KnownFlakyScriptURL+" :: NS_ERROR_CORRUPTED_CONTENT"):
		return true
	case strings.Contains(message, KnownFlakyScriptURL) &&
		strings.Contains(message, "MIME type") &&
		strings.Contains(message, "nosniff"):
		return true
	}
	return false
}

// Classification splits a run's signals into tolerated and fatal buckets.
type Classification struct {
	Expected   []Signal
	Unexpected []Signal
}

// Classify applies the known-flaky allowlist to every signal.
func Classify(captured []Signal) Classification {
	var c Classification
	for _, s := range captured {
		if IsKnownFlaky(s.String()) {
			c.Expected = append(c.Expected, s)
			continue
		}
		c.Unexpected = append(c.Unexpected, s)
	}
	return c
}

// Err returns an UnexpectedSignalsError when any unexpected signal remains.
func (c Classification) Err(engine string) error {
	if len(c.Unexpected) == 0 {
		return nil
	}
	msgs := make([]string, len(c.Unexpected))
	for i, s := range c.Unexpected {
		msgs[i] = s.String()
	}
	return &UnexpectedSignalsError{Engine: engine, Messages: msgs}
}

// UnexpectedSignalsError fails a run whose page produced signals outside the allowlist.
type UnexpectedSignalsError struct {
	Engine   string
	Messages []string
}

func (e *UnexpectedSignalsError) Error() string {
	return fmt.Sprintf("%s console errors:\n%s", e.Engine, strings.Join(e.Messages, "\n"))
}
