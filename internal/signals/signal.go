// Package signals records runtime signals raised by a browser page (console errors,
// uncaught page errors, failed requests) and decides which of them are tolerated.
package signals

import (
	"fmt"
	"sync"
	"time"
)

// Kind identifies the browser channel a signal was captured from.
type Kind string

const (
	KindConsoleError  Kind = "console"
	KindPageError     Kind = "pageerror"
	KindRequestFailed Kind = "requestfailed"
)

// Signal is one captured runtime message.
type Signal struct {
	Kind    Kind
	Message string
	At      time.Time
}

// String renders the signal the way it is reported, e.g. "[console] boom".
func (s Signal) String() string {
	return fmt.Sprintf("[%s] %s", s.Kind, s.Message)
}

// Sink receives signals from passive page listeners.
type Sink interface {
	Record(kind Kind, message string)
}

// RequestFailure formats a failed request message as "<url> :: <reason>".
func RequestFailure(url, reason string) string {
	if reason == "" {
		reason = "unknown"
	}
	return url + " :: " + reason
}

// Log is an append-only signal log owned by a single page lifetime.
// Browser callbacks run on library goroutines, so appends are serialised.
type Log struct {
	mu      sync.Mutex
	entries []Signal
	now     func() time.Time
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// Record appends a signal.
func (l *Log) Record(kind Kind, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Signal{Kind: kind, Message: message, At: l.now()})
}

// Signals returns a copy of the captured signals in arrival order.
func (l *Log) Signals() []Signal {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Signal, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of captured signals.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
