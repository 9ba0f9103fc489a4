// Package browser abstracts the browser engines the smoke run drives.
//
// An Engine launches an isolated browser instance and returns a Session owning one browsing
// context with one Page. Concrete backends are chromedp (Chromium) and playwright-go
// (Firefox, WebKit); the workflow code only sees the Page interface.
package browser

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/portal-smoke/internal/signals"
)

// DefaultActionTimeout bounds clicks, fills and reads when LaunchOptions leaves it unset.
const DefaultActionTimeout = 5 * time.Second

// Element addresses one node matched by a CSS selector.
// Index picks among several matches; negative values count from the end.
type Element struct {
	Selector string
	Index    int
}

// Query addresses the first node matching selector.
func Query(selector string) Element {
	return Element{Selector: selector}
}

// Last addresses the last node matching the element's selector.
func (e Element) Last() Element {
	e.Index = -1
	return e
}

func (e Element) String() string {
	if e.Index == 0 {
		return e.Selector
	}
	return fmt.Sprintf("%s[%d]", e.Selector, e.Index)
}

// Viewport is the fixed page size of a browsing context.
type Viewport struct {
	Width  int
	Height int
}

// LaunchOptions configures one engine launch.
type LaunchOptions struct {
	Headless      bool
	Viewport      Viewport
	ActionTimeout time.Duration
}

func (o LaunchOptions) actionTimeout() time.Duration {
	if o.ActionTimeout <= 0 {
		return DefaultActionTimeout
	}
	return o.ActionTimeout
}

// Engine is a launchable browser engine.
type Engine interface {
	Name() string
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}

// Session owns a launched browser, its single browsing context and page.
// Close releases all of them and is safe to call once on every exit path.
type Session interface {
	Page() Page
	Close() error
}

// Page is the interaction surface the workflow drives.
//
// Actions on an Element wait for it up to the session's action timeout; a missing or
// unresponsive control surfaces as a *TimeoutError.
type Page interface {
	Navigate(url string, timeout time.Duration) error
	Reload(timeout time.Duration) error
	WaitVisible(selector string, timeout time.Duration) error
	// WaitForFunction blocks until the JavaScript expression evaluates truthy.
	WaitForFunction(expression string, timeout time.Duration) error

	Click(el Element) error
	// ClickButton clicks the first button whose visible text contains name.
	ClickButton(name string) error
	Fill(el Element, value string) error
	Press(el Element, key string) error
	Select(el Element, value string) error

	Text(el Element) (string, error)
	Value(el Element) (string, error)
	HTML(el Element) (string, error)
	Count(selector string) (int, error)
	// Evaluate runs a JavaScript expression and decodes its JSON result into out (may be nil).
	Evaluate(expression string, out interface{}) error

	// Listen attaches passive console, page error and failed request listeners.
	Listen(sink signals.Sink)
}

var registry = map[string]func() Engine{
	"chromium": NewChromium,
	"firefox":  func() Engine { return NewPlaywright(PlaywrightFirefox) },
	"webkit":   func() Engine { return NewPlaywright(PlaywrightWebKit) },
}

// Names returns the registered engine names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves configured engine names into engines, preserving order.
func Lookup(names []string) ([]Engine, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("no browser engines configured")
	}
	engines := make([]Engine, 0, len(names))
	for _, name := range names {
		newEngine, ok := registry[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown browser engine %q (available: %s)", name, strings.Join(Names(), ", "))
		}
		engines = append(engines, newEngine())
	}
	return engines, nil
}
