package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/ternarybob/portal-smoke/internal/signals"
)

// PlaywrightBrowser selects the playwright browser type.
type PlaywrightBrowser string

const (
	PlaywrightChromium PlaywrightBrowser = "chromium"
	PlaywrightFirefox  PlaywrightBrowser = "firefox"
	PlaywrightWebKit   PlaywrightBrowser = "webkit"
)

type playwrightEngine struct {
	kind PlaywrightBrowser
}

// NewPlaywright returns a playwright-go backed engine for the given browser type.
// The playwright driver and browsers must be installed (playwright install).
func NewPlaywright(kind PlaywrightBrowser) Engine {
	return &playwrightEngine{kind: kind}
}

func (e *playwrightEngine) Name() string {
	return string(e.kind)
}

func (e *playwrightEngine) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	s := &playwrightSession{pw: pw}

	var browserType playwright.BrowserType
	switch e.kind {
	case PlaywrightFirefox:
		browserType = pw.Firefox
	case PlaywrightWebKit:
		browserType = pw.WebKit
	default:
		browserType = pw.Chromium
	}

	s.browser, err = browserType.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to launch %s: %w", e.kind, err)
	}

	s.context, err = s.browser.NewContext(playwright.BrowserNewContextOptions{
		AcceptDownloads: playwright.Bool(true),
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create %s browser context: %w", e.kind, err)
	}

	page, err := s.context.NewPage()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to open %s page: %w", e.kind, err)
	}
	timeout := opts.actionTimeout()
	page.SetDefaultTimeout(float64(timeout.Milliseconds()))
	s.page = &playwrightPage{page: page, actionTimeout: timeout}

	return s, nil
}

type playwrightSession struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    *playwrightPage
	once    sync.Once
}

func (s *playwrightSession) Page() Page {
	return s.page
}

// Close releases the context, the browser and the driver, in that order.
func (s *playwrightSession) Close() error {
	var errs []error
	s.once.Do(func() {
		if s.context != nil {
			if err := s.context.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close browser context: %w", err))
			}
		}
		if s.browser != nil {
			if err := s.browser.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
			}
		}
		if s.pw != nil {
			if err := s.pw.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}

type playwrightPage struct {
	page          playwright.Page
	actionTimeout time.Duration
}

func (p *playwrightPage) locate(el Element) playwright.Locator {
	loc := p.page.Locator(el.Selector)
	switch {
	case el.Index == -1:
		return loc.Last()
	case el.Index < 0:
		// Nth does not accept negative offsets; resolve against the current count.
		n, err := loc.Count()
		if err != nil || n+el.Index < 0 {
			return loc.Nth(n)
		}
		return loc.Nth(n + el.Index)
	case el.Index > 0:
		return loc.Nth(el.Index)
	}
	return loc.First()
}

// wrap maps playwright timeouts onto TimeoutError.
func (p *playwrightPage) wrap(err error, action, target string, timeout time.Duration) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return &TimeoutError{Action: action, Target: target, Timeout: timeout}
	}
	return fmt.Errorf("failed to %s %s: %w", action, target, err)
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func (p *playwrightPage) Navigate(url string, timeout time.Duration) error {
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   ms(timeout),
	})
	return p.wrap(err, "navigate to", url, timeout)
}

func (p *playwrightPage) Reload(timeout time.Duration) error {
	_, err := p.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   ms(timeout),
	})
	return p.wrap(err, "reload", "page", timeout)
}

func (p *playwrightPage) WaitVisible(selector string, timeout time.Duration) error {
	err := p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: ms(timeout),
	})
	return p.wrap(err, "wait for", selector, timeout)
}

func (p *playwrightPage) WaitForFunction(expression string, timeout time.Duration) error {
	_, err := p.page.WaitForFunction(expression, nil, playwright.PageWaitForFunctionOptions{
		Timeout: ms(timeout),
	})
	return p.wrap(err, "wait for function", expression, timeout)
}

func (p *playwrightPage) Click(el Element) error {
	return p.wrap(p.locate(el).Click(), "click", el.String(), p.actionTimeout)
}

// ClickButton resolves by accessible role, which excludes hidden buttons.
func (p *playwrightPage) ClickButton(name string) error {
	err := p.page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{Name: name}).First().Click()
	return p.wrap(err, "click button", name, p.actionTimeout)
}

func (p *playwrightPage) Fill(el Element, value string) error {
	return p.wrap(p.locate(el).Fill(value), "fill", el.String(), p.actionTimeout)
}

func (p *playwrightPage) Press(el Element, key string) error {
	return p.wrap(p.locate(el).Press(key), "press "+key+" in", el.String(), p.actionTimeout)
}

func (p *playwrightPage) Select(el Element, value string) error {
	_, err := p.locate(el).SelectOption(playwright.SelectOptionValues{ValuesOrLabels: &[]string{value}})
	return p.wrap(err, "select "+value+" in", el.String(), p.actionTimeout)
}

func (p *playwrightPage) Text(el Element) (string, error) {
	text, err := p.locate(el).TextContent()
	return text, p.wrap(err, "read text of", el.String(), p.actionTimeout)
}

func (p *playwrightPage) Value(el Element) (string, error) {
	value, err := p.locate(el).InputValue()
	return value, p.wrap(err, "read value of", el.String(), p.actionTimeout)
}

func (p *playwrightPage) HTML(el Element) (string, error) {
	html, err := p.locate(el).InnerHTML()
	return html, p.wrap(err, "read html of", el.String(), p.actionTimeout)
}

func (p *playwrightPage) Count(selector string) (int, error) {
	n, err := p.page.Locator(selector).Count()
	return n, p.wrap(err, "count", selector, p.actionTimeout)
}

// Evaluate round-trips the result through JSON so out behaves like chromedp's decoding.
func (p *playwrightPage) Evaluate(expression string, out interface{}) error {
	result, err := p.page.Evaluate(expression)
	if err != nil {
		return p.wrap(err, "evaluate", "script", p.actionTimeout)
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode evaluation result: %w", err)
	}
	return nil
}

func (p *playwrightPage) Listen(sink signals.Sink) {
	p.page.OnConsole(func(msg playwright.ConsoleMessage) {
		if msg.Type() == "error" {
			sink.Record(signals.KindConsoleError, msg.Text())
		}
	})
	p.page.OnPageError(func(err error) {
		sink.Record(signals.KindPageError, err.Error())
	})
	p.page.OnRequestFailed(func(req playwright.Request) {
		reason := ""
		if failure := req.Failure(); failure != nil {
			reason = failure.Error()
		}
		sink.Record(signals.KindRequestFailed, signals.RequestFailure(req.URL(), reason))
	})
}
