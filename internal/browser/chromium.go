package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/ternarybob/portal-smoke/internal/signals"
)

var chromedpKeys = map[string]string{
	"Enter":  kb.Enter,
	"Tab":    kb.Tab,
	"Escape": kb.Escape,
}

type chromiumEngine struct{}

// NewChromium returns the chromedp-backed Chromium engine.
func NewChromium() Engine {
	return &chromiumEngine{}
}

func (e *chromiumEngine) Name() string {
	return "chromium"
}

// Launch starts a fresh Chrome process and opens an isolated browser context in it.
func (e *chromiumEngine) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(opts.Viewport.Width, opts.Viewport.Height),
	)

	s := &chromiumSession{}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	s.cleanup = append(s.cleanup, cancelAlloc)

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	s.cleanup = append(s.cleanup, cancelBrowser)

	// The first Run allocates the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		s.release()
		return nil, fmt.Errorf("failed to start chromium: %w", err)
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx, chromedp.WithNewBrowserContext())
	s.cleanup = append(s.cleanup, cancelTab)

	if err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(int64(opts.Viewport.Width), int64(opts.Viewport.Height)),
		network.Enable(),
		cdplog.Enable(),
	); err != nil {
		s.release()
		return nil, fmt.Errorf("failed to open chromium browser context: %w", err)
	}

	s.page = &chromiumPage{ctx: tabCtx, actionTimeout: opts.actionTimeout()}
	return s, nil
}

type chromiumSession struct {
	page    *chromiumPage
	cleanup []func()
	once    sync.Once
}

func (s *chromiumSession) Page() Page {
	return s.page
}

// Close closes the tab, then the browser context, browser and allocator.
func (s *chromiumSession) Close() error {
	var err error
	s.once.Do(func() {
		if s.page != nil {
			if cerr := chromedp.Cancel(s.page.ctx); cerr != nil && !errors.Is(cerr, context.Canceled) {
				err = fmt.Errorf("failed to close chromium tab: %w", cerr)
			}
		}
		s.release()
	})
	return err
}

func (s *chromiumSession) release() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
	s.cleanup = nil
}

type chromiumPage struct {
	ctx           context.Context
	actionTimeout time.Duration
}

type queryBuilder func(sel interface{}, opts ...chromedp.QueryOption) chromedp.Action

// run executes actions under a deadline and maps an expired deadline to a TimeoutError.
func (p *chromiumPage) run(action, target string, timeout time.Duration, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	if err := chromedp.Run(ctx, actions...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &TimeoutError{Action: action, Target: target, Timeout: timeout}
		}
		return fmt.Errorf("failed to %s %s: %w", action, target, err)
	}
	return nil
}

// on resolves el and applies build to the chosen node.
func (p *chromiumPage) on(el Element, build queryBuilder) chromedp.Action {
	if el.Index == 0 {
		return chromedp.Tasks{
			chromedp.WaitVisible(el.Selector, chromedp.ByQuery),
			build(el.Selector, chromedp.ByQuery),
		}
	}
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var nodes []*cdp.Node
		if err := chromedp.Nodes(el.Selector, &nodes, chromedp.ByQueryAll).Do(ctx); err != nil {
			return err
		}
		i := el.Index
		if i < 0 {
			i += len(nodes)
		}
		if i < 0 || i >= len(nodes) {
			return fmt.Errorf("%s matched %d nodes, index %d out of range", el.Selector, len(nodes), el.Index)
		}
		return build([]cdp.NodeID{nodes[i].NodeID}, chromedp.ByNodeID).Do(ctx)
	})
}

// Navigate returns once the document fires DOMContentLoaded. chromedp.Navigate would also
// wait for the load event, which includes every third-party script and font.
func (p *chromiumPage) Navigate(url string, timeout time.Duration) error {
	return p.run("navigate to", url, timeout, domContentLoaded(func(ctx context.Context) error {
		_, _, errorText, _, err := cdppage.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("page load error %s", errorText)
		}
		return nil
	}))
}

func (p *chromiumPage) Reload(timeout time.Duration) error {
	return p.run("reload", "page", timeout, domContentLoaded(func(ctx context.Context) error {
		return cdppage.Reload().Do(ctx)
	}))
}

// domContentLoaded starts a document load and waits for its DOMContentLoaded event.
func domContentLoaded(start func(ctx context.Context) error) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		fired := make(chan struct{}, 1)
		chromedp.ListenTarget(listenCtx, func(ev interface{}) {
			if _, ok := ev.(*cdppage.EventDomContentEventFired); ok {
				select {
				case fired <- struct{}{}:
				default:
				}
			}
		})

		if err := start(ctx); err != nil {
			return err
		}
		select {
		case <-fired:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func (p *chromiumPage) WaitVisible(selector string, timeout time.Duration) error {
	return p.run("wait for", selector, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromiumPage) WaitForFunction(expression string, timeout time.Duration) error {
	var ok bool
	err := p.run("wait for function", expression, timeout+time.Second,
		chromedp.Poll(expression, &ok, chromedp.WithPollingTimeout(timeout)))
	if err != nil && !IsTimeout(err) && errors.Is(err, chromedp.ErrPollingTimeout) {
		return &TimeoutError{Action: "wait for function", Target: expression, Timeout: timeout}
	}
	return err
}

func (p *chromiumPage) Click(el Element) error {
	return p.run("click", el.String(), p.actionTimeout, p.on(el, func(sel interface{}, opts ...chromedp.QueryOption) chromedp.Action {
		return chromedp.Click(sel, opts...)
	}))
}

// ClickButton polls until a visible matching button exists and clicks it in the same
// evaluation, so hidden duplicates elsewhere in the wizard never block the wait.
func (p *chromiumPage) ClickButton(name string) error {
	var clicked bool
	err := p.run("click button", name, p.actionTimeout+time.Second,
		chromedp.Poll(clickButtonScript(name), &clicked, chromedp.WithPollingTimeout(p.actionTimeout)))
	if err != nil && !IsTimeout(err) && errors.Is(err, chromedp.ErrPollingTimeout) {
		return &TimeoutError{Action: "click button", Target: name, Timeout: p.actionTimeout}
	}
	return err
}

func (p *chromiumPage) Fill(el Element, value string) error {
	return p.run("fill", el.String(), p.actionTimeout, p.on(el, func(sel interface{}, opts ...chromedp.QueryOption) chromedp.Action {
		return chromedp.Tasks{
			chromedp.SetValue(sel, "", opts...),
			chromedp.SendKeys(sel, value, opts...),
		}
	}))
}

func (p *chromiumPage) Press(el Element, key string) error {
	seq, ok := chromedpKeys[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	return p.run("press "+key+" in", el.String(), p.actionTimeout, p.on(el, func(sel interface{}, opts ...chromedp.QueryOption) chromedp.Action {
		return chromedp.SendKeys(sel, seq, opts...)
	}))
}

func (p *chromiumPage) Select(el Element, value string) error {
	var ok bool
	err := p.run("select "+value+" in", el.String(), p.actionTimeout,
		chromedp.WaitVisible(el.Selector, chromedp.ByQuery),
		chromedp.Evaluate(selectOptionScript(el, value), &ok),
	)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("failed to select %q in %s: option not available", value, el)
	}
	return nil
}

func (p *chromiumPage) Text(el Element) (string, error) {
	var text string
	err := p.run("read text of", el.String(), p.actionTimeout, p.on(el, func(sel interface{}, opts ...chromedp.QueryOption) chromedp.Action {
		return chromedp.TextContent(sel, &text, opts...)
	}))
	return text, err
}

func (p *chromiumPage) Value(el Element) (string, error) {
	var value string
	err := p.run("read value of", el.String(), p.actionTimeout, p.on(el, func(sel interface{}, opts ...chromedp.QueryOption) chromedp.Action {
		return chromedp.Value(sel, &value, opts...)
	}))
	return value, err
}

func (p *chromiumPage) HTML(el Element) (string, error) {
	var html string
	err := p.run("read html of", el.String(), p.actionTimeout, p.on(el, func(sel interface{}, opts ...chromedp.QueryOption) chromedp.Action {
		return chromedp.InnerHTML(sel, &html, opts...)
	}))
	return html, err
}

func (p *chromiumPage) Count(selector string) (int, error) {
	var n int
	err := p.run("count", selector, p.actionTimeout,
		chromedp.Evaluate(fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector)), &n))
	return n, err
}

func (p *chromiumPage) Evaluate(expression string, out interface{}) error {
	return p.run("evaluate", "script", p.actionTimeout, chromedp.Evaluate(expression, out))
}

// Listen subscribes to target events. Request URLs are tracked by request id because
// Network.loadingFailed only carries the id.
func (p *chromiumPage) Listen(sink signals.Sink) {
	urls := make(map[network.RequestID]string)

	chromedp.ListenTarget(p.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			if e.Type == runtime.APITypeError {
				sink.Record(signals.KindConsoleError, consoleText(e.Args))
			}
		case *cdplog.EventEntryAdded:
			if e.Entry != nil && e.Entry.Level == cdplog.LevelError {
				sink.Record(signals.KindConsoleError, e.Entry.Text)
			}
		case *runtime.EventExceptionThrown:
			sink.Record(signals.KindPageError, exceptionText(e.ExceptionDetails))
		case *network.EventRequestWillBeSent:
			if e.Request != nil {
				urls[e.RequestID] = e.Request.URL
			}
		case *network.EventLoadingFailed:
			url, ok := urls[e.RequestID]
			if !ok {
				url = e.RequestID.String()
			}
			sink.Record(signals.KindRequestFailed, signals.RequestFailure(url, e.ErrorText))
		}
	})
}

func consoleText(args []*runtime.RemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		if len(arg.Value) > 0 {
			var s string
			if err := json.Unmarshal([]byte(arg.Value), &s); err == nil {
				parts = append(parts, s)
			} else {
				parts = append(parts, string(arg.Value))
			}
			continue
		}
		if arg.Description != "" {
			parts = append(parts, arg.Description)
		}
	}
	return strings.Join(parts, " ")
}

func exceptionText(details *runtime.ExceptionDetails) string {
	if details == nil {
		return "unknown exception"
	}
	if details.Exception != nil && details.Exception.Description != "" {
		return details.Exception.Description
	}
	return details.Text
}
