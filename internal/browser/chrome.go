package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const (
	// UserAgent is sent by every tab
	UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	startAttempts = 3
	queryTimeout  = 10 * time.Second
)

// Chrome launches headless Chrome through the DevTools protocol
type Chrome struct {
	Headless  bool
	ExecPath  string // empty uses the chromedp lookup
	NoSandbox bool
}

// NewChrome creates a headless launcher
func NewChrome(execPath string) *Chrome {
	return &Chrome{
		Headless:  true,
		ExecPath:  execPath,
		NoSandbox: true,
	}
}

func (c *Chrome) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", c.NoSandbox),
		chromedp.UserAgent(UserAgent),
	)
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}
	return opts
}

// Launch starts Chrome, retrying a failed start with exponential backoff.
// The session lives until Close is called or ctx is cancelled.
func (c *Chrome) Launch(ctx context.Context) (Session, error) {
	var sess *chromeSession

	start := func() error {
		allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, c.allocatorOptions()...)
		browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

		// The first Run on a fresh context starts the browser process
		if err := chromedp.Run(browserCtx); err != nil {
			cancelBrowser()
			cancelAlloc()
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		sess = &chromeSession{
			ctx:           browserCtx,
			cancelBrowser: cancelBrowser,
			cancelAlloc:   cancelAlloc,
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), startAttempts-1),
		ctx,
	)
	if err := backoff.Retry(start, policy); err != nil {
		return nil, fmt.Errorf("starting chrome: %w", err)
	}

	return sess, nil
}

type chromeSession struct {
	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
	closeOnce     sync.Once
}

// NewPage opens a new tab in the running browser
func (s *chromeSession) NewPage() (Page, error) {
	tabCtx, cancel := chromedp.NewContext(s.ctx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("opening tab: %w", err)
	}
	return &chromePage{ctx: tabCtx, cancel: cancel}, nil
}

// Close shuts the browser down
func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.cancelBrowser()
		s.cancelAlloc()
	})
	return nil
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Navigate loads url and waits for the networkIdle lifecycle event of the new document
func (p *chromePage) Navigate(url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	var mainFrame cdp.FrameID
	if err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return err
		}
		mainFrame = tree.Frame.ID
		return nil
	})); err != nil {
		return &NavigationError{URL: url, Op: "read frame tree", Err: err}
	}

	// Listener runs on the target's event goroutine; it is removed when ctx ends
	w := newIdleWatcher(mainFrame)
	chromedp.ListenTarget(ctx, w.observe)

	if err := chromedp.Run(ctx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.Navigate(url),
	); err != nil {
		return &NavigationError{URL: url, Op: "navigate", Err: err}
	}

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return &NavigationError{URL: url, Op: "wait for network idle", Err: ctx.Err()}
	}
}

// idleWatcher closes done once the main frame reports init followed by
// networkIdle. Lifecycle events of iframes are ignored.
type idleWatcher struct {
	frame   cdp.FrameID
	started bool
	once    sync.Once
	done    chan struct{}
}

func newIdleWatcher(frame cdp.FrameID) *idleWatcher {
	return &idleWatcher{frame: frame, done: make(chan struct{})}
}

func (w *idleWatcher) observe(ev interface{}) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok || e.FrameID != w.frame {
		return
	}
	switch e.Name {
	case "init":
		w.started = true
	case "networkIdle":
		if w.started {
			w.once.Do(func() { close(w.done) })
		}
	}
}

func (p *chromePage) WaitVisible(selector string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()

	if err := chromedp.Run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		var url string
		_ = chromedp.Run(p.ctx, chromedp.Location(&url))
		return &NavigationError{URL: url, Op: "wait for " + selector, Err: err}
	}
	return nil
}

func (p *chromePage) Exists(selector string) (bool, error) {
	ctx, cancel := context.WithTimeout(p.ctx, queryTimeout)
	defer cancel()

	quoted, err := json.Marshal(selector)
	if err != nil {
		return false, fmt.Errorf("encoding selector: %w", err)
	}

	var found bool
	expr := fmt.Sprintf("document.querySelector(%s) !== null", quoted)
	if err := chromedp.Run(ctx, chromedp.Evaluate(expr, &found)); err != nil {
		return false, fmt.Errorf("querying %s: %w", selector, err)
	}
	return found, nil
}

func (p *chromePage) OuterHTML(selector string) (string, error) {
	ctx, cancel := context.WithTimeout(p.ctx, queryTimeout)
	defer cancel()

	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML(selector, &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("reading %s: %w", selector, err)
	}
	return html, nil
}

// Close closes the tab
func (p *chromePage) Close() error {
	p.cancel()
	return nil
}
