package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/AkaakuHub/twix-saver/pkg/config"
	xerrors "github.com/AkaakuHub/twix-saver/pkg/errors"
	"github.com/AkaakuHub/twix-saver/pkg/logger"
)

type responseMeta struct {
	url      string
	status   int64
	mimeType string
}

// ChromeDriver drives a headless Chrome via the DevTools protocol. API
// responses are captured by listening for XHR/fetch loading-finished events
// and pulling each body once it is complete.
type ChromeDriver struct {
	cfg *config.BrowserConfig
	log logger.Logger

	allocCancel context.CancelFunc
	cancel      context.CancelFunc
	ctx         context.Context

	handler func(NetworkResponse)

	mu      sync.Mutex
	pending map[network.RequestID]responseMeta
}

// NewChromeDriver creates an unstarted Chrome driver
func NewChromeDriver(cfg *config.BrowserConfig) *ChromeDriver {
	return &ChromeDriver{
		cfg:     cfg,
		log:     logger.GetLogger().WithField("component", "browser"),
		pending: make(map[network.RequestID]responseMeta),
	}
}

// OnResponse registers the intercepted-response handler. Must be called
// before Start.
func (d *ChromeDriver) OnResponse(handler func(NetworkResponse)) {
	d.handler = handler
}

// Start launches Chrome and enables network interception
func (d *ChromeDriver) Start(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(d.cfg.UserAgent),
		chromedp.WindowSize(1280, 900),
	)
	if d.cfg.ProxyServer != "" {
		opts = append(opts, chromedp.ProxyServer(d.cfg.ProxyServer))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	d.allocCancel = allocCancel
	d.cancel = cancel
	d.ctx = browserCtx

	chromedp.ListenTarget(browserCtx, d.handleEvent)

	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		d.Close()
		return xerrors.Setup("failed to launch browser", err)
	}

	d.log.InfoWithFields("browser started", map[string]interface{}{
		"headless": d.cfg.Headless,
	})
	return nil
}

func (d *ChromeDriver) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventResponseReceived:
		if e.Type != network.ResourceTypeXHR && e.Type != network.ResourceTypeFetch {
			return
		}
		d.mu.Lock()
		d.pending[e.RequestID] = responseMeta{
			url:      e.Response.URL,
			status:   e.Response.Status,
			mimeType: e.Response.MimeType,
		}
		d.mu.Unlock()

	case *network.EventLoadingFinished:
		d.mu.Lock()
		meta, ok := d.pending[e.RequestID]
		delete(d.pending, e.RequestID)
		d.mu.Unlock()
		if !ok || d.handler == nil {
			return
		}

		// Body retrieval has to run outside the event callback or the
		// CDP message loop deadlocks.
		go d.deliverBody(e.RequestID, meta)
	}
}

func (d *ChromeDriver) deliverBody(id network.RequestID, meta responseMeta) {
	c := chromedp.FromContext(d.ctx)
	body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(d.ctx, c.Target))
	if err != nil {
		// Bodies of redirects and evicted cache entries are not
		// retrievable; skip them.
		d.log.DebugWithFields("response body unavailable", map[string]interface{}{
			"url": meta.url,
		})
		return
	}

	d.handler(NetworkResponse{
		URL:      meta.url,
		Status:   int(meta.status),
		MimeType: meta.mimeType,
		Body:     body,
	})
}

// Navigate loads a URL and waits for the document body
func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	if err := d.run(ctx, d.cfg.NavTimeout, chromedp.Navigate(url), chromedp.WaitReady("body")); err != nil {
		return xerrors.Transient("navigation failed: "+url, err)
	}
	return nil
}

// CurrentURL returns the page's current location
func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, d.cfg.WaitTimeout, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Click clicks the first element matching the selector
func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	return d.run(ctx, d.cfg.WaitTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

// Fill clears the element matching the selector and types the value
func (d *ChromeDriver) Fill(ctx context.Context, selector, value string) error {
	return d.run(ctx, d.cfg.WaitTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

// PressEnter sends the Enter key to the element matching the selector
func (d *ChromeDriver) PressEnter(ctx context.Context, selector string) error {
	return d.run(ctx, d.cfg.WaitTimeout,
		chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery),
	)
}

// WaitVisible blocks until the selector is visible or the timeout expires
func (d *ChromeDriver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return d.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// IsVisible reports whether the selector becomes visible within the timeout
func (d *ChromeDriver) IsVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	err := d.WaitVisible(ctx, selector, timeout)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return false, nil
	}
	return false, err
}

// Evaluate runs a JavaScript expression in the page
func (d *ChromeDriver) Evaluate(ctx context.Context, expression string) error {
	return d.run(ctx, d.cfg.WaitTimeout, chromedp.Evaluate(expression, nil))
}

// Cookies returns the current session cookies
func (d *ChromeDriver) Cookies(ctx context.Context) ([]SessionCookie, error) {
	var cookies []SessionCookie
	err := d.run(ctx, d.cfg.WaitTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		raw, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		cookies = make([]SessionCookie, 0, len(raw))
		for _, c := range raw {
			cookies = append(cookies, SessionCookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  c.Expires,
				HTTPOnly: c.HTTPOnly,
				Secure:   c.Secure,
				SameSite: c.SameSite.String(),
			})
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return cookies, nil
}

// SetCookies restores previously saved session cookies
func (d *ChromeDriver) SetCookies(ctx context.Context, cookies []SessionCookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			exp := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
			p.Expires = &exp
		}
		if c.SameSite != "" {
			p.SameSite = network.CookieSameSite(c.SameSite)
		}
		params = append(params, p)
	}

	return d.run(ctx, d.cfg.WaitTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return storage.SetCookies(params).Do(ctx)
	}))
}

// Close tears the browser down
func (d *ChromeDriver) Close() error {
	if d.cancel != nil {
		d.cancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	return nil
}

// run executes actions against the browser context with a deadline. The
// caller context only gates entry; chromedp actions must run on a context
// derived from the browser's.
func (d *ChromeDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.ctx == nil {
		return xerrors.New(xerrors.ErrorTypeSetup, "browser not started")
	}

	tctx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()
	return chromedp.Run(tctx, actions...)
}
