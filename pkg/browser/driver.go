package browser

import (
	"context"
	"time"
)

// NetworkResponse is one intercepted API response captured while the page
// loads or scrolls
type NetworkResponse struct {
	URL      string
	Status   int
	MimeType string
	Body     []byte
}

// SessionCookie is the persisted form of one browser cookie
type SessionCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// Driver abstracts the automated browser session. The scraping engine only
// depends on this interface; the chromedp implementation is wired in at
// process start.
type Driver interface {
	// Start launches the browser and enables network interception
	Start(ctx context.Context) error

	// OnResponse registers the handler invoked for every intercepted
	// XHR/fetch response. Must be called before Start.
	OnResponse(handler func(NetworkResponse))

	// Navigate loads a URL and waits for the page to settle
	Navigate(ctx context.Context, url string) error

	// CurrentURL returns the page's current location
	CurrentURL(ctx context.Context) (string, error)

	// Click clicks the first element matching the selector
	Click(ctx context.Context, selector string) error

	// Fill types a value into the element matching the selector
	Fill(ctx context.Context, selector, value string) error

	// PressEnter sends the Enter key to the element matching the selector
	PressEnter(ctx context.Context, selector string) error

	// WaitVisible blocks until the selector is visible or the timeout expires
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// IsVisible reports whether the selector becomes visible within the
	// timeout; a timeout is not an error
	IsVisible(ctx context.Context, selector string, timeout time.Duration) (bool, error)

	// Evaluate runs a JavaScript expression in the page
	Evaluate(ctx context.Context, expression string) error

	// Cookies returns the current session cookies
	Cookies(ctx context.Context) ([]SessionCookie, error)

	// SetCookies restores previously saved session cookies
	SetCookies(ctx context.Context, cookies []SessionCookie) error

	// Close tears the browser down
	Close() error
}
