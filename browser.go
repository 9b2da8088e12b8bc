package visaslot

import (
	"context"

	"github.com/jpalmerr/visaslot/internal/browser"
)

// Page is one browser tab as seen by the watcher.
//
// The watcher only needs these capabilities; any automation engine that
// provides them can drive it via [WithBrowser].
type Page interface {
	// Goto navigates to url. HTTP error statuses are reported via Status,
	// not as errors.
	Goto(ctx context.Context, url string) error

	// SetExtraHTTPHeaders sets headers sent with every later request.
	SetExtraHTTPHeaders(headers map[string]string)

	// Type types text into the form field matched by the CSS selector.
	Type(ctx context.Context, selector, text string) error

	// Click clicks the element matched by the CSS selector.
	Click(ctx context.Context, selector string) error

	// WaitForNavigation waits for the navigation started by the last click.
	WaitForNavigation(ctx context.Context) error

	// URL returns the address of the current document.
	URL() string

	// Status returns the HTTP status of the current document.
	Status() int

	// Text returns the text content of the current document.
	Text() (string, error)

	// Close releases the page.
	Close() error
}

// Browser opens pages that share one authenticated context.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// httpBrowser adapts the built-in HTTP browser to [Browser].
type httpBrowser struct {
	b *browser.Browser
}

func (h httpBrowser) NewPage(ctx context.Context) (Page, error) {
	p, err := h.b.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (h httpBrowser) Close() error {
	return h.b.Close()
}
