// Package browser implements a small HTTP-backed browser: pages that
// navigate, fill and submit HTML forms, and expose their text content, all
// sharing one cookie jar the way tabs share a browser context.
//
// It is the default page driver for the visaslot watcher. It does not run
// JavaScript; the booking flows it drives are plain form posts and JSON feeds.
package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jpalmerr/visaslot/internal/poller"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultUserAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

var (
	// ErrElementNotFound is returned when a selector matches nothing on the page.
	ErrElementNotFound = errors.New("element not found")

	// ErrNotInForm is returned when typing into or submitting an element
	// that has no enclosing form.
	ErrNotInForm = errors.New("element is not inside a form")

	// ErrNoNavigation is returned by WaitForNavigation when no click
	// triggered a navigation since the last wait.
	ErrNoNavigation = errors.New("no navigation occurred")

	// ErrPageClosed is returned by operations on a closed page.
	ErrPageClosed = errors.New("page is closed")
)

// Options configures a [Browser].
type Options struct {
	// RequestTimeout bounds every navigation. Defaults to 30s.
	RequestTimeout time.Duration

	// RequestsPerSecond paces all requests made by every page. Zero or
	// negative disables pacing.
	RequestsPerSecond float64

	// Burst is the pacer burst size. Defaults to 1.
	Burst int

	// UserAgent overrides the default desktop browser user agent.
	UserAgent string
}

// Browser owns the cookie jar and connection pool shared by its pages.
type Browser struct {
	client  *poller.Client
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a [Browser].
func New(opts Options, logger *slog.Logger) (*Browser, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Browser{
		client:  poller.NewClient(jar, poller.NewPacer(opts.RequestsPerSecond, opts.Burst), ua),
		timeout: timeout,
		logger:  logger,
	}, nil
}

// NewPage opens a blank page.
func (b *Browser) NewPage(ctx context.Context) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.New("browser is closed")
	}
	return &Page{browser: b, forms: make(map[int]*formState)}, nil
}

// Close releases idle connections. Pages opened from a closed browser fail.
// Safe to call multiple times.
func (b *Browser) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.client.Close()
	return nil
}

// formState holds user edits to one form on the current document.
type formState struct {
	typed   map[string]string
	checked map[string]bool
}

// Page is a single tab. A Page is not safe for concurrent use.
type Page struct {
	browser *Browser
	headers map[string]string

	current     string
	status      int
	contentType string
	body        []byte
	doc         *goquery.Document
	forms       map[int]*formState

	pending bool
	navErr  error
	closed  bool
}

// SetExtraHTTPHeaders sets headers sent with every subsequent request from
// this page, replacing any previously set.
func (p *Page) SetExtraHTTPHeaders(headers map[string]string) {
	p.headers = make(map[string]string, len(headers))
	for k, v := range headers {
		p.headers[k] = v
	}
}

// Goto navigates the page to rawURL. HTTP error statuses are not errors;
// inspect [Page.Status].
func (p *Page) Goto(ctx context.Context, rawURL string) error {
	if p.closed {
		return ErrPageClosed
	}
	// an explicit navigation is never what a later WaitForNavigation waits for
	p.pending = false
	p.navErr = nil
	return p.navigate(ctx, poller.Request{URL: rawURL})
}

// Type appends text to the value of the form field matched by selector.
func (p *Page) Type(_ context.Context, selector, text string) error {
	el, _, idx, err := p.fieldInForm(selector)
	if err != nil {
		return err
	}

	name, ok := el.Attr("name")
	if !ok || name == "" {
		return fmt.Errorf("%s: field has no name", selector)
	}

	st := p.formState(idx)
	current, edited := st.typed[name]
	if !edited {
		current = el.AttrOr("value", "")
	}
	st.typed[name] = current + text
	return nil
}

// Click clicks the element matched by selector. Checkboxes and radios toggle,
// submit controls submit their form, links navigate. Navigations triggered
// here are reported by the next [Page.WaitForNavigation].
func (p *Page) Click(ctx context.Context, selector string) error {
	el, err := p.find(selector)
	if err != nil {
		return err
	}

	tag := goquery.NodeName(el)
	typ := strings.ToLower(el.AttrOr("type", ""))

	switch {
	case tag == "input" && (typ == "checkbox" || typ == "radio"):
		_, _, idx, err := p.fieldInForm(selector)
		if err != nil {
			return err
		}
		name := el.AttrOr("name", "")
		st := p.formState(idx)
		checked, edited := st.checked[name]
		if !edited {
			_, checked = el.Attr("checked")
		}
		st.checked[name] = !checked || typ == "radio"
		return nil

	case (tag == "input" && (typ == "submit" || typ == "image")) || (tag == "button" && (typ == "" || typ == "submit")):
		_, form, idx, err := p.fieldInForm(selector)
		if err != nil {
			return err
		}
		p.submit(ctx, form, idx, el)
		return nil

	case tag == "a":
		href, ok := el.Attr("href")
		if !ok {
			return nil
		}
		target, err := p.resolve(href)
		if err != nil {
			return err
		}
		p.pending = true
		p.navErr = p.navigate(ctx, poller.Request{URL: target})
		return nil
	}

	return nil
}

// WaitForNavigation reports the outcome of the navigation triggered by the
// last click. It returns [ErrNoNavigation] when nothing navigated.
func (p *Page) WaitForNavigation(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.pending {
		return ErrNoNavigation
	}
	p.pending = false
	err := p.navErr
	p.navErr = nil
	return err
}

// URL returns the address of the current document.
func (p *Page) URL() string {
	return p.current
}

// Status returns the HTTP status of the current document.
func (p *Page) Status() int {
	return p.status
}

// Text returns the visible text of the current document: the body text for
// HTML, the raw payload for anything else.
func (p *Page) Text() (string, error) {
	if p.closed {
		return "", ErrPageClosed
	}
	if !strings.Contains(strings.ToLower(p.contentType), "html") {
		return string(p.body), nil
	}
	doc, err := p.document()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(doc.Find("body").Text()), nil
}

// Close releases the page. Safe to call multiple times.
func (p *Page) Close() error {
	p.closed = true
	p.body = nil
	p.doc = nil
	p.forms = nil
	return nil
}

func (p *Page) navigate(ctx context.Context, req poller.Request) error {
	headers := make(map[string]string, len(p.headers)+len(req.Headers))
	for k, v := range p.headers {
		headers[k] = v
	}
	for k, v := range req.Headers {
		headers[k] = v
	}
	req.Headers = headers
	req.Timeout = p.browser.timeout

	resp := p.browser.client.Fetch(ctx, req)
	if resp.Error != nil {
		p.browser.logger.Debug("navigation failed", "url", req.URL, "error", resp.Error.Error())
		return fmt.Errorf("navigate to %s: %w", req.URL, resp.Error)
	}

	p.current = resp.FinalURL
	p.status = resp.StatusCode
	p.contentType = resp.ContentType
	p.body = resp.Body
	p.doc = nil
	p.forms = make(map[int]*formState)

	p.browser.logger.Debug("navigated",
		"url", p.current,
		"status", p.status,
		"latency_ms", resp.Latency.Milliseconds(),
	)
	return nil
}

func (p *Page) submit(ctx context.Context, form *goquery.Selection, idx int, submitter *goquery.Selection) {
	values := p.formValues(form, idx)
	if name := submitter.AttrOr("name", ""); name != "" {
		values.Add(name, submitter.AttrOr("value", ""))
	}

	action, err := p.resolve(form.AttrOr("action", ""))
	p.pending = true
	if err != nil {
		p.navErr = err
		return
	}

	req := poller.Request{URL: action}
	if strings.EqualFold(form.AttrOr("method", "get"), "post") {
		req.Method = http.MethodPost
		req.Body = []byte(values.Encode())
		req.Headers = map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
	} else {
		u, _ := url.Parse(action)
		u.RawQuery = values.Encode()
		req.URL = u.String()
	}

	p.navErr = p.navigate(ctx, req)
}

// formValues collects the successful controls of a form, applying edits.
func (p *Page) formValues(form *goquery.Selection, idx int) url.Values {
	st := p.formState(idx)
	values := url.Values{}

	form.Find("input, textarea, select").Each(func(_ int, field *goquery.Selection) {
		name := field.AttrOr("name", "")
		if name == "" {
			return
		}
		if _, disabled := field.Attr("disabled"); disabled {
			return
		}

		switch goquery.NodeName(field) {
		case "textarea":
			if v, ok := st.typed[name]; ok {
				values.Add(name, v)
			} else {
				values.Add(name, field.Text())
			}
		case "select":
			if v, ok := st.typed[name]; ok {
				values.Add(name, v)
				return
			}
			opt := field.Find("option[selected]").First()
			if opt.Length() == 0 {
				opt = field.Find("option").First()
			}
			if opt.Length() > 0 {
				values.Add(name, opt.AttrOr("value", opt.Text()))
			}
		default:
			typ := strings.ToLower(field.AttrOr("type", "text"))
			switch typ {
			case "submit", "image", "button", "reset", "file":
				return
			case "checkbox", "radio":
				checked, edited := st.checked[name]
				if !edited {
					_, checked = field.Attr("checked")
				}
				if checked {
					values.Add(name, field.AttrOr("value", "on"))
				}
			default:
				if v, ok := st.typed[name]; ok {
					values.Add(name, v)
				} else {
					values.Add(name, field.AttrOr("value", ""))
				}
			}
		}
	})

	return values
}

func (p *Page) formState(idx int) *formState {
	st, ok := p.forms[idx]
	if !ok {
		st = &formState{typed: make(map[string]string), checked: make(map[string]bool)}
		p.forms[idx] = st
	}
	return st
}

func (p *Page) fieldInForm(selector string) (*goquery.Selection, *goquery.Selection, int, error) {
	el, err := p.find(selector)
	if err != nil {
		return nil, nil, 0, err
	}
	form := el.Closest("form")
	if form.Length() == 0 {
		return nil, nil, 0, fmt.Errorf("%s: %w", selector, ErrNotInForm)
	}
	return el, form, p.doc.Find("form").IndexOfSelection(form), nil
}

func (p *Page) find(selector string) (*goquery.Selection, error) {
	if p.closed {
		return nil, ErrPageClosed
	}
	doc, err := p.document()
	if err != nil {
		return nil, err
	}
	el := doc.Find(selector).First()
	if el.Length() == 0 {
		return nil, fmt.Errorf("%s: %w", selector, ErrElementNotFound)
	}
	return el, nil
}

func (p *Page) document() (*goquery.Document, error) {
	if p.doc != nil {
		return p.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	p.doc = doc
	return doc, nil
}

func (p *Page) resolve(ref string) (string, error) {
	base, err := url.Parse(p.current)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	target, err := base.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", ref, err)
	}
	return target.String(), nil
}
