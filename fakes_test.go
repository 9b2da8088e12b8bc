package visaslot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	testBaseURL  = "https://visa.example.test"
	testCountry  = "en-ca"
	testSchedule = "12345678"
	testEmail    = "applicant@example.com"
	testPassword = "hunter2"
)

var testSite = Site{BaseURL: testBaseURL, CountryCode: testCountry, ScheduleID: testSchedule}

const signInHTML = `<html><body><form id="sign_in_form"></form></body></html>`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// feed is the scripted response for one facility.
type feed struct {
	status int
	body   string
	err    error
}

// fakeSite is the server-side state shared by every fakePage of a
// fakeBrowser, standing in for the booking site and the cookie jar.
type fakeSite struct {
	mu sync.Mutex

	loggedIn    bool
	rejectLogin bool
	missing     string
	gotoErr     error
	feeds       map[int]feed

	logins      int
	scanned     []int
	typed       map[string]string
	headers     map[string]string
	opened      int
	closed      int
	newPageErr  error
	onScan      func(id int)
	landingPath string
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		feeds:       make(map[int]feed),
		typed:       make(map[string]string),
		landingPath: "/en-ca/niv/groups/1",
	}
}

func (s *fakeSite) setDays(id int, dates ...string) {
	body := "["
	for i, d := range dates {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"date":%q,"business_day":true}`, d)
	}
	body += "]"
	s.feeds[id] = feed{status: 200, body: body}
}

func (s *fakeSite) expire() {
	s.mu.Lock()
	s.loggedIn = false
	s.mu.Unlock()
}

type fakeBrowser struct {
	site   *fakeSite
	closed bool
}

func (b *fakeBrowser) NewPage(context.Context) (Page, error) {
	b.site.mu.Lock()
	defer b.site.mu.Unlock()
	if b.site.newPageErr != nil {
		return nil, b.site.newPageErr
	}
	b.site.opened++
	return &fakePage{site: b.site}, nil
}

func (b *fakeBrowser) Close() error {
	b.closed = true
	return nil
}

type fakePage struct {
	site    *fakeSite
	url     string
	status  int
	body    string
	pending bool
	closed  bool
}

func (p *fakePage) Goto(_ context.Context, url string) error {
	s := p.site
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gotoErr != nil {
		return s.gotoErr
	}
	p.url = url
	p.pending = false

	if url == testSite.LoginURL() {
		p.status, p.body = 200, signInHTML
		return nil
	}

	var id int
	if _, err := fmt.Sscanf(url, testBaseURL+"/en-ca/niv/schedule/12345678/appointment/days/%d.json", &id); err == nil {
		return p.serveFeed(id)
	}
	p.status, p.body = 404, "not found"
	return nil
}

// serveFeed must be called with the site lock held.
func (p *fakePage) serveFeed(id int) error {
	s := p.site
	s.scanned = append(s.scanned, id)
	if s.onScan != nil {
		s.onScan(id)
	}
	if !s.loggedIn {
		p.status, p.body = 200, signInHTML
		return nil
	}
	f, ok := s.feeds[id]
	if !ok {
		p.status, p.body = 200, "[]"
		return nil
	}
	if f.err != nil {
		return f.err
	}
	p.status, p.body = f.status, f.body
	return nil
}

func (p *fakePage) SetExtraHTTPHeaders(headers map[string]string) {
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	p.site.headers = headers
}

func (p *fakePage) Type(_ context.Context, selector, text string) error {
	s := p.site
	s.mu.Lock()
	defer s.mu.Unlock()
	if selector == s.missing {
		return errors.New("element not found")
	}
	s.typed[selector] = text
	return nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	s := p.site
	s.mu.Lock()
	defer s.mu.Unlock()
	if selector == s.missing {
		return errors.New("element not found")
	}
	if selector == signInSelector {
		p.pending = true
	}
	return nil
}

func (p *fakePage) WaitForNavigation(context.Context) error {
	s := p.site
	s.mu.Lock()
	defer s.mu.Unlock()
	if !p.pending {
		return errors.New("no navigation occurred")
	}
	p.pending = false
	s.logins++
	if s.rejectLogin {
		p.url = testSite.LoginURL()
		return nil
	}
	s.loggedIn = true
	p.url = testBaseURL + s.landingPath
	return nil
}

func (p *fakePage) URL() string { return p.url }

func (p *fakePage) Status() int { return p.status }

func (p *fakePage) Text() (string, error) { return p.body, nil }

func (p *fakePage) Close() error {
	p.site.mu.Lock()
	defer p.site.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.site.closed++
	}
	return nil
}

// sleepRecorder records non-zero sleeps without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	if d > 0 {
		r.mu.Lock()
		r.sleeps = append(r.sleeps, d)
		r.mu.Unlock()
	}
	return ctx.Err()
}

func (r *sleepRecorder) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.sleeps...)
}
