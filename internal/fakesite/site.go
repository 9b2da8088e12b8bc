// Package fakesite serves a minimal stand-in for the appointment booking
// site: a sign-in form guarded by an authenticity token, a session cookie,
// and per-facility schedule-days JSON feeds.
//
// It backs the package tests and the example mock server.
package fakesite

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
)

const (
	sessionCookie = "_yatri_session"
	csrfToken     = "fake-authenticity-token"
)

var signInPage = template.Must(template.New("sign_in").Parse(`<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form id="sign_in_form" action="/{{.Country}}/niv/users/sign_in" method="post">
  <input type="hidden" name="authenticity_token" value="{{.Token}}">
  <input type="email" name="user[email]" value="">
  <input type="password" name="user[password]" value="">
  <input type="checkbox" name="policy_confirmed" value="1">
  <input type="submit" name="commit" value="Sign In">
</form>
</body>
</html>`))

// Site is an in-memory fake booking site. All methods are safe for
// concurrent use.
type Site struct {
	email    string
	password string

	mu         sync.Mutex
	days       map[int]string
	sessions   map[string]bool
	logins     int
	scanned    []int
	brokenForm bool
}

// New creates a [Site] accepting the given credentials.
func New(email, password string) *Site {
	return &Site{
		email:    email,
		password: password,
		days:     make(map[int]string),
		sessions: make(map[string]bool),
	}
}

// SetDays sets the dates offered by a facility. No dates means the feed
// returns an empty array.
func (s *Site) SetDays(facilityID int, dates ...string) {
	records := make([]map[string]any, 0, len(dates))
	for _, d := range dates {
		records = append(records, map[string]any{"date": d, "business_day": true})
	}
	data, _ := sonic.Marshal(records)

	s.mu.Lock()
	s.days[facilityID] = string(data)
	s.mu.Unlock()
}

// SetRawDays sets the verbatim body served for a facility feed.
func (s *Site) SetRawDays(facilityID int, body string) {
	s.mu.Lock()
	s.days[facilityID] = body
	s.mu.Unlock()
}

// ExpireSessions drops every active session, as the real site does after
// its idle timeout.
func (s *Site) ExpireSessions() {
	s.mu.Lock()
	s.sessions = make(map[string]bool)
	s.mu.Unlock()
}

// BreakForm makes the sign-in page render without its form.
func (s *Site) BreakForm() {
	s.mu.Lock()
	s.brokenForm = true
	s.mu.Unlock()
}

// Logins returns the number of successful sign-ins.
func (s *Site) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Scanned returns the facility ids requested so far, in request order.
func (s *Site) Scanned() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.scanned...)
}

// Handler returns the HTTP handler for the site.
func (s *Site) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{country}/niv/users/sign_in", s.handleSignInForm)
	mux.HandleFunc("POST /{country}/niv/users/sign_in", s.handleSignIn)
	mux.HandleFunc("GET /{country}/niv/groups/{group}", s.handleGroups)
	mux.HandleFunc("GET /{country}/niv/schedule/{schedule}/appointment/days/{file}", s.handleDays)
	return mux
}

func (s *Site) handleSignInForm(w http.ResponseWriter, r *http.Request) {
	s.renderSignIn(w, r.PathValue("country"), "")
}

func (s *Site) renderSignIn(w http.ResponseWriter, country, errMsg string) {
	s.mu.Lock()
	broken := s.brokenForm
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if broken {
		_, _ = w.Write([]byte("<html><body><p>Maintenance</p></body></html>"))
		return
	}
	_ = signInPage.Execute(w, map[string]string{
		"Country": country,
		"Token":   csrfToken,
		"Error":   errMsg,
	})
}

func (s *Site) handleSignIn(w http.ResponseWriter, r *http.Request) {
	country := r.PathValue("country")
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	if r.PostForm.Get("authenticity_token") != csrfToken {
		http.Error(w, "invalid authenticity token", http.StatusUnprocessableEntity)
		return
	}
	if r.PostForm.Get("user[email]") != s.email || r.PostForm.Get("user[password]") != s.password {
		s.renderSignIn(w, country, "Invalid email or password.")
		return
	}
	if r.PostForm.Get("policy_confirmed") != "1" {
		s.renderSignIn(w, country, "You must accept the privacy policy.")
		return
	}

	id := newSessionID()
	s.mu.Lock()
	s.sessions[id] = true
	s.logins++
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: id, Path: "/", HttpOnly: true})
	http.Redirect(w, r, fmt.Sprintf("/%s/niv/groups/1", country), http.StatusFound)
}

func (s *Site) handleGroups(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		http.Redirect(w, r, fmt.Sprintf("/%s/niv/users/sign_in", r.PathValue("country")), http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<html><body><h1>Groups</h1></body></html>"))
}

func (s *Site) handleDays(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	idStr, ok := strings.CutSuffix(file, ".json")
	if !ok {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	s.scanned = append(s.scanned, id)
	body, known := s.days[id]
	s.mu.Unlock()

	if !s.authenticated(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"You need to sign in or sign up before continuing."}`))
		return
	}

	if !known {
		body = "[]"
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

func (s *Site) authenticated(r *http.Request) bool {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[c.Value]
}

func newSessionID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
