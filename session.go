package visaslot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
)

// login form selectors on the sign-in page
const (
	loginForm          = "form#sign_in_form"
	emailSelector      = loginForm + ` input[name="user[email]"]`
	passwordSelector   = loginForm + ` input[name="user[password]"]`
	policySelector     = loginForm + ` input[name="policy_confirmed"]`
	signInSelector     = loginForm + ` input[name="commit"]`
	signInPathTemplate = "/%s/niv/users/sign_in"
)

// ErrLoginFailed wraps every failure of the sign-in sequence. A login
// failure ends the watch loop.
var ErrLoginFailed = errors.New("login failed")

// SessionState is whether the browser context is believed to be signed in.
type SessionState string

const (
	// LoggedOut is the initial state and the state after expiry is detected.
	LoggedOut SessionState = "logged_out"

	// LoggedIn is set only by a successful sign-in.
	LoggedIn SessionState = "logged_in"
)

// Credentials are the booking site account credentials.
type Credentials struct {
	Email    string
	Password string
}

// Session tracks whether the shared browser context is authenticated and
// signs in when it is not.
//
// Session is owned by the watch loop and is not safe for concurrent use.
type Session struct {
	loginURL string
	creds    Credentials
	logger   *slog.Logger

	state  SessionState
	logins int
}

// NewSession creates a logged-out [Session] signing in at loginURL.
func NewSession(loginURL string, creds Credentials, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		loginURL: loginURL,
		creds:    creds,
		logger:   logger,
		state:    LoggedOut,
	}
}

// State returns the current session state.
func (s *Session) State() SessionState {
	return s.state
}

// LoggedIn reports whether the session is believed to be authenticated.
func (s *Session) LoggedIn() bool {
	return s.state == LoggedIn
}

// Logins returns how many sign-in sequences have been attempted.
func (s *Session) Logins() int {
	return s.logins
}

// Invalidate marks the session as expired. Idempotent.
func (s *Session) Invalidate() {
	if s.state == LoggedOut {
		return
	}
	s.logger.Warn("session invalidated")
	s.state = LoggedOut
}

// EnsureLoggedIn signs in through page unless the session is already
// authenticated, in which case it does nothing.
//
// Failures are wrapped in [ErrLoginFailed] and leave the session logged out.
func (s *Session) EnsureLoggedIn(ctx context.Context, page Page) error {
	if s.state == LoggedIn {
		return nil
	}

	s.logins++
	s.logger.Info("logging in", "url", s.loginURL)

	if err := s.login(ctx, page); err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	s.state = LoggedIn
	s.logger.Info("logged in", "landing_url", page.URL())
	return nil
}

func (s *Session) login(ctx context.Context, page Page) error {
	if err := page.Goto(ctx, s.loginURL); err != nil {
		return fmt.Errorf("open sign-in page: %w", err)
	}
	if err := page.Type(ctx, emailSelector, s.creds.Email); err != nil {
		return fmt.Errorf("fill email: %w", err)
	}
	if err := page.Type(ctx, passwordSelector, s.creds.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if err := page.Click(ctx, policySelector); err != nil {
		return fmt.Errorf("accept policy: %w", err)
	}
	if err := page.Click(ctx, signInSelector); err != nil {
		return fmt.Errorf("submit sign-in: %w", err)
	}
	if err := page.WaitForNavigation(ctx); err != nil {
		return fmt.Errorf("wait for sign-in navigation: %w", err)
	}

	// a rejected sign-in re-renders the form in place
	if samePath(page.URL(), s.loginURL) {
		return errors.New("credentials rejected: still on sign-in page")
	}
	return nil
}

// samePath reports whether two URLs point at the same path.
func samePath(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Path == ub.Path
}
