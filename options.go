package visaslot

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jpalmerr/visaslot/notify"
)

// watchConfig holds mutable state during Watcher construction.
type watchConfig struct {
	site        Site
	creds       Credentials
	facilities  *FacilityRange
	names       map[int]string
	threshold   time.Time
	maxCycles   int
	initial     time.Duration
	idle        time.Duration
	active      time.Duration
	scanPause   time.Duration
	rps         float64
	burst       int
	timeout     time.Duration
	userAgent   string
	notifiers   []notify.Notifier
	browser     Browser
	logger      *slog.Logger
	sleep       SleepFunc
	statusPort  int
	scanCBs     []func(ScanResult)
	cycleCBs    []func(CycleReport)
	initialSet  bool
	thresholdOK bool
}

// Option configures a [Watcher] during construction.
//
// Options return an error when their argument is invalid; [New] stops at
// the first failing option.
type Option func(*watchConfig) error

// WithSite sets the booking site, locale and schedule to watch.
//
// baseURL is scheme and host only, e.g. "https://ais.usvisa-info.com". An
// empty baseURL keeps the default.
//
// Example:
//
//	w, err := visaslot.New(
//	    visaslot.WithSite("", "en-ca", "12345678"),
//	    ...
//	)
func WithSite(baseURL, countryCode, scheduleID string) Option {
	return func(cfg *watchConfig) error {
		if baseURL != "" {
			u, err := url.Parse(baseURL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("invalid base url %q", baseURL)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return fmt.Errorf("base url must use http or https, got %q", u.Scheme)
			}
			cfg.site.BaseURL = strings.TrimRight(baseURL, "/")
		}
		if strings.TrimSpace(countryCode) == "" {
			return errors.New("country code cannot be empty")
		}
		if strings.TrimSpace(scheduleID) == "" {
			return errors.New("schedule id cannot be empty")
		}
		cfg.site.CountryCode = countryCode
		cfg.site.ScheduleID = scheduleID
		return nil
	}
}

// WithCredentials sets the account used to sign in.
func WithCredentials(email, password string) Option {
	return func(cfg *watchConfig) error {
		if strings.TrimSpace(email) == "" {
			return errors.New("email cannot be empty")
		}
		if password == "" {
			return errors.New("password cannot be empty")
		}
		cfg.creds = Credentials{Email: email, Password: password}
		return nil
	}
}

// WithFacilities sets the inclusive facility id range scanned every cycle.
func WithFacilities(first, last int) Option {
	return func(cfg *watchConfig) error {
		r, err := NewFacilityRange(first, last)
		if err != nil {
			return err
		}
		cfg.facilities = &r
		return nil
	}
}

// WithFacilityNames sets display names used in logs and notifications.
// Facilities without a name are shown as "facility <id>".
func WithFacilityNames(names map[int]string) Option {
	return func(cfg *watchConfig) error {
		for id, name := range names {
			cfg.names[id] = name
		}
		return nil
	}
}

// WithThreshold sets the cutoff date. A slot strictly before it triggers a
// notification. Only the calendar date of t is used.
func WithThreshold(t time.Time) Option {
	return func(cfg *watchConfig) error {
		if t.IsZero() {
			return errors.New("threshold cannot be zero")
		}
		cfg.threshold = calendarDate(t)
		cfg.thresholdOK = true
		return nil
	}
}

// WithMaxCycles sets how many poll cycles run before the watcher stops.
// Defaults to 100.
func WithMaxCycles(n int) Option {
	return func(cfg *watchConfig) error {
		if n < 0 {
			return fmt.Errorf("max cycles cannot be negative, got %d", n)
		}
		cfg.maxCycles = n
		return nil
	}
}

// WithInitialDelay sets the delay reported before the first cycle has been
// scheduled. Defaults to the active interval.
func WithInitialDelay(d time.Duration) Option {
	return func(cfg *watchConfig) error {
		if d < 0 {
			return errors.New("initial delay cannot be negative")
		}
		cfg.initial = d
		cfg.initialSet = true
		return nil
	}
}

// WithIdleDelay sets the wait after a cycle that found no slot anywhere.
// Defaults to 2 minutes.
func WithIdleDelay(d time.Duration) Option {
	return func(cfg *watchConfig) error {
		if d <= 0 {
			return errors.New("idle delay must be positive")
		}
		cfg.idle = d
		return nil
	}
}

// WithActiveDelay sets the wait after a cycle that found at least one
// slot. Defaults to 30 seconds.
func WithActiveDelay(d time.Duration) Option {
	return func(cfg *watchConfig) error {
		if d <= 0 {
			return errors.New("active delay must be positive")
		}
		cfg.active = d
		return nil
	}
}

// WithScanPause sets the pause after each parsed facility feed. Defaults
// to 3 seconds; zero disables it.
func WithScanPause(d time.Duration) Option {
	return func(cfg *watchConfig) error {
		if d < 0 {
			return errors.New("scan pause cannot be negative")
		}
		cfg.scanPause = d
		return nil
	}
}

// WithRequestRate paces every request of the built-in browser. rps <= 0
// disables pacing. Defaults to 1 request per second, burst 1.
//
// Ignored when a custom browser is supplied via [WithBrowser].
func WithRequestRate(rps float64, burst int) Option {
	return func(cfg *watchConfig) error {
		if burst < 0 {
			return errors.New("burst cannot be negative")
		}
		cfg.rps = rps
		cfg.burst = burst
		return nil
	}
}

// WithRequestTimeout bounds each navigation of the built-in browser.
// Defaults to 30 seconds.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *watchConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithUserAgent overrides the built-in browser's user agent.
func WithUserAgent(ua string) Option {
	return func(cfg *watchConfig) error {
		cfg.userAgent = ua
		return nil
	}
}

// WithNotifier adds a notifier. When several are added every alert goes to
// all of them. Without any, alerts are written to the log.
func WithNotifier(n notify.Notifier) Option {
	return func(cfg *watchConfig) error {
		if n == nil {
			return errors.New("notifier cannot be nil")
		}
		cfg.notifiers = append(cfg.notifiers, n)
		return nil
	}
}

// WithBrowser replaces the built-in HTTP browser. The watcher closes it
// when [Watcher.Run] returns.
func WithBrowser(b Browser) Option {
	return func(cfg *watchConfig) error {
		if b == nil {
			return errors.New("browser cannot be nil")
		}
		cfg.browser = b
		return nil
	}
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *watchConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithSleeper replaces the function used for the scan pause and the
// inter-cycle wait. Tests use it to run cycles without waiting.
func WithSleeper(sleep SleepFunc) Option {
	return func(cfg *watchConfig) error {
		if sleep == nil {
			return errors.New("sleeper cannot be nil")
		}
		cfg.sleep = sleep
		return nil
	}
}

// WithStatusPort serves the status API on port while the watcher runs.
// Zero, the default, disables the server.
func WithStatusPort(port int) Option {
	return func(cfg *watchConfig) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("status port must be between 0 and 65535, got %d", port)
		}
		cfg.statusPort = port
		return nil
	}
}

// WithScanCallback registers a function called after every facility scan.
//
// Callbacks run synchronously on the watch loop and must not block. Panics
// are recovered and logged. Nil callbacks are ignored.
func WithScanCallback(cb func(ScanResult)) Option {
	return func(cfg *watchConfig) error {
		if cb != nil {
			cfg.scanCBs = append(cfg.scanCBs, cb)
		}
		return nil
	}
}

// WithCycleCallback registers a function called after every completed
// cycle, with the same rules as [WithScanCallback].
func WithCycleCallback(cb func(CycleReport)) Option {
	return func(cfg *watchConfig) error {
		if cb != nil {
			cfg.cycleCBs = append(cfg.cycleCBs, cb)
		}
		return nil
	}
}
