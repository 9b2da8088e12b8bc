package visaslot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/hako/durafmt"

	"github.com/jpalmerr/visaslot/dashboard"
	"github.com/jpalmerr/visaslot/internal/browser"
	"github.com/jpalmerr/visaslot/internal/poller"
	"github.com/jpalmerr/visaslot/internal/server"
	"github.com/jpalmerr/visaslot/internal/store"
	"github.com/jpalmerr/visaslot/notify"
)

// DefaultBaseURL is the booking site used when [WithSite] is given no base.
const DefaultBaseURL = "https://ais.usvisa-info.com"

const (
	defaultMaxCycles   = 100
	defaultIdleDelay   = 2 * time.Minute
	defaultActiveDelay = 30 * time.Second
	defaultScanPause   = 3 * time.Second
	defaultRate        = 1.0
	defaultBurst       = 1
)

// Watcher polls a visa appointment schedule for dates earlier than a
// threshold and notifies when one appears.
//
// Each cycle signs in if needed, scans every facility in ascending order,
// alerts on qualifying dates, and then sleeps for an interval that is short
// when any facility offered a slot and long otherwise. The watcher stops
// after a fixed number of cycles, on a login failure, or when its context
// is cancelled.
//
// Typical use:
//
//	w, err := visaslot.New(
//	    visaslot.WithSite("", "en-ca", "12345678"),
//	    visaslot.WithCredentials(email, password),
//	    visaslot.WithFacilities(94, 95),
//	    visaslot.WithThreshold(visaslot.MustParseDate("2024-06-01")),
//	)
//	if err != nil {
//	    slog.Error("failed to create watcher", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	if err := w.Run(ctx); err != nil {
//	    os.Exit(1)
//	}
//
// A Watcher is driven by a single goroutine and must not be run twice.
type Watcher struct {
	site         Site
	facilities   FacilityRange
	maxCycles    int
	initialDelay time.Duration

	scheduler *poller.AdaptiveScheduler
	session   *Session
	scanner   *Scanner
	alerter   *alerter
	browser   Browser
	store     *store.MemoryStore

	statusPort int
	sleep      SleepFunc
	logger     *slog.Logger
	scanCBs    []func(ScanResult)
	cycleCBs   []func(CycleReport)
}

// New creates a [Watcher].
//
// [WithSite], [WithCredentials], [WithFacilities] and [WithThreshold] are
// required. Everything else has a default:
//   - Max cycles: 100
//   - Idle delay: 2 minutes, active delay: 30 seconds
//   - Scan pause: 3 seconds
//   - Request rate: 1 per second
//   - Notifier: the log
func New(opts ...Option) (*Watcher, error) {
	cfg := &watchConfig{
		site:      Site{BaseURL: DefaultBaseURL},
		names:     make(map[int]string),
		maxCycles: defaultMaxCycles,
		idle:      defaultIdleDelay,
		active:    defaultActiveDelay,
		scanPause: defaultScanPause,
		rps:       defaultRate,
		burst:     defaultBurst,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.site.CountryCode == "" {
		return nil, errors.New("site is required")
	}
	if cfg.creds.Email == "" {
		return nil, errors.New("credentials are required")
	}
	if cfg.facilities == nil {
		return nil, errors.New("facility range is required")
	}
	if !cfg.thresholdOK {
		return nil, errors.New("threshold is required")
	}

	scheduler, err := poller.NewAdaptiveScheduler(cfg.active, cfg.idle)
	if err != nil {
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	sleep := cfg.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	initial := cfg.initial
	if !cfg.initialSet {
		initial = cfg.active
	}

	b := cfg.browser
	if b == nil {
		hb, err := browser.New(browser.Options{
			RequestTimeout:    cfg.timeout,
			RequestsPerSecond: cfg.rps,
			Burst:             cfg.burst,
			UserAgent:         cfg.userAgent,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create browser: %w", err)
		}
		b = httpBrowser{b: hb}
	}

	session := NewSession(cfg.site.LoginURL(), cfg.creds, logger)

	return &Watcher{
		site:         cfg.site,
		facilities:   *cfg.facilities,
		maxCycles:    cfg.maxCycles,
		initialDelay: initial,
		scheduler:    scheduler,
		session:      session,
		scanner:      NewScanner(cfg.site, session, cfg.names, cfg.scanPause, sleep, logger),
		alerter: &alerter{
			threshold: cfg.threshold,
			notifier:  combineNotifiers(cfg.notifiers, logger),
			logger:    logger,
		},
		browser:    b,
		store:      store.NewMemoryStore(),
		statusPort: cfg.statusPort,
		sleep:      sleep,
		logger:     logger,
		scanCBs:    cfg.scanCBs,
		cycleCBs:   cfg.cycleCBs,
	}, nil
}

func combineNotifiers(ns []notify.Notifier, logger *slog.Logger) notify.Notifier {
	switch len(ns) {
	case 0:
		return notify.NewLog(logger)
	case 1:
		return ns[0]
	default:
		return notify.NewMulti(ns...)
	}
}

// Run polls until the cycle budget is spent, a login fails, or ctx is
// cancelled. The browser is closed before Run returns.
//
// Run returns nil when the budget is spent or ctx is cancelled, and an
// error wrapping [ErrLoginFailed] when signing in fails.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	w.logger.Info("visaslot starting",
		"facilities", fmt.Sprintf("%d-%d", w.facilities.First, w.facilities.Last),
		"threshold", w.Threshold().Format(DateLayout),
		"max_cycles", w.maxCycles,
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if w.statusPort > 0 {
		srv := server.NewServer(w.store, w.statusPort, w.logger).
			WithDashboard(dashboard.Assets, "visaslot: schedule "+w.site.ScheduleID)
		if err := srv.Start(runCtx); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
	}

	cycle := w.NewCycle()
	for !cycle.Terminated() {
		var err error
		cycle, err = w.RunCycle(runCtx, cycle)
		if err != nil {
			w.logger.Error("watcher stopped", "cycle", cycle.Number, "error", err.Error())
			return err
		}
	}

	w.logger.Info("visaslot stopped", "cycles", cycle.Number, "remaining", cycle.Remaining())
	return nil
}

// NewCycle returns the starting loop state for this watcher.
func (w *Watcher) NewCycle() PollCycle {
	return NewPollCycle(w.maxCycles, w.initialDelay)
}

// RunCycle runs one full cycle from Idle through Sleeping and returns the
// updated loop state.
//
// The returned state is StateIdle when another cycle may follow, and
// StateTerminated when the budget is spent, ctx was cancelled, or login
// failed. Only a login or page failure produces an error.
func (w *Watcher) RunCycle(ctx context.Context, cycle PollCycle) (PollCycle, error) {
	if cycle.Terminated() {
		return cycle, nil
	}
	if ctx.Err() != nil {
		cycle.State = StateTerminated
		return cycle, nil
	}

	cycle.State = StateIdle
	w.logger.Info("starting cycle", "tries_left", cycle.Remaining())
	if !cycle.budget.Consume() {
		w.logger.Info("reached max tries")
		cycle.State = StateTerminated
		return cycle, nil
	}
	cycle.Number++

	report := CycleReport{
		ID:        uuid.NewString(),
		Number:    cycle.Number,
		StartedAt: time.Now(),
	}
	logger := w.logger.With("cycle", cycle.Number, "cycle_id", report.ID)

	cycle.State = StateLoggingIn
	page, err := w.browser.NewPage(ctx)
	if err != nil {
		cycle.State = StateTerminated
		if ctx.Err() != nil {
			return cycle, nil
		}
		return cycle, fmt.Errorf("failed to open page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Warn("failed to close page", "error", err.Error())
		}
	}()

	if err := w.session.EnsureLoggedIn(ctx, page); err != nil {
		cycle.State = StateTerminated
		if ctx.Err() != nil {
			return cycle, nil
		}
		return cycle, err
	}

	cycle.State = StateScanning
	cycle.AnyFound = false
	for _, id := range w.facilities.IDs() {
		if ctx.Err() != nil {
			break
		}
		result := w.scanner.Scan(ctx, page, id)
		report.Results = append(report.Results, result)
		if result.Found() {
			cycle.AnyFound = true
		}

		sent, err := w.alerter.alert(ctx, result)
		if sent {
			report.Notified++
		}
		if err != nil {
			report.NotifyErrors++
		}

		w.publish(cycle.Number, result)
		for _, cb := range w.scanCBs {
			invokeCallbackSafe(cb, result, "scan", logger)
		}
	}
	if ctx.Err() != nil {
		logger.Info("cycle interrupted")
		cycle.State = StateTerminated
		return cycle, nil
	}

	cycle.State = StateScheduling
	cycle.Delay = w.scheduler.NextDelay(cycle.AnyFound)

	report.AnyFound = cycle.AnyFound
	report.Delay = cycle.Delay
	report.Remaining = cycle.Remaining()
	report.FinishedAt = time.Now()

	logger.Info("cycle complete",
		"found", cycle.AnyFound,
		"notified", report.Notified,
		"next_poll_in", durafmt.Parse(cycle.Delay).String(),
	)
	for _, cb := range w.cycleCBs {
		invokeCallbackSafe(cb, report, "cycle", logger)
	}

	cycle.State = StateSleeping
	if err := w.sleep(ctx, cycle.Delay); err != nil {
		cycle.State = StateTerminated
		return cycle, nil
	}

	cycle.State = StateIdle
	return cycle, nil
}

// Close releases the browser. Run calls it on return; callers driving the
// loop with RunCycle must call it themselves.
func (w *Watcher) Close() error {
	return w.browser.Close()
}

// Site returns the watched site.
func (w *Watcher) Site() Site {
	return w.site
}

// Facilities returns the scanned facility range.
func (w *Watcher) Facilities() FacilityRange {
	return w.facilities
}

// Threshold returns the notification cutoff date.
func (w *Watcher) Threshold() time.Time {
	return w.alerter.threshold
}

// MaxCycles returns the cycle budget.
func (w *Watcher) MaxCycles() int {
	return w.maxCycles
}

// Session returns the watcher's session tracker.
func (w *Watcher) Session() *Session {
	return w.session
}

// publish records result in the status store.
func (w *Watcher) publish(cycle int, r ScanResult) {
	status := store.FacilityStatus{
		FacilityID:      r.FacilityID,
		Name:            r.FacilityName,
		Kind:            r.Kind.String(),
		Offered:         len(r.Dates),
		BeforeThreshold: w.alerter.qualifies(r),
		Cycle:           cycle,
		CheckedAt:       r.CheckedAt,
	}
	if r.Found() {
		status.Earliest = r.Earliest.Format(DateLayout)
	}
	if r.Err != nil {
		msg := r.Err.Error()
		status.Error = &msg
	}
	w.store.Update(status)
}

// invokeCallbackSafe calls cb with panic recovery. A panic is logged with
// a correlation id and the stack, and does not stop the loop.
func invokeCallbackSafe[T any](cb func(T), v T, kind string, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(kind+" callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	cb(v)
}
