// Package visaslot watches a US visa appointment schedule for dates earlier
// than one already held, and raises an alert when one appears.
//
// The booking site serves each consular facility's open dates as a JSON
// feed behind a signed-in session that expires without warning. A
// [Watcher] keeps that session alive, scans a contiguous range of
// facilities in order, and notifies when the earliest offered date at any
// facility is strictly before a configured threshold.
//
// # Quick Start
//
//	w, err := visaslot.New(
//	    visaslot.WithSite("", "en-ca", "12345678"),
//	    visaslot.WithCredentials(email, password),
//	    visaslot.WithFacilities(94, 95),
//	    visaslot.WithFacilityNames(map[int]string{94: "Vancouver", 95: "Calgary"}),
//	    visaslot.WithThreshold(visaslot.MustParseDate("2024-06-01")),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	err = w.Run(ctx) // blocks until the cycle budget is spent
//
// # Poll Cycle
//
// Every cycle moves through the states Idle, LoggingIn, Scanning,
// Scheduling and Sleeping. Idle spends one unit of the cycle budget and
// stops the loop when none is left. Each facility scan is classified as a
// [ScanKind]; a body that is not a list of dates means the session has
// expired and the next cycle signs in again. The wait before the next cycle
// is short when any facility offered a slot and long otherwise.
//
// [Watcher.RunCycle] exposes a single cycle over an explicit [PollCycle]
// so callers and tests can step the loop.
//
// # Notifications
//
// Alerts go through [github.com/jpalmerr/visaslot/notify]. A date that
// stays available alerts again on every cycle until it is gone.
//
// # Architecture
//
//   - internal/browser: HTTP browser with a shared cookie jar and form filling
//   - internal/poller: HTTP client, request pacing, cycle budget, adaptive delay
//   - internal/store: latest status per facility with pub/sub
//   - internal/server: optional status API, SSE stream and dashboard page
//   - internal/fakesite: a local stand-in for the booking site
//   - config: YAML, TOML or environment configuration for the CLI
//   - dashboard: the embedded status page
package visaslot
