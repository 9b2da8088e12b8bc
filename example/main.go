package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/visaslot"
	"github.com/jpalmerr/visaslot/internal/fakesite"
	"github.com/jpalmerr/visaslot/notify"
)

func main() {
	// in-process fake booking site with a few dates on offer
	site := fakesite.New("demo@example.com", "demo-password")
	site.SetDays(94, time.Now().AddDate(0, 2, 0).Format(time.DateOnly))
	site.SetDays(95)
	site.SetDays(96, time.Now().AddDate(0, 0, 10).Format(time.DateOnly), time.Now().AddDate(0, 1, 0).Format(time.DateOnly))
	go func() {
		if err := http.ListenAndServe(":9999", site.Handler()); err != nil {
			slog.Error("fake site failed", "error", err)
			os.Exit(1)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	w, err := visaslot.New(
		visaslot.WithSite("http://localhost:9999", "en-ca", "12345678"),
		visaslot.WithCredentials("demo@example.com", "demo-password"),
		visaslot.WithFacilities(94, 96),
		visaslot.WithFacilityNames(map[int]string{94: "Vancouver", 95: "Calgary", 96: "Toronto"}),
		visaslot.WithThreshold(time.Now().AddDate(0, 1, 15)),
		visaslot.WithMaxCycles(5),
		visaslot.WithIdleDelay(20*time.Second),
		visaslot.WithActiveDelay(10*time.Second),
		visaslot.WithScanPause(500*time.Millisecond),
		visaslot.WithRequestRate(5, 2),
		visaslot.WithLogger(logger),
		visaslot.WithStatusPort(8080),
		// print alerts instead of sending email
		visaslot.WithNotifier(notify.NotifierFunc(func(_ context.Context, msg notify.Message) error {
			fmt.Printf("\n  >>> %s\n      %s\n\n", msg.Subject, msg.Body)
			return nil
		})),
		visaslot.WithScanCallback(func(r visaslot.ScanResult) {
			fmt.Printf("  %-10s %-8s %s\n", r.FacilityName, r.Kind, formatEarliest(r))
		}),
		visaslot.WithCycleCallback(func(c visaslot.CycleReport) {
			fmt.Printf("cycle %d done: any slots=%v, next in %s, %d cycles left\n",
				c.Number, c.AnyFound, c.Delay, c.Remaining)
		}),
	)
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  visaslot demo")
	fmt.Println("  Fake booking site on http://localhost:9999")
	fmt.Println("  Status API on http://localhost:8080/api/status")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil {
		slog.Error("visaslot error", "error", err)
		os.Exit(1)
	}
}

func formatEarliest(r visaslot.ScanResult) string {
	if !r.Found() {
		return "-"
	}
	return r.Earliest.Format(time.DateOnly)
}
