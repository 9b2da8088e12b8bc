// Standalone fake booking site for trying the CLI without real credentials.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/visaslot watch -c example/config.yaml
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/jpalmerr/visaslot/internal/fakesite"
)

const (
	addr     = ":9999"
	email    = "demo@example.com"
	password = "demo-password"
)

func main() {
	fmt.Println("Fake booking site starting on", addr)
	fmt.Printf("Sign in with %s / %s\n", email, password)
	fmt.Println("Facilities 94-96 reshuffle their dates every 20s; sessions expire every 2m")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	site := fakesite.New(email, password)
	shuffle(site)

	go func() {
		reshuffle := time.NewTicker(20 * time.Second)
		expire := time.NewTicker(2 * time.Minute)
		defer reshuffle.Stop()
		defer expire.Stop()
		for {
			select {
			case <-reshuffle.C:
				shuffle(site)
			case <-expire.C:
				site.ExpireSessions()
				slog.Info("sessions expired")
			}
		}
	}()

	if err := http.ListenAndServe(addr, site.Handler()); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// shuffle gives each facility between zero and three dates in the next
// few months.
func shuffle(site *fakesite.Site) {
	today := time.Now()
	for id := 94; id <= 96; id++ {
		n := rand.Intn(4)
		dates := make([]string, 0, n)
		for i := 0; i < n; i++ {
			dates = append(dates, today.AddDate(0, 0, 7+rand.Intn(120)).Format(time.DateOnly))
		}
		site.SetDays(id, dates...)
		slog.Info("facility updated", "facility_id", id, "dates", dates)
	}
}
