package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jpalmerr/visaslot/internal/store"
)

// testLogger returns a logger that discards all output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }

func TestHandleStatus(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.Update(store.FacilityStatus{FacilityID: 95, Name: "Calgary", Kind: "empty", Cycle: 1})
	ms.Update(store.FacilityStatus{FacilityID: 94, Name: "Vancouver", Kind: "slots", Earliest: "2024-05-20", Offered: 2, BeforeThreshold: true, Cycle: 1})
	ms.Update(store.FacilityStatus{FacilityID: 96, Name: "facility 96", Kind: "fetch_failed", Error: strPtr("timeout"), Cycle: 1})

	srv := NewServer(ms, 0, testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var got []store.FacilityStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v (%s)", err, rec.Body.String())
	}
	if len(got) != 3 {
		t.Fatalf("got %d statuses, want 3", len(got))
	}
	if got[0].FacilityID != 94 || got[0].Earliest != "2024-05-20" || !got[0].BeforeThreshold {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[2].Error == nil || *got[2].Error != "timeout" {
		t.Errorf("got[2].Error = %v, want timeout", got[2].Error)
	}
}

func TestHandleStatus_Empty(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), 0, testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want []", body)
	}
}

func TestHandlers_MethodNotAllowed(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), 0, testLogger())

	for _, path := range []string{"/api/status", "/healthz"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("POST %s = %d, want %d", path, rec.Code, http.StatusMethodNotAllowed)
		}
	}
}

func TestHandleHealth(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), 0, testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK || rec.Body.String() != "ok\n" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestHandleSSE_SnapshotAndUpdates(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.Update(store.FacilityStatus{FacilityID: 94, Name: "Vancouver", Kind: "empty"})

	srv := NewServer(ms, 0, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	// let the handler subscribe
	time.Sleep(50 * time.Millisecond)
	ms.Update(store.FacilityStatus{FacilityID: 95, Name: "Calgary", Kind: "slots", Earliest: "2024-06-01"})
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not exit after context cancellation")
	}

	body := rec.Body.String()
	if !strings.Contains(body, `"name":"Vancouver"`) {
		t.Errorf("snapshot missing from stream: %s", body)
	}
	if !strings.Contains(body, `"earliest":"2024-06-01"`) {
		t.Errorf("update missing from stream: %s", body)
	}
	if got := strings.Count(body, "data: "); got != 2 {
		t.Errorf("stream has %d events, want 2", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestHandleSSE_NotSupported(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), 0, testLogger())

	w := &nonFlushWriter{header: make(http.Header)}
	srv.handleSSE(w, httptest.NewRequest(http.MethodGet, "/api/sse", nil))

	if w.statusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.statusCode, http.StatusInternalServerError)
	}
}

type nonFlushWriter struct {
	header     http.Header
	statusCode int
}

func (n *nonFlushWriter) Header() http.Header         { return n.header }
func (n *nonFlushWriter) Write(b []byte) (int, error) { return len(b), nil }
func (n *nonFlushWriter) WriteHeader(code int)        { n.statusCode = code }

func TestHandleSSE_ConcurrentClientsShutdown(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.Update(store.FacilityStatus{FacilityID: 94})
	srv := NewServer(ms, 0, testLogger())

	serverCtx, serverCancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(serverCtx)
			srv.handleSSE(httptest.NewRecorder(), req)
		}()
	}

	time.Sleep(100 * time.Millisecond)
	serverCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("not all handlers exited after shutdown")
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	ms := store.NewMemoryStore()
	ms.Update(store.FacilityStatus{FacilityID: 94, Kind: "empty"})
	srv := NewServer(ms, 0, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	addr, ok := srv.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("Addr() = %v, want TCP address", srv.Addr())
	}

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/status", addr.Port))
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `"facility_id":94`) {
		t.Errorf("body = %s", body)
	}

	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr.String(), 100*time.Millisecond)
		if err != nil {
			return
		}
		conn.Close()
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("server still accepting connections after shutdown")
}

func TestServer_StartPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	srv := NewServer(store.NewMemoryStore(), ln.Addr().(*net.TCPAddr).Port, testLogger())
	if err := srv.Start(context.Background()); err == nil {
		t.Error("Start() on a bound port should fail")
	}
}

func TestHandleDashboard(t *testing.T) {
	assets := fstest.MapFS{
		"assets/index.html": {Data: []byte("<title>{{TITLE}}</title>")},
	}
	srv := NewServer(store.NewMemoryStore(), 0, testLogger()).WithDashboard(assets, "schedule <42>")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Body.String(); got != "<title>schedule &lt;42&gt;</title>" {
		t.Errorf("body = %q, want escaped title", got)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("/other status = %d, want 404", rec.Code)
	}
}

func TestHandleDashboard_DefaultTitleAndMissingAsset(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), 0, testLogger()).
		WithDashboard(fstest.MapFS{"assets/index.html": {Data: []byte("{{TITLE}}")}}, "")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Body.String() != defaultTitle {
		t.Errorf("body = %q, want %q", rec.Body.String(), defaultTitle)
	}

	srv = NewServer(store.NewMemoryStore(), 0, testLogger()).WithDashboard(fstest.MapFS{}, "x")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHandler_NoDashboard(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(), 0, testLogger())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 without dashboard", rec.Code)
	}
}
