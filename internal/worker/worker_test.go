package worker

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/loadkit/loadkit/internal/stats"
	"github.com/loadkit/loadkit/internal/urlset"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func startWorker(t *testing.T, cfg *Config) (*Worker, chan struct{}) {
	t.Helper()
	w := New(cfg, testLogger())
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(stop)
	}()
	t.Cleanup(func() {
		close(stop)
		<-done
	})
	return w, stop
}

func newRegistry(t *testing.T, url string) *urlset.Registry {
	t.Helper()
	r := urlset.New()
	if err := r.InitSingle(context.Background(), url, urlset.FamilyAny); err != nil {
		t.Fatalf("InitSingle: %v", err)
	}
	return r
}

func TestWorkerKeepAliveSingleSocket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello, World!\n"))
	}))
	defer srv.Close()

	box := stats.NewBox()
	cfg := &Config{
		Index:       0,
		Connections: 1,
		Method:      "GET",
		KeepAlive:   true,
		Registry:    newRegistry(t, srv.URL+"/hello"),
		Stats:       box,
	}
	startWorker(t, cfg)

	time.Sleep(150 * time.Millisecond)
	snap := box.Swap()
	if snap.Successful == 0 {
		t.Fatalf("expected at least one successful request, got %+v", snap)
	}
	if snap.Failed != 0 {
		t.Fatalf("expected no failures, got %+v", snap)
	}
	if snap.SocketsOpened != 1 {
		t.Fatalf("keep-alive should open exactly one socket, opened %d", snap.SocketsOpened)
	}
}

func TestWorkerNoKeepAliveOpensSocketPerRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello, World!\n"))
	}))
	defer srv.Close()

	box := stats.NewBox()
	cfg := &Config{
		Index:       0,
		Connections: 1,
		Method:      "GET",
		KeepAlive:   false,
		Registry:    newRegistry(t, srv.URL+"/hello"),
		Stats:       box,
	}
	startWorker(t, cfg)

	time.Sleep(200 * time.Millisecond)
	snap := box.Swap()
	if snap.Successful == 0 {
		t.Fatalf("expected at least one successful request, got %+v", snap)
	}
	if snap.SocketsOpened < snap.Successful {
		t.Fatalf("expected a socket per completed request: sockets=%d successful=%d", snap.SocketsOpened, snap.Successful)
	}
}

func TestWorkerOneShotStopsAfterSingleRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello, World!\n"))
	}))
	defer srv.Close()

	box := stats.NewBox()
	cfg := &Config{
		Index:       0,
		Connections: 1,
		Method:      "GET",
		KeepAlive:   true,
		OneShot:     true,
		Registry:    newRegistry(t, srv.URL+"/hello"),
		Stats:       box,
	}
	startWorker(t, cfg)

	time.Sleep(150 * time.Millisecond)
	snap := box.Swap()
	if snap.Successful != 1 {
		t.Fatalf("one-shot should record exactly one success, got %+v", snap)
	}

	time.Sleep(150 * time.Millisecond)
	snap2 := box.Swap()
	if snap2.Successful != 0 {
		t.Fatalf("one-shot worker should not issue further requests, got %+v", snap2)
	}
}

func TestWorkerTreatsRedirectAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/elsewhere")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	box := stats.NewBox()
	cfg := &Config{
		Index:       0,
		Connections: 1,
		Method:      "GET",
		KeepAlive:   true,
		Registry:    newRegistry(t, srv.URL+"/hello"),
		Stats:       box,
	}
	startWorker(t, cfg)

	time.Sleep(150 * time.Millisecond)
	snap := box.Swap()
	if snap.Successful != 0 {
		t.Fatalf("a 3xx response must not count as successful, got %+v", snap)
	}
	if snap.Failed == 0 {
		t.Fatalf("expected at least one failure for a 3xx response, got %+v", snap)
	}
}

func TestWorkerReconnectsAfterConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close() // nothing listening: every connect attempt is refused

	box := stats.NewBox()
	cfg := &Config{
		Index:       0,
		Connections: 1,
		Method:      "GET",
		KeepAlive:   true,
		Registry:    newRegistry(t, "http://"+addr+"/hello"),
		Stats:       box,
	}
	startWorker(t, cfg)

	time.Sleep(500 * time.Millisecond)
	snap := box.Swap()
	if snap.Failed == 0 {
		t.Fatalf("expected repeated connect failures to be counted, got %+v", snap)
	}
	if snap.Successful != 0 {
		t.Fatalf("expected no successes against a closed port, got %+v", snap)
	}
}

func TestWorkerSetConnectionsShrinksGracefully(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Hello, World!\n"))
	}))
	defer srv.Close()

	box := stats.NewBox()
	cfg := &Config{
		Index:       0,
		Connections: 3,
		Method:      "GET",
		KeepAlive:   true,
		Registry:    newRegistry(t, srv.URL+"/hello"),
		Stats:       box,
	}
	w, _ := startWorker(t, cfg)

	time.Sleep(100 * time.Millisecond)
	_ = box.Swap()

	w.Commands <- Command{Kind: CommandSetConnections, Connections: 1}
	time.Sleep(150 * time.Millisecond)
	mid := box.Swap()
	if mid.Failed != 0 {
		t.Fatalf("shrinking should not fail in-flight requests, got %+v", mid)
	}

	w.Commands <- Command{Kind: CommandSetConnections, Connections: 2}
	time.Sleep(150 * time.Millisecond)
	after := box.Swap()
	if after.Successful == 0 {
		t.Fatalf("worker should keep serving after resize back up, got %+v", after)
	}
}

func TestComposeRequestOmitsPresetHeaders(t *testing.T) {
	u, err := urlset.Parse("http://example.com/path")
	if err != nil {
		t.Fatal(err)
	}
	cfg := &Config{
		Method:      "GET",
		KeepAlive:   true,
		UserAgent:   "custom-agent",
		Preset:      PresetHost | PresetUserAgent,
		HeaderLines: []string{"Host: override.example.com"},
	}
	req := string(composeRequest(cfg, u))
	if count := countOccurrences(req, "Host:"); count != 1 {
		t.Fatalf("expected exactly one Host header, got %d in %q", count, req)
	}
	if countOccurrences(req, "User-Agent:") != 0 {
		t.Fatalf("User-Agent should have been suppressed by the preset bit: %q", req)
	}
}

func countOccurrences(s, substr string) int {
	n := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			n++
		}
	}
	return n
}
