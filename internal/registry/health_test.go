package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

// registerTestServer регистрирует httptest-сервер как endpoint сервиса.
func registerTestServer(t *testing.T, r *Registry, service string, srv *httptest.Server) *Handle {
	t.Helper()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse test server port: %v", err)
	}

	h, err := r.Register(service, Endpoint{Address: u.Hostname(), Port: port}, RegisterOptions{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return h
}

func TestHealthChecker_CheckOnce(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/healthz" {
			http.NotFound(w, req)
			return
		}
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	r := New(testLogger())
	registerTestServer(t, r, "echo-service", srv)

	hc := NewHealthChecker(HealthCheckerConfig{
		Registry:      r,
		FailThreshold: 3,
		Logger:        testLogger(),
	})

	ctx := context.Background()

	// Здоровый backend остаётся здоровым
	hc.CheckOnce(ctx)
	if _, err := r.Resolve("echo-service"); err != nil {
		t.Fatalf("resolve after healthy check: %v", err)
	}

	// Backend деградирует: нужен порог из 3 провалов
	healthy.Store(false)
	hc.CheckOnce(ctx)
	hc.CheckOnce(ctx)
	if _, err := r.Resolve("echo-service"); err != nil {
		t.Fatalf("endpoint should survive 2 failed checks: %v", err)
	}

	hc.CheckOnce(ctx)
	if _, err := r.Resolve("echo-service"); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("after 3 failed checks: got %v, want ErrServiceUnavailable", err)
	}

	// Восстановление за один успешный цикл
	healthy.Store(true)
	hc.CheckOnce(ctx)
	if _, err := r.Resolve("echo-service"); err != nil {
		t.Fatalf("endpoint should recover after 1 healthy check: %v", err)
	}
}

func TestHealthChecker_UnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := New(testLogger())
	registerTestServer(t, r, "flaky-service", srv)

	// Сервер умирает — connection refused при проверке
	srv.Close()

	hc := NewHealthChecker(HealthCheckerConfig{
		Registry:      r,
		FailThreshold: 2,
		Logger:        testLogger(),
	})

	ctx := context.Background()
	hc.CheckOnce(ctx)
	hc.CheckOnce(ctx)

	if _, err := r.Resolve("flaky-service"); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("got %v, want ErrServiceUnavailable", err)
	}
}

func TestHealthChecker_StartStop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New(testLogger())
	registerTestServer(t, r, "echo-service", srv)

	hc := NewHealthChecker(HealthCheckerConfig{
		Registry: r,
		Interval: time.Millisecond,
		Logger:   testLogger(),
	})

	// Start не блокируется, Stop дожидается завершения цикла
	hc.Start(context.Background())
	hc.Stop()

	select {
	case <-hc.doneCh:
	default:
		t.Fatal("Stop returned before the check loop finished")
	}
}
