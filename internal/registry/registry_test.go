package registry

import (
	"errors"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRegistry_Register_Validation(t *testing.T) {
	r := New(testLogger())

	if _, err := r.Register("", Endpoint{Address: "localhost", Port: 9000}, RegisterOptions{}); !errors.Is(err, ErrInvalidEndpoint) {
		t.Errorf("empty service name: got %v, want ErrInvalidEndpoint", err)
	}
	if _, err := r.Register("svc", Endpoint{Address: "", Port: 9000}, RegisterOptions{}); !errors.Is(err, ErrInvalidEndpoint) {
		t.Errorf("empty address: got %v, want ErrInvalidEndpoint", err)
	}
	if _, err := r.Register("svc", Endpoint{Address: "localhost", Port: 0}, RegisterOptions{}); !errors.Is(err, ErrInvalidEndpoint) {
		t.Errorf("zero port: got %v, want ErrInvalidEndpoint", err)
	}
}

func TestRegistry_Resolve_Unknown(t *testing.T) {
	r := New(testLogger())

	_, err := r.Resolve("ghost-service")
	if !errors.Is(err, ErrServiceUnknown) {
		t.Fatalf("got %v, want ErrServiceUnknown", err)
	}
}

func TestRegistry_Resolve_UnavailableAfterDeregister(t *testing.T) {
	r := New(testLogger())

	h, err := r.Register("analysis-service", Endpoint{Address: "localhost", Port: 9001}, RegisterOptions{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := r.Deregister(h); err != nil {
		t.Fatalf("deregister: %v", err)
	}

	// Имя было зарегистрировано — теперь unavailable, а не unknown
	_, err = r.Resolve("analysis-service")
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("got %v, want ErrServiceUnavailable", err)
	}

	// Повторный deregister того же handle
	if err := r.Deregister(h); !errors.Is(err, ErrHandleNotFound) {
		t.Errorf("double deregister: got %v, want ErrHandleNotFound", err)
	}
}

func TestRegistry_Resolve_RoundRobinDeterministic(t *testing.T) {
	r := New(testLogger())

	endpoints := []Endpoint{
		{Address: "host-a", Port: 9001},
		{Address: "host-b", Port: 9002},
		{Address: "host-c", Port: 9003},
	}
	for _, ep := range endpoints {
		if _, err := r.Register("analysis-service", ep, RegisterOptions{}); err != nil {
			t.Fatalf("register %s: %v", ep.Address, err)
		}
	}

	// Round-robin идёт по порядку регистрации и повторяется циклом
	want := []string{"host-a", "host-b", "host-c", "host-a", "host-b", "host-c"}
	for i, expected := range want {
		res, err := r.Resolve("analysis-service")
		if err != nil {
			t.Fatalf("resolve #%d: %v", i, err)
		}
		if res.Endpoint.Address != expected {
			t.Errorf("resolve #%d: got %s, want %s", i, res.Endpoint.Address, expected)
		}
	}
}

func TestRegistry_Resolve_SkipsUnhealthy(t *testing.T) {
	r := New(testLogger())

	hA, _ := r.Register("svc", Endpoint{Address: "host-a", Port: 9001}, RegisterOptions{})
	_, _ = r.Register("svc", Endpoint{Address: "host-b", Port: 9002}, RegisterOptions{})

	// host-a деградирует: три провала подряд
	for i := 0; i < 3; i++ {
		r.reportHealth("svc", hA.ID, false, 3)
	}

	for i := 0; i < 4; i++ {
		res, err := r.Resolve("svc")
		if err != nil {
			t.Fatalf("resolve #%d: %v", i, err)
		}
		if res.Endpoint.Address != "host-b" {
			t.Errorf("resolve #%d returned unhealthy endpoint %s", i, res.Endpoint.Address)
		}
	}
}

func TestRegistry_Resolve_AllUnhealthy(t *testing.T) {
	r := New(testLogger())

	h, _ := r.Register("svc", Endpoint{Address: "host-a", Port: 9001}, RegisterOptions{})
	for i := 0; i < 3; i++ {
		r.reportHealth("svc", h.ID, false, 3)
	}

	// Нет здоровых endpoint'ов — всегда unavailable, никогда stale endpoint
	for i := 0; i < 3; i++ {
		_, err := r.Resolve("svc")
		if !errors.Is(err, ErrServiceUnavailable) {
			t.Fatalf("resolve #%d: got %v, want ErrServiceUnavailable", i, err)
		}
	}
}

func TestRegistry_HealthTransitions(t *testing.T) {
	r := New(testLogger())
	h, _ := r.Register("svc", Endpoint{Address: "host-a", Port: 9001}, RegisterOptions{})

	// Два провала при пороге 3 — ещё здоров
	r.reportHealth("svc", h.ID, false, 3)
	r.reportHealth("svc", h.ID, false, 3)
	if _, err := r.Resolve("svc"); err != nil {
		t.Fatalf("endpoint should still be healthy after 2 failures: %v", err)
	}

	// Третий провал — нездоров
	r.reportHealth("svc", h.ID, false, 3)
	if _, err := r.Resolve("svc"); !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("endpoint should be unhealthy after 3 failures: %v", err)
	}

	// Один успех — снова здоров (быстрое восстановление)
	r.reportHealth("svc", h.ID, true, 3)
	if _, err := r.Resolve("svc"); err != nil {
		t.Fatalf("endpoint should recover after 1 success: %v", err)
	}

	// Счётчик провалов сброшен: два провала снова не валят endpoint
	r.reportHealth("svc", h.ID, false, 3)
	r.reportHealth("svc", h.ID, false, 3)
	if _, err := r.Resolve("svc"); err != nil {
		t.Fatalf("failure counter should reset after recovery: %v", err)
	}
}

func TestRegistry_IdempotentOps(t *testing.T) {
	r := New(testLogger())
	_, err := r.Register("stats-service", Endpoint{Address: "localhost", Port: 9001}, RegisterOptions{
		IdempotentOps: []string{"describe", "summarize"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	res, err := r.Resolve("stats-service")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if !res.IsIdempotent("describe") {
		t.Error("describe should be idempotent")
	}
	if res.IsIdempotent("mutate") {
		t.Error("mutate should not be idempotent")
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	r := New(testLogger())
	_, _ = r.Register("svc-a", Endpoint{Address: "host-a", Port: 9001}, RegisterOptions{})
	hB, _ := r.Register("svc-b", Endpoint{Address: "host-b", Port: 9002}, RegisterOptions{})

	for i := 0; i < 3; i++ {
		r.reportHealth("svc-b", hB.ID, false, 3)
	}

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snap))
	}

	byService := make(map[string]ServiceStatus)
	for _, s := range snap {
		byService[s.Service] = s
	}
	if !byService["svc-a"].Healthy {
		t.Error("svc-a should be healthy")
	}
	if byService["svc-b"].Healthy {
		t.Error("svc-b should be unhealthy")
	}
}
