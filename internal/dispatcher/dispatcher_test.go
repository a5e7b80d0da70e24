package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/registry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeAnalysisStore хранит записи в памяти; сбои записи инъектируются.
type fakeAnalysisStore struct {
	mu          sync.Mutex
	created     []*domain.AnalysisRecord
	updates     []statusWrite
	failCreates int
	failUpdates int
}

type statusWrite struct {
	id     uuid.UUID
	status domain.AnalysisStatus
	upd    domain.StatusUpdate
}

func (f *fakeAnalysisStore) Create(_ context.Context, rec *domain.AnalysisRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreates > 0 {
		f.failCreates--
		return errors.New("connection refused")
	}
	cp := *rec
	f.created = append(f.created, &cp)
	return nil
}

func (f *fakeAnalysisStore) UpdateStatus(_ context.Context, id uuid.UUID, status domain.AnalysisStatus, upd domain.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdates > 0 {
		f.failUpdates--
		return errors.New("connection refused")
	}
	f.updates = append(f.updates, statusWrite{id: id, status: status, upd: upd})
	return nil
}

func (f *fakeAnalysisStore) lastStatus() (domain.AnalysisStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.updates) == 0 {
		return "", false
	}
	return f.updates[len(f.updates)-1].status, true
}

// fakeEnqueuer накапливает поставленные задачи обогащения.
type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*domain.ProcessingTask
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, task *domain.ProcessingTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

// fakeCapturer накапливает обновления контекста диалога.
type fakeCapturer struct {
	mu       sync.Mutex
	captures []capturedConv
}

type capturedConv struct {
	processInstanceID string
	threadID          string
	assistantID       string
}

func (f *fakeCapturer) Capture(_ context.Context, processInstanceID, threadID, assistantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captures = append(f.captures, capturedConv{processInstanceID, threadID, assistantID})
	return nil
}

// fakeCaller делегирует вызов функции и считает попытки.
type fakeCaller struct {
	mu    sync.Mutex
	calls int
	fn    func(attempt int) (map[string]any, []byte, error)
}

func (f *fakeCaller) Call(_ context.Context, _, _ string, _ map[string]any) (map[string]any, []byte, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	return f.fn(n)
}

// registerEndpoint регистрирует URL тестового сервера в реестре.
func registerEndpoint(t *testing.T, reg *registry.Registry, service, serverURL string, opts registry.RegisterOptions) *registry.Handle {
	t.Helper()
	u, err := url.Parse(serverURL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	port, _ := strconv.Atoi(u.Port())
	h, err := reg.Register(service, registry.Endpoint{Address: u.Hostname(), Port: port}, opts)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return h
}

func newTestDispatcher(reg *registry.Registry, st *fakeAnalysisStore, enq *fakeEnqueuer, capt *fakeCapturer, cfg Config) *Dispatcher {
	if cfg.PersistBackoff == 0 {
		cfg.PersistBackoff = time.Millisecond
	}
	var enqueuer ProcessingEnqueuer
	if enq != nil {
		enqueuer = enq
	}
	var capturer ConversationCapturer
	if capt != nil {
		capturer = capt
	}
	return New(reg, st, enqueuer, capturer, nil, testLogger(), cfg)
}

func invocation() domain.TaskInvocation {
	return domain.TaskInvocation{
		ProcessInstanceID: "proc-1",
		TaskName:          "generate-analysis",
		ServiceName:       "analyzer",
		Operation:         "analyze",
		Payload:           map[string]any{"x": 1},
	}
}

func TestDispatchEchoBackend(t *testing.T) {
	// Бэкенд возвращает payload как есть
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	reg := registry.New(testLogger())
	registerEndpoint(t, reg, "analyzer", srv.URL, registry.RegisterOptions{})

	st := &fakeAnalysisStore{}
	enq := &fakeEnqueuer{}
	d := newTestDispatcher(reg, st, enq, nil, Config{ProcessorTypes: []string{"vector-index", "graph-expand"}})

	res, err := d.Dispatch(context.Background(), invocation())
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if res.Status != domain.AnalysisStatusCompleted {
		t.Fatalf("expected completed, got %s (error: %s)", res.Status, res.Error)
	}
	if res.Unaudited {
		t.Error("expected audited dispatch")
	}
	if got := res.Output["x"]; got != float64(1) {
		t.Errorf("expected echoed x=1, got %v", got)
	}

	// Запись создана до вызова, затем processing, затем completed
	if len(st.created) != 1 {
		t.Fatalf("expected exactly one created record, got %d", len(st.created))
	}
	if st.created[0].Status != domain.AnalysisStatusCreated {
		t.Errorf("record must be created in status created, got %s", st.created[0].Status)
	}
	if st.created[0].ID.String() != res.AnalysisID {
		t.Error("result analysis id does not match created record")
	}
	if len(st.updates) != 2 {
		t.Fatalf("expected processing+completed updates, got %d", len(st.updates))
	}
	if st.updates[0].status != domain.AnalysisStatusProcessing {
		t.Errorf("first update must be processing, got %s", st.updates[0].status)
	}
	if st.updates[1].status != domain.AnalysisStatusCompleted {
		t.Errorf("second update must be completed, got %s", st.updates[1].status)
	}
	if st.updates[1].upd.Output == nil || len(st.updates[1].upd.RawResponse) == 0 {
		t.Error("completed update must carry output and raw response")
	}

	// Поставлены оба типа процессоров
	if len(enq.tasks) != 2 {
		t.Fatalf("expected 2 processing tasks, got %d", len(enq.tasks))
	}
	for _, task := range enq.tasks {
		if task.AnalysisID.String() != res.AnalysisID {
			t.Error("processing task must reference the analysis")
		}
	}
}

func TestDispatchGhostService(t *testing.T) {
	reg := registry.New(testLogger())
	st := &fakeAnalysisStore{}
	d := newTestDispatcher(reg, st, nil, nil, Config{})

	res, err := d.Dispatch(context.Background(), invocation())
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if res.Status != domain.AnalysisStatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if res.ErrorKind != ErrorKindServiceUnknown {
		t.Errorf("expected service_unknown, got %s", res.ErrorKind)
	}
	if res.Retryable {
		t.Error("unknown service is a workflow configuration error, not retryable")
	}

	// Провальный dispatch всё равно оставляет аудиторскую запись
	if len(st.created) != 1 {
		t.Fatalf("expected one created record, got %d", len(st.created))
	}
	if status, ok := st.lastStatus(); !ok || status != domain.AnalysisStatusFailed {
		t.Errorf("expected failed status persisted, got %v", status)
	}
}

func TestDispatchServiceUnavailable(t *testing.T) {
	reg := registry.New(testLogger())
	h := registerEndpoint(t, reg, "analyzer", "http://127.0.0.1:1", registry.RegisterOptions{})
	if err := reg.Deregister(h); err != nil {
		t.Fatalf("Deregister failed: %v", err)
	}

	st := &fakeAnalysisStore{}
	d := newTestDispatcher(reg, st, nil, nil, Config{})

	res, err := d.Dispatch(context.Background(), invocation())
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	if res.ErrorKind != ErrorKindServiceUnavailable {
		t.Errorf("expected service_unavailable, got %s", res.ErrorKind)
	}
	if !res.Retryable {
		t.Error("unavailable service should be retryable after backoff")
	}
}

func TestDispatchRetriesIdempotentOperation(t *testing.T) {
	reg := registry.New(testLogger())
	registerEndpoint(t, reg, "analyzer", "http://127.0.0.1:1", registry.RegisterOptions{
		IdempotentOps: []string{"analyze"},
	})

	st := &fakeAnalysisStore{}
	d := newTestDispatcher(reg, st, nil, nil, Config{MaxRetries: 2})

	caller := &fakeCaller{fn: func(attempt int) (map[string]any, []byte, error) {
		if attempt < 3 {
			return nil, nil, &callError{message: "HTTP 503", retryable: true}
		}
		return map[string]any{"ok": true}, []byte(`{"ok":true}`), nil
	}}
	d.SetCaller(caller)

	res, err := d.Dispatch(context.Background(), invocation())
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Status != domain.AnalysisStatusCompleted {
		t.Fatalf("expected completed after retries, got %s (%s)", res.Status, res.Error)
	}
	if caller.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", caller.calls)
	}
}

func TestDispatchNoRetryForNonIdempotentOperation(t *testing.T) {
	reg := registry.New(testLogger())
	registerEndpoint(t, reg, "analyzer", "http://127.0.0.1:1", registry.RegisterOptions{})

	st := &fakeAnalysisStore{}
	d := newTestDispatcher(reg, st, nil, nil, Config{MaxRetries: 2})

	caller := &fakeCaller{fn: func(int) (map[string]any, []byte, error) {
		return nil, nil, &callError{message: "HTTP 503", retryable: true}
	}}
	d.SetCaller(caller)

	res, err := d.Dispatch(context.Background(), invocation())
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Status != domain.AnalysisStatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if caller.calls != 1 {
		t.Errorf("operation not declared idempotent must not be retried, got %d attempts", caller.calls)
	}
	if res.ErrorKind != ErrorKindBackendCallFailed {
		t.Errorf("expected backend_call_failed, got %s", res.ErrorKind)
	}
	if !res.Retryable {
		t.Error("5xx failure should be reported retryable to the caller")
	}
}

func TestDispatchNoRetryForNonRetryableError(t *testing.T) {
	reg := registry.New(testLogger())
	registerEndpoint(t, reg, "analyzer", "http://127.0.0.1:1", registry.RegisterOptions{
		IdempotentOps: []string{"analyze"},
	})

	d := newTestDispatcher(reg, &fakeAnalysisStore{}, nil, nil, Config{MaxRetries: 2})

	caller := &fakeCaller{fn: func(int) (map[string]any, []byte, error) {
		return nil, nil, &callError{message: "HTTP 400: bad request", retryable: false}
	}}
	d.SetCaller(caller)

	res, err := d.Dispatch(context.Background(), invocation())
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if caller.calls != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", caller.calls)
	}
	if res.Retryable {
		t.Error("4xx failure must not be reported retryable")
	}
}

func TestDispatchUnauditedOnPersistenceFailure(t *testing.T) {
	reg := registry.New(testLogger())
	registerEndpoint(t, reg, "analyzer", "http://127.0.0.1:1", registry.RegisterOptions{})

	// Все записи падают, бэкенд успешен: результат всё равно возвращается
	st := &fakeAnalysisStore{failCreates: 100, failUpdates: 100}
	enq := &fakeEnqueuer{}
	d := newTestDispatcher(reg, st, enq, nil, Config{ProcessorTypes: []string{"vector-index"}})

	caller := &fakeCaller{fn: func(int) (map[string]any, []byte, error) {
		return map[string]any{"ok": true}, []byte(`{"ok":true}`), nil
	}}
	d.SetCaller(caller)

	res, err := d.Dispatch(context.Background(), invocation())
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Status != domain.AnalysisStatusCompleted {
		t.Fatalf("expected completed, got %s", res.Status)
	}
	if !res.Unaudited {
		t.Error("expected Unaudited=true when persistence fails")
	}
	if res.Output["ok"] != true {
		t.Error("backend output must be returned even unaudited")
	}
	// Записи нет, значит нет и задач обогащения
	if len(enq.tasks) != 0 {
		t.Errorf("expected no processing tasks for unaudited dispatch, got %d", len(enq.tasks))
	}
}

func TestDispatchPersistenceRetrySucceeds(t *testing.T) {
	reg := registry.New(testLogger())
	registerEndpoint(t, reg, "analyzer", "http://127.0.0.1:1", registry.RegisterOptions{})

	// Первая попытка создания падает, ретрай с backoff успешен
	st := &fakeAnalysisStore{failCreates: 1}
	d := newTestDispatcher(reg, st, nil, nil, Config{})

	caller := &fakeCaller{fn: func(int) (map[string]any, []byte, error) {
		return map[string]any{}, []byte(`{}`), nil
	}}
	d.SetCaller(caller)

	res, err := d.Dispatch(context.Background(), invocation())
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Unaudited {
		t.Error("expected audited dispatch after successful retry")
	}
	if len(st.created) != 1 {
		t.Errorf("expected one created record, got %d", len(st.created))
	}
}

func TestDispatchCapturesConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"answer":"ok","thread_id":"thread-42","assistant_id":"asst-7"}`))
	}))
	defer srv.Close()

	reg := registry.New(testLogger())
	registerEndpoint(t, reg, "analyzer", srv.URL, registry.RegisterOptions{})

	st := &fakeAnalysisStore{}
	capt := &fakeCapturer{}
	d := newTestDispatcher(reg, st, nil, capt, Config{})

	res, err := d.Dispatch(context.Background(), invocation())
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if res.Status != domain.AnalysisStatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", res.Status, res.Error)
	}

	if len(capt.captures) != 1 {
		t.Fatalf("expected one conversation capture, got %d", len(capt.captures))
	}
	got := capt.captures[0]
	if got.processInstanceID != "proc-1" || got.threadID != "thread-42" || got.assistantID != "asst-7" {
		t.Errorf("unexpected capture: %+v", got)
	}

	// thread_id попадает и на завершённую запись
	if st.updates[len(st.updates)-1].upd.ThreadID != "thread-42" {
		t.Error("expected thread_id on the completed status update")
	}
}

func TestDispatchValidation(t *testing.T) {
	d := newTestDispatcher(registry.New(testLogger()), &fakeAnalysisStore{}, nil, nil, Config{})

	bad := invocation()
	bad.ServiceName = ""
	if _, err := d.Dispatch(context.Background(), bad); !errors.Is(err, ErrInvalidInvocation) {
		t.Errorf("expected ErrInvalidInvocation, got %v", err)
	}
}

func TestExtractorWellKnownFields(t *testing.T) {
	e := WellKnownFieldsExtractor{}

	thread, assistant := e.Extract(map[string]any{"thread_id": "t-1", "assistant_id": "a-1", "other": 5})
	if thread != "t-1" || assistant != "a-1" {
		t.Errorf("unexpected extraction: %q %q", thread, assistant)
	}

	// Отсутствующие и нестроковые поля дают пустые строки
	thread, assistant = e.Extract(map[string]any{"thread_id": 42})
	if thread != "" || assistant != "" {
		t.Errorf("expected empty extraction, got %q %q", thread, assistant)
	}

	thread, assistant = e.Extract(nil)
	if thread != "" || assistant != "" {
		t.Errorf("expected empty extraction from nil, got %q %q", thread, assistant)
	}
}
