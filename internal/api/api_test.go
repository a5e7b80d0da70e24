package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/dispatcher"
	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/registry"
	"github.com/shaiso/Conductor/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeDispatcher возвращает заранее заданный результат.
type fakeDispatcher struct {
	result *domain.DispatchResult
	err    error
	gotInv *domain.TaskInvocation
}

func (f *fakeDispatcher) Dispatch(_ context.Context, inv domain.TaskInvocation) (*domain.DispatchResult, error) {
	f.gotInv = &inv
	return f.result, f.err
}

// fakeAnalyses отдаёт записи из map.
type fakeAnalyses struct {
	records map[uuid.UUID]*domain.AnalysisRecord
}

func (f *fakeAnalyses) Get(_ context.Context, id uuid.UUID) (*domain.AnalysisRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec, nil
}

func (f *fakeAnalyses) ListByProcess(_ context.Context, processInstanceID string) ([]domain.AnalysisRecord, error) {
	var out []domain.AnalysisRecord
	for _, rec := range f.records {
		if rec.ProcessInstanceID == processInstanceID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeAnalyses) ListByThread(_ context.Context, threadID string) ([]domain.AnalysisRecord, error) {
	var out []domain.AnalysisRecord
	for _, rec := range f.records {
		if rec.ThreadID == threadID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// fakeConversations отдаёт единственный контекст.
type fakeConversations struct {
	cc *domain.ConversationContext
}

func (f *fakeConversations) Get(_ context.Context, processInstanceID string) (*domain.ConversationContext, error) {
	if f.cc == nil || f.cc.ProcessInstanceID != processInstanceID {
		return nil, store.ErrNotFound
	}
	return f.cc, nil
}

// fakePending считает ручные запуски обработки.
type fakePending struct {
	processed int
	gotBatch  int
}

func (f *fakePending) ProcessPending(_ context.Context, batchSize int) (int, error) {
	f.gotBatch = batchSize
	return f.processed, nil
}

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	mux := http.NewServeMux()
	NewHandler(cfg).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func decodeData(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if err := json.Unmarshal(wrapper.Data, out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestExecuteTask(t *testing.T) {
	analysisID := uuid.New()
	fd := &fakeDispatcher{result: &domain.DispatchResult{
		AnalysisID: analysisID.String(),
		Status:     domain.AnalysisStatusCompleted,
		Output:     map[string]any{"x": float64(1)},
	}}
	srv := newTestServer(t, Config{Dispatcher: fd})

	body := `{"process_instance_id":"proc-1","task_name":"t","service_name":"analyzer","operation":"analyze","payload":{"x":1}}`
	resp, err := http.Post(srv.URL+"/api/v1/tasks/execute", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result domain.DispatchResult
	decodeData(t, resp, &result)
	if result.AnalysisID != analysisID.String() {
		t.Errorf("unexpected analysis id: %s", result.AnalysisID)
	}
	if result.Status != domain.AnalysisStatusCompleted {
		t.Errorf("expected completed, got %s", result.Status)
	}

	if fd.gotInv == nil || fd.gotInv.ServiceName != "analyzer" {
		t.Error("dispatcher did not receive the invocation")
	}
}

func TestExecuteTaskInvalidInvocation(t *testing.T) {
	fd := &fakeDispatcher{err: dispatcher.ErrInvalidInvocation}
	srv := newTestServer(t, Config{Dispatcher: fd})

	resp, err := http.Post(srv.URL+"/api/v1/tasks/execute", "application/json", bytes.NewBufferString(`{}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetAnalysis(t *testing.T) {
	rec := domain.NewAnalysisRecord(domain.TaskInvocation{
		ProcessInstanceID: "proc-1",
		TaskName:          "t",
		ServiceName:       "analyzer",
		Operation:         "analyze",
	})
	fa := &fakeAnalyses{records: map[uuid.UUID]*domain.AnalysisRecord{rec.ID: rec}}
	srv := newTestServer(t, Config{Analyses: fa})

	resp, err := http.Get(srv.URL + "/api/v1/analyses/" + rec.ID.String())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got AnalysisResponse
	decodeData(t, resp, &got)
	if got.ID != rec.ID {
		t.Errorf("unexpected record: %+v", got)
	}

	// неизвестный id
	resp2, err := http.Get(srv.URL + "/api/v1/analyses/" + uuid.NewString())
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp2.StatusCode)
	}
}

func TestListAnalysesRequiresFilter(t *testing.T) {
	srv := newTestServer(t, Config{Analyses: &fakeAnalyses{}})

	resp, err := http.Get(srv.URL + "/api/v1/analyses")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without filter, got %d", resp.StatusCode)
	}
}

func TestListAnalysesByProcess(t *testing.T) {
	rec := domain.NewAnalysisRecord(domain.TaskInvocation{
		ProcessInstanceID: "proc-1",
		TaskName:          "t",
		ServiceName:       "analyzer",
		Operation:         "analyze",
	})
	fa := &fakeAnalyses{records: map[uuid.UUID]*domain.AnalysisRecord{rec.ID: rec}}
	srv := newTestServer(t, Config{Analyses: fa})

	resp, err := http.Get(srv.URL + "/api/v1/analyses?process_id=proc-1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var list struct {
		Data  []AnalysisResponse `json:"data"`
		Total int                `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Total != 1 || len(list.Data) != 1 {
		t.Errorf("expected one record, got %d", list.Total)
	}
}

func TestServiceRegistrationLifecycle(t *testing.T) {
	reg := registry.New(testLogger())
	srv := newTestServer(t, Config{Registry: reg})

	// Регистрация
	body := `{"service":"analyzer","address":"10.0.0.1","port":8080,"idempotent_ops":["analyze"]}`
	resp, err := http.Post(srv.URL+"/api/v1/services/register", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var registered RegisterServiceResponse
	decodeData(t, resp, &registered)
	if registered.Service != "analyzer" || registered.Handle == uuid.Nil {
		t.Fatalf("unexpected registration response: %+v", registered)
	}

	// Список показывает endpoint
	resp2, err := http.Get(srv.URL + "/api/v1/services")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	defer resp2.Body.Close()
	var list struct {
		Data []registry.ServiceStatus `json:"data"`
	}
	if err := json.NewDecoder(resp2.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].Endpoint.Address != "10.0.0.1" {
		t.Fatalf("unexpected services list: %+v", list.Data)
	}

	// Дерегистрация
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/services/analyzer/"+registered.Handle.String(), nil)
	resp3, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("deregister failed: %v", err)
	}
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp3.StatusCode)
	}

	// Повторная дерегистрация того же handle
	resp4, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("second deregister failed: %v", err)
	}
	defer resp4.Body.Close()
	if resp4.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for repeated deregister, got %d", resp4.StatusCode)
	}
}

func TestRegisterServiceInvalidEndpoint(t *testing.T) {
	srv := newTestServer(t, Config{Registry: registry.New(testLogger())})

	resp, err := http.Post(srv.URL+"/api/v1/services/register", "application/json",
		bytes.NewBufferString(`{"service":"analyzer","address":"","port":0}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetConversation(t *testing.T) {
	fc := &fakeConversations{cc: &domain.ConversationContext{
		ProcessInstanceID: "proc-1",
		ThreadID:          "thread-42",
	}}
	srv := newTestServer(t, Config{Conversations: fc})

	resp, err := http.Get(srv.URL + "/api/v1/conversations/proc-1")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var got ConversationResponse
	decodeData(t, resp, &got)
	if got.ThreadID != "thread-42" {
		t.Errorf("unexpected conversation: %+v", got)
	}

	resp2, err := http.Get(srv.URL + "/api/v1/conversations/missing")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp2.StatusCode)
	}
}

func TestRunProcessing(t *testing.T) {
	fp := &fakePending{processed: 7}
	srv := newTestServer(t, Config{Pending: fp})

	resp, err := http.Post(srv.URL+"/api/v1/processing/run", "application/json",
		bytes.NewBufferString(`{"batch_size":10}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var got RunProcessingResponse
	decodeData(t, resp, &got)
	if got.Processed != 7 {
		t.Errorf("expected 7 processed, got %d", got.Processed)
	}
	if fp.gotBatch != 10 {
		t.Errorf("expected batch size 10, got %d", fp.gotBatch)
	}
}

func TestRunProcessingEmptyBody(t *testing.T) {
	fp := &fakePending{}
	srv := newTestServer(t, Config{Pending: fp})

	resp, err := http.Post(srv.URL+"/api/v1/processing/run", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for empty body, got %d", resp.StatusCode)
	}
	if fp.gotBatch != defaultRunBatchSize {
		t.Errorf("expected default batch size, got %d", fp.gotBatch)
	}
}
