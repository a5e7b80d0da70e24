package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// AnalysisResponse — запись анализа из API.
type AnalysisResponse struct {
	ID                string         `json:"id"`
	ProcessInstanceID string         `json:"process_instance_id"`
	ThreadID          string         `json:"thread_id,omitempty"`
	SessionID         string         `json:"session_id,omitempty"`
	TaskName          string         `json:"task_name"`
	ServiceName       string         `json:"service_name"`
	Operation         string         `json:"operation"`
	Status            string         `json:"status"`
	Input             map[string]any `json:"input,omitempty"`
	Output            map[string]any `json:"output,omitempty"`
	Error             string         `json:"error,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
	CreatedAt         string         `json:"created_at"`
	UpdatedAt         string         `json:"updated_at"`
}

// ServiceStatusResponse — снимок регистрации из API.
type ServiceStatusResponse struct {
	Service  string `json:"service"`
	Handle   string `json:"handle"`
	Endpoint struct {
		Address string   `json:"address"`
		Port    int      `json:"port"`
		Tags    []string `json:"tags,omitempty"`
	} `json:"endpoint"`
	Healthy bool `json:"healthy"`
}

// RegisterServiceResponse — registration handle из API.
type RegisterServiceResponse struct {
	Handle  string `json:"handle"`
	Service string `json:"service"`
}

// ConversationResponse — контекст диалога из API.
type ConversationResponse struct {
	ProcessInstanceID string `json:"process_instance_id"`
	ThreadID          string `json:"thread_id"`
	AssistantID       string `json:"assistant_id,omitempty"`
	CapturedAt        string `json:"captured_at"`
	UpdatedAt         string `json:"updated_at"`
}

// RunProcessingResponse — результат ручного запуска обработки.
type RunProcessingResponse struct {
	Processed int `json:"processed"`
}

// --- Request types ---

// RegisterServiceRequest — регистрация endpoint'а.
type RegisterServiceRequest struct {
	Service       string   `json:"service"`
	Address       string   `json:"address"`
	Port          int      `json:"port"`
	Tags          []string `json:"tags,omitempty"`
	HealthPath    string   `json:"health_path,omitempty"`
	IdempotentOps []string `json:"idempotent_ops,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Conductor API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Analyses ---

// GetAnalysis возвращает запись анализа по ID.
func (c *Client) GetAnalysis(id string) (*AnalysisResponse, error) {
	var rec AnalysisResponse
	err := c.get("/api/v1/analyses/"+id, &rec)
	return &rec, err
}

// ListAnalysesByProcess возвращает записи процесса.
func (c *Client) ListAnalysesByProcess(processID string) ([]AnalysisResponse, error) {
	params := url.Values{}
	params.Set("process_id", processID)

	var records []AnalysisResponse
	err := c.list("/api/v1/analyses", params, &records)
	return records, err
}

// ListAnalysesByThread возвращает записи thread'а.
func (c *Client) ListAnalysesByThread(threadID string) ([]AnalysisResponse, error) {
	params := url.Values{}
	params.Set("thread_id", threadID)

	var records []AnalysisResponse
	err := c.list("/api/v1/analyses", params, &records)
	return records, err
}

// --- Services ---

// ListServices возвращает снимок всех регистраций.
func (c *Client) ListServices() ([]ServiceStatusResponse, error) {
	var services []ServiceStatusResponse
	err := c.list("/api/v1/services", nil, &services)
	return services, err
}

// RegisterService регистрирует endpoint сервиса.
func (c *Client) RegisterService(req RegisterServiceRequest) (*RegisterServiceResponse, error) {
	var registered RegisterServiceResponse
	err := c.post("/api/v1/services/register", req, &registered)
	return &registered, err
}

// DeregisterService снимает регистрацию endpoint'а.
func (c *Client) DeregisterService(service, handle string) error {
	return c.delete("/api/v1/services/" + service + "/" + handle)
}

// --- Conversations ---

// GetConversation возвращает контекст диалога процесса.
func (c *Client) GetConversation(processID string) (*ConversationResponse, error) {
	var cc ConversationResponse
	err := c.get("/api/v1/conversations/"+processID, &cc)
	return &cc, err
}

// --- Processing ---

// RunProcessing вручную запускает обработку pending задач.
func (c *Client) RunProcessing(batchSize int) (*RunProcessingResponse, error) {
	body := map[string]int{"batch_size": batchSize}
	var result RunProcessingResponse
	err := c.post("/api/v1/processing/run", body, &result)
	return &result, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
