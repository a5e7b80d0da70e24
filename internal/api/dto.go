package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/domain"
)

// Task DTOs

// ExecuteTaskRequest — запрос на выполнение service task.
type ExecuteTaskRequest struct {
	ProcessInstanceID string         `json:"process_instance_id"`
	TaskName          string         `json:"task_name"`
	ServiceName       string         `json:"service_name"`
	Operation         string         `json:"operation"`
	Payload           map[string]any `json:"payload,omitempty"`
	SessionID         string         `json:"session_id,omitempty"`
	Tags              []string       `json:"tags,omitempty"`
}

// ToInvocation конвертирует запрос в domain.TaskInvocation.
func (r ExecuteTaskRequest) ToInvocation() domain.TaskInvocation {
	return domain.TaskInvocation{
		ProcessInstanceID: r.ProcessInstanceID,
		TaskName:          r.TaskName,
		ServiceName:       r.ServiceName,
		Operation:         r.Operation,
		Payload:           r.Payload,
		SessionID:         r.SessionID,
		Tags:              r.Tags,
	}
}

// Analysis DTOs

// AnalysisResponse — ответ с записью анализа.
type AnalysisResponse struct {
	ID                uuid.UUID             `json:"id"`
	ProcessInstanceID string                `json:"process_instance_id"`
	ThreadID          string                `json:"thread_id,omitempty"`
	SessionID         string                `json:"session_id,omitempty"`
	TaskName          string                `json:"task_name"`
	ServiceName       string                `json:"service_name"`
	Operation         string                `json:"operation"`
	Status            domain.AnalysisStatus `json:"status"`
	Input             map[string]any        `json:"input,omitempty"`
	Output            map[string]any        `json:"output,omitempty"`
	Error             string                `json:"error,omitempty"`
	Tags              []string              `json:"tags,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// AnalysisFromDomain конвертирует domain.AnalysisRecord в AnalysisResponse.
func AnalysisFromDomain(rec domain.AnalysisRecord) AnalysisResponse {
	return AnalysisResponse{
		ID:                rec.ID,
		ProcessInstanceID: rec.ProcessInstanceID,
		ThreadID:          rec.ThreadID,
		SessionID:         rec.SessionID,
		TaskName:          rec.TaskName,
		ServiceName:       rec.ServiceName,
		Operation:         rec.Operation,
		Status:            rec.Status,
		Input:             rec.Input,
		Output:            rec.Output,
		Error:             rec.Error,
		Tags:              rec.Tags,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}

// Service DTOs

// RegisterServiceRequest — запрос на регистрацию endpoint'а.
type RegisterServiceRequest struct {
	Service       string   `json:"service"`
	Address       string   `json:"address"`
	Port          int      `json:"port"`
	Tags          []string `json:"tags,omitempty"`
	HealthPath    string   `json:"health_path,omitempty"`
	IdempotentOps []string `json:"idempotent_ops,omitempty"`
}

// RegisterServiceResponse — ответ с registration handle.
type RegisterServiceResponse struct {
	Handle  uuid.UUID `json:"handle"`
	Service string    `json:"service"`
}

// Conversation DTOs

// ConversationResponse — ответ с контекстом диалога.
type ConversationResponse struct {
	ProcessInstanceID string    `json:"process_instance_id"`
	ThreadID          string    `json:"thread_id"`
	AssistantID       string    `json:"assistant_id,omitempty"`
	CapturedAt        time.Time `json:"captured_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// ConversationFromDomain конвертирует domain.ConversationContext.
func ConversationFromDomain(cc domain.ConversationContext) ConversationResponse {
	return ConversationResponse{
		ProcessInstanceID: cc.ProcessInstanceID,
		ThreadID:          cc.ThreadID,
		AssistantID:       cc.AssistantID,
		CapturedAt:        cc.CapturedAt,
		UpdatedAt:         cc.UpdatedAt,
	}
}

// Processing DTOs

// RunProcessingRequest — запрос на ручной запуск обработки.
type RunProcessingRequest struct {
	BatchSize int `json:"batch_size,omitempty"`
}

// RunProcessingResponse — результат ручного запуска.
type RunProcessingResponse struct {
	Processed int `json:"processed"`
}
