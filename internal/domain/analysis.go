package domain

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisRecord — долговременный результат одного TaskInvocation.
//
// Запись создаётся Dispatcher'ом до вызова backend-сервиса и обновляется
// только через Capture Store (статусные переходы проверяются там).
// Никогда не удаляется по пути dispatch — это audit trail системы.
type AnalysisRecord struct {
	// ID — глобально уникальный идентификатор анализа.
	// Генерируется Dispatcher'ом до вызова backend, неизменяем.
	ID uuid.UUID `json:"id"`

	// ProcessInstanceID — экземпляр процесса, породивший задачу.
	ProcessInstanceID string `json:"process_instance_id"`

	// ThreadID — внешний идентификатор conversation thread (опционально).
	// Извлекается из ответа backend по контракту известных полей.
	ThreadID string `json:"thread_id,omitempty"`

	// SessionID — корреляционный идентификатор сессии.
	SessionID string `json:"session_id,omitempty"`

	// TaskName — имя задачи из workflow.
	TaskName string `json:"task_name"`

	// ServiceName — логическое имя сервиса, выполнившего задачу.
	ServiceName string `json:"service_name"`

	// Operation — вызванная операция сервиса.
	Operation string `json:"operation"`

	// Status — текущий статус записи.
	Status AnalysisStatus `json:"status"`

	// Input — входной payload задачи.
	Input map[string]any `json:"input,omitempty"`

	// Output — нормализованный ответ backend-сервиса.
	Output map[string]any `json:"output,omitempty"`

	// RawResponse — сырое тело ответа backend (для разбора инцидентов).
	RawResponse []byte `json:"raw_response,omitempty"`

	// Error — текст ошибки при статусе failed.
	Error string `json:"error,omitempty"`

	// Tags — произвольные метки для операционных выборок.
	Tags []string `json:"tags,omitempty"`

	// CreatedAt / UpdatedAt — времена создания и последнего изменения.
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewAnalysisRecord создаёт запись в статусе created для инвокации.
func NewAnalysisRecord(inv TaskInvocation) *AnalysisRecord {
	now := time.Now().UTC()
	return &AnalysisRecord{
		ID:                uuid.New(),
		ProcessInstanceID: inv.ProcessInstanceID,
		SessionID:         inv.SessionID,
		TaskName:          inv.TaskName,
		ServiceName:       inv.ServiceName,
		Operation:         inv.Operation,
		Status:            AnalysisStatusCreated,
		Input:             inv.Payload,
		Tags:              inv.Tags,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// MarkProcessing переводит запись в статус processing.
func (r *AnalysisRecord) MarkProcessing() {
	r.Status = AnalysisStatusProcessing
	r.UpdatedAt = time.Now().UTC()
}

// MarkCompleted переводит запись в статус completed с результатом.
func (r *AnalysisRecord) MarkCompleted(output map[string]any, raw []byte) {
	r.Status = AnalysisStatusCompleted
	r.Output = output
	r.RawResponse = raw
	r.UpdatedAt = time.Now().UTC()
}

// MarkFailed переводит запись в статус failed с ошибкой.
func (r *AnalysisRecord) MarkFailed(errMsg string, raw []byte) {
	r.Status = AnalysisStatusFailed
	r.Error = errMsg
	r.RawResponse = raw
	r.UpdatedAt = time.Now().UTC()
}

// IsFinished возвращает true, если запись в терминальном статусе.
func (r *AnalysisRecord) IsFinished() bool {
	return r.Status.IsTerminal()
}

// StatusUpdate — поля, обновляемые вместе со статусным переходом.
// Пустые поля не затирают сохранённые значения.
type StatusUpdate struct {
	ThreadID    string
	Output      map[string]any
	RawResponse []byte
	Error       string
}
