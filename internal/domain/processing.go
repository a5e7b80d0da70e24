package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingTask — единица отложенной работы над одним AnalysisRecord.
//
// Создаётся при постановке записи в очередь фонового обогащения.
// Для одной записи может существовать несколько ProcessingTask с разными
// типами процессоров; они обрабатываются независимо и не предполагают
// взаимного исключения над записью.
//
// Терминальные задачи удаляются retention-свипером по истечении срока хранения.
type ProcessingTask struct {
	// ID — уникальный идентификатор задачи.
	ID uuid.UUID `json:"id"`

	// AnalysisID — ссылка на обогащаемый AnalysisRecord.
	AnalysisID uuid.UUID `json:"analysis_id"`

	// ProcessorType — тип процессора: "vector-index", "graph-expand".
	ProcessorType string `json:"processor_type"`

	// Status — текущий статус задачи.
	Status ProcessingStatus `json:"status"`

	// Attempt — номер попытки (начиная с 1, увеличивается при запуске).
	Attempt int `json:"attempt"`

	// Error — текст ошибки при статусе failed.
	Error string `json:"error,omitempty"`

	// Metadata — произвольные данные процессора.
	Metadata map[string]any `json:"metadata,omitempty"`

	// StartedAt / FinishedAt — времена начала и завершения обработки.
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время постановки в очередь.
	CreatedAt time.Time `json:"created_at"`
}

// NewProcessingTask создаёт задачу обогащения в статусе pending.
func NewProcessingTask(analysisID uuid.UUID, processorType string) *ProcessingTask {
	return &ProcessingTask{
		ID:            uuid.New(),
		AnalysisID:    analysisID,
		ProcessorType: processorType,
		Status:        ProcessingStatusPending,
		CreatedAt:     time.Now().UTC(),
	}
}

// MarkRunning переводит задачу в статус running.
func (t *ProcessingTask) MarkRunning() {
	now := time.Now().UTC()
	t.Status = ProcessingStatusRunning
	t.StartedAt = &now
	t.Attempt++
}

// MarkCompleted переводит задачу в статус completed.
func (t *ProcessingTask) MarkCompleted() {
	now := time.Now().UTC()
	t.Status = ProcessingStatusCompleted
	t.FinishedAt = &now
	t.Error = ""
}

// MarkFailed переводит задачу в статус failed с ошибкой.
func (t *ProcessingTask) MarkFailed(errMsg string) {
	now := time.Now().UTC()
	t.Status = ProcessingStatusFailed
	t.FinishedAt = &now
	t.Error = errMsg
}

// Duration возвращает продолжительность обработки.
func (t *ProcessingTask) Duration() time.Duration {
	if t.StartedAt == nil || t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(*t.StartedAt)
}
