package domain

// TaskInvocation — запрос на выполнение одного service task из workflow.
//
// Создаётся workflow-движком при диспатче задачи, неизменяем после создания.
// На него ссылается AnalysisRecord, который порождает dispatch.
type TaskInvocation struct {
	// ProcessInstanceID — идентификатор экземпляра процесса в workflow-движке.
	ProcessInstanceID string `json:"process_instance_id"`

	// TaskName — имя задачи в workflow (например "generate-analysis").
	TaskName string `json:"task_name"`

	// ServiceName — логическое имя backend-сервиса (резолвится через Registry).
	ServiceName string `json:"service_name"`

	// Operation — операция сервиса (часть пути при вызове).
	Operation string `json:"operation"`

	// Payload — входные данные для backend-сервиса.
	// Orchestrator не интерпретирует payload, кроме известных optional-полей.
	Payload map[string]any `json:"payload,omitempty"`

	// SessionID — корреляционный идентификатор сессии (опционально).
	SessionID string `json:"session_id,omitempty"`

	// Tags — произвольные метки, переносятся в AnalysisRecord как есть.
	Tags []string `json:"tags,omitempty"`
}

// DispatchResult — нормализованный результат dispatch.
//
// Возвращается вызывающей стороне (workflow-движку) синхронно.
// AnalysisID всегда заполнен — запись создаётся до вызова backend.
type DispatchResult struct {
	// AnalysisID — идентификатор созданного AnalysisRecord.
	AnalysisID string `json:"analysis_id"`

	// Status — финальный статус: completed или failed.
	Status AnalysisStatus `json:"status"`

	// Output — ответ backend-сервиса (при успехе).
	Output map[string]any `json:"output,omitempty"`

	// Error — текст ошибки (при неудаче).
	Error string `json:"error,omitempty"`

	// ErrorKind — машиночитаемый вид ошибки (service_unknown,
	// service_unavailable, backend_call_failed).
	ErrorKind string `json:"error_kind,omitempty"`

	// Retryable — может ли вызывающая сторона повторить запрос после backoff.
	Retryable bool `json:"retryable,omitempty"`

	// Unaudited — true, если запись не удалось сохранить в Capture Store
	// даже после retry. Результат backend при этом возвращается, но
	// операторам нужна сверка.
	Unaudited bool `json:"unaudited,omitempty"`
}
