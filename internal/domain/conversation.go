package domain

import "time"

// ConversationContext — привязка внешней stateful-conversation к процессу.
//
// Хранит стабильные идентификаторы треда стороннего сервиса (например,
// пары thread/assistant у LLM-провайдера), ключ — process instance id.
// Создаётся при первом захвате, обновляется при смене треда, не удаляется.
type ConversationContext struct {
	// ProcessInstanceID — экземпляр процесса, к которому привязан тред.
	ProcessInstanceID string `json:"process_instance_id"`

	// ThreadID — идентификатор треда во внешнем сервисе.
	// При ротации треда внутри процесса побеждает последний захваченный.
	ThreadID string `json:"thread_id"`

	// AssistantID — идентификатор assistant/agent во внешнем сервисе.
	AssistantID string `json:"assistant_id,omitempty"`

	// CapturedAt — время первого захвата.
	CapturedAt time.Time `json:"captured_at"`

	// UpdatedAt — время последнего обновления.
	UpdatedAt time.Time `json:"updated_at"`
}
