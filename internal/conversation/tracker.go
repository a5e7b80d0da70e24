package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Conductor/internal/domain"
)

// ContextRepository — интерфейс хранилища контекстов диалогов.
type ContextRepository interface {
	Upsert(ctx context.Context, cc *domain.ConversationContext) error
	Get(ctx context.Context, processInstanceID string) (*domain.ConversationContext, error)
}

// Tracker сопоставляет экземпляры процессов с диалогами бэкендов.
// Для каждого процесса хранится ровно один контекст; повторный захват
// с другим thread_id перезаписывает предыдущий (последний выигрывает).
type Tracker struct {
	repo   ContextRepository
	logger *slog.Logger
}

// NewTracker создаёт новый Tracker.
func NewTracker(repo ContextRepository, logger *slog.Logger) *Tracker {
	return &Tracker{
		repo:   repo,
		logger: logger,
	}
}

// Capture сохраняет связь процесса с диалогом.
// Пустой threadID игнорируется: захватывать нечего.
func (t *Tracker) Capture(ctx context.Context, processInstanceID, threadID, assistantID string) error {
	if threadID == "" {
		return nil
	}
	if processInstanceID == "" {
		return fmt.Errorf("process instance id is required")
	}

	existing, err := t.repo.Get(ctx, processInstanceID)
	if err == nil && existing.ThreadID != threadID {
		t.logger.Warn("conversation thread changed for process",
			"process_instance_id", processInstanceID,
			"old_thread_id", existing.ThreadID,
			"new_thread_id", threadID,
		)
	}

	now := time.Now()
	cc := &domain.ConversationContext{
		ProcessInstanceID: processInstanceID,
		ThreadID:          threadID,
		AssistantID:       assistantID,
		CapturedAt:        now,
		UpdatedAt:         now,
	}

	if err := t.repo.Upsert(ctx, cc); err != nil {
		return fmt.Errorf("upsert conversation context: %w", err)
	}

	t.logger.Debug("conversation context captured",
		"process_instance_id", processInstanceID,
		"thread_id", threadID,
	)

	return nil
}

// Get возвращает контекст диалога для процесса.
func (t *Tracker) Get(ctx context.Context, processInstanceID string) (*domain.ConversationContext, error) {
	return t.repo.Get(ctx, processInstanceID)
}
