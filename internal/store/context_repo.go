package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conductor/internal/domain"
)

// ContextRepo — репозиторий для conversation contexts.
type ContextRepo struct {
	pool *pgxpool.Pool
}

// NewContextRepo создаёт новый ContextRepo.
func NewContextRepo(pool *pgxpool.Pool) *ContextRepo {
	return &ContextRepo{pool: pool}
}

// Upsert сохраняет контекст по ключу process instance id.
// Повторный захват перезаписывает thread/assistant, captured_at сохраняется.
func (r *ContextRepo) Upsert(ctx context.Context, cc *domain.ConversationContext) error {
	query := `
		INSERT INTO conversation_contexts (process_instance_id, thread_id, assistant_id, captured_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (process_instance_id) DO UPDATE
		SET thread_id = EXCLUDED.thread_id,
		    assistant_id = EXCLUDED.assistant_id,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		cc.ProcessInstanceID,
		cc.ThreadID,
		nullString(cc.AssistantID),
		cc.CapturedAt,
		cc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert conversation context: %w", err)
	}
	return nil
}

// Get возвращает контекст по process instance id.
func (r *ContextRepo) Get(ctx context.Context, processInstanceID string) (*domain.ConversationContext, error) {
	query := `
		SELECT process_instance_id, thread_id, assistant_id, captured_at, updated_at
		FROM conversation_contexts
		WHERE process_instance_id = $1
	`

	var cc domain.ConversationContext
	var assistantID *string
	err := r.pool.QueryRow(ctx, query, processInstanceID).Scan(
		&cc.ProcessInstanceID,
		&cc.ThreadID,
		&assistantID,
		&cc.CapturedAt,
		&cc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation context: %w", err)
	}

	if assistantID != nil {
		cc.AssistantID = *assistantID
	}
	return &cc, nil
}
