package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conductor/internal/domain"
)

// ProcessingRepo — репозиторий для работы с processing tasks.
type ProcessingRepo struct {
	pool *pgxpool.Pool
}

// NewProcessingRepo создаёт новый ProcessingRepo.
func NewProcessingRepo(pool *pgxpool.Pool) *ProcessingRepo {
	return &ProcessingRepo{pool: pool}
}

// Enqueue ставит задачу обогащения в очередь.
//
// Повторный enqueue той же пары (analysis, processor) при живой задаче
// схлопывается в no-op по частичному уникальному индексу — дубликаты
// не плодятся при повторной доставке события.
func (r *ProcessingRepo) Enqueue(ctx context.Context, task *domain.ProcessingTask) error {
	metadataJSON, err := json.Marshal(task.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		INSERT INTO processing_tasks (id, analysis_id, processor_type, status, attempt, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (analysis_id, processor_type) WHERE status IN ('pending', 'running')
		DO NOTHING
	`
	_, err = r.pool.Exec(ctx, query,
		task.ID,
		task.AnalysisID,
		task.ProcessorType,
		task.Status,
		task.Attempt,
		metadataJSON,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert processing task: %w", err)
	}
	return nil
}

const processingColumns = `
	id, analysis_id, processor_type, status, attempt, error, metadata,
	started_at, finished_at, created_at
`

// ListPending возвращает pending-задачи, старые первыми (FIFO очередь).
func (r *ProcessingRepo) ListPending(ctx context.Context, limit int) ([]domain.ProcessingTask, error) {
	query := `
		SELECT ` + processingColumns + `
		FROM processing_tasks
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`
	return r.list(ctx, query, limit)
}

// ListByAnalysis возвращает все задачи одной записи.
func (r *ProcessingRepo) ListByAnalysis(ctx context.Context, analysisID uuid.UUID) ([]domain.ProcessingTask, error) {
	query := `
		SELECT ` + processingColumns + `
		FROM processing_tasks
		WHERE analysis_id = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, analysisID)
}

// Update обновляет состояние задачи.
func (r *ProcessingRepo) Update(ctx context.Context, task *domain.ProcessingTask) error {
	metadataJSON, err := json.Marshal(task.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	query := `
		UPDATE processing_tasks
		SET status = $2, attempt = $3, error = $4, metadata = $5,
		    started_at = $6, finished_at = $7
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Status,
		task.Attempt,
		nullString(task.Error),
		metadataJSON,
		task.StartedAt,
		task.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update processing task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteTerminalBefore удаляет терминальные задачи старше cutoff.
// Используется retention-свипером; возвращает количество удалённых.
func (r *ProcessingRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM processing_tasks
		WHERE status IN ('completed', 'failed') AND finished_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete terminal processing tasks: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *ProcessingRepo) list(ctx context.Context, query string, arg any) ([]domain.ProcessingTask, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list processing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.ProcessingTask
	for rows.Next() {
		task, err := scanProcessingTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

func scanProcessingTask(row pgx.Row) (*domain.ProcessingTask, error) {
	var task domain.ProcessingTask
	var taskError *string
	var metadataJSON []byte

	err := row.Scan(
		&task.ID,
		&task.AnalysisID,
		&task.ProcessorType,
		&task.Status,
		&task.Attempt,
		&taskError,
		&metadataJSON,
		&task.StartedAt,
		&task.FinishedAt,
		&task.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan processing task: %w", err)
	}

	if taskError != nil {
		task.Error = *taskError
	}
	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &task.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &task, nil
}
