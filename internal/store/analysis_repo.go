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

// AnalysisRepo — репозиторий для работы с analysis records.
//
// Запись разнесена по двум таблицам: analysis_metadata (идентификаторы,
// статус, времена) и analysis_data (payload'ы). Create пишет обе таблицы
// в одной транзакции — читатели видят либо запись целиком, либо ничего.
type AnalysisRepo struct {
	pool *pgxpool.Pool
}

// NewAnalysisRepo создаёт новый AnalysisRepo.
func NewAnalysisRepo(pool *pgxpool.Pool) *AnalysisRepo {
	return &AnalysisRepo{pool: pool}
}

// Create создаёт новую запись (metadata + data атомарно).
func (r *AnalysisRepo) Create(ctx context.Context, rec *domain.AnalysisRecord) error {
	inputJSON, err := json.Marshal(rec.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	outputJSON, err := json.Marshal(rec.Output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO analysis_metadata (id, process_instance_id, thread_id, session_id,
		       task_name, service_name, operation, status, error, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		rec.ID,
		rec.ProcessInstanceID,
		nullString(rec.ThreadID),
		nullString(rec.SessionID),
		rec.TaskName,
		rec.ServiceName,
		rec.Operation,
		rec.Status,
		nullString(rec.Error),
		rec.Tags,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis metadata: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO analysis_data (analysis_id, input, output, raw_response)
		VALUES ($1, $2, $3, $4)
	`,
		rec.ID,
		inputJSON,
		outputJSON,
		rec.RawResponse,
	)
	if err != nil {
		return fmt.Errorf("insert analysis data: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpdateStatus переводит запись в новый статус и обновляет payload'ы.
//
// Переход проверяется на уровне SQL: UPDATE срабатывает только если
// текущий статус входит в допустимые предыдущие для нового. Обратный
// переход возвращает ErrInvalidTransition, отсутствующая запись — ErrNotFound.
func (r *AnalysisRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AnalysisStatus, upd domain.StatusUpdate) error {
	prev := status.PreviousStatuses()
	if len(prev) == 0 {
		return fmt.Errorf("%w: no status may transition to %s", ErrInvalidTransition, status)
	}
	prevStrs := make([]string, len(prev))
	for i, s := range prev {
		prevStrs[i] = string(s)
	}

	outputJSON, err := json.Marshal(upd.Output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	result, err := tx.Exec(ctx, `
		UPDATE analysis_metadata
		SET status = $2,
		    thread_id = COALESCE($3, thread_id),
		    error = COALESCE($4, error),
		    updated_at = $5
		WHERE id = $1 AND status = ANY($6)
	`,
		id,
		status,
		nullString(upd.ThreadID),
		nullString(upd.Error),
		now,
		prevStrs,
	)
	if err != nil {
		return fmt.Errorf("update analysis status: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Либо записи нет, либо переход недопустим — различаем
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM analysis_metadata WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("check analysis status: %w", err)
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	if upd.Output != nil || upd.RawResponse != nil {
		_, err = tx.Exec(ctx, `
			UPDATE analysis_data
			SET output = COALESCE($2, output),
			    raw_response = COALESCE($3, raw_response)
			WHERE analysis_id = $1
		`,
			id,
			outputJSONOrNil(upd.Output, outputJSON),
			upd.RawResponse,
		)
		if err != nil {
			return fmt.Errorf("update analysis data: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// outputJSONOrNil возвращает nil для отсутствующего output (COALESCE в SQL).
func outputJSONOrNil(output map[string]any, marshaled []byte) []byte {
	if output == nil {
		return nil
	}
	return marshaled
}

const analysisColumns = `
	m.id, m.process_instance_id, m.thread_id, m.session_id,
	m.task_name, m.service_name, m.operation, m.status, m.error, m.tags,
	m.created_at, m.updated_at,
	d.input, d.output, d.raw_response
`

// Get возвращает запись по ID.
func (r *AnalysisRepo) Get(ctx context.Context, id uuid.UUID) (*domain.AnalysisRecord, error) {
	query := `
		SELECT ` + analysisColumns + `
		FROM analysis_metadata m
		JOIN analysis_data d ON d.analysis_id = m.id
		WHERE m.id = $1
	`
	return scanAnalysis(r.pool.QueryRow(ctx, query, id))
}

// ListByProcess возвращает записи экземпляра процесса, новые первыми.
func (r *AnalysisRepo) ListByProcess(ctx context.Context, processInstanceID string) ([]domain.AnalysisRecord, error) {
	query := `
		SELECT ` + analysisColumns + `
		FROM analysis_metadata m
		JOIN analysis_data d ON d.analysis_id = m.id
		WHERE m.process_instance_id = $1
		ORDER BY m.created_at DESC
	`
	return r.list(ctx, query, processInstanceID)
}

// ListByThread возвращает записи conversation thread, новые первыми.
func (r *AnalysisRepo) ListByThread(ctx context.Context, threadID string) ([]domain.AnalysisRecord, error) {
	query := `
		SELECT ` + analysisColumns + `
		FROM analysis_metadata m
		JOIN analysis_data d ON d.analysis_id = m.id
		WHERE m.thread_id = $1
		ORDER BY m.created_at DESC
	`
	return r.list(ctx, query, threadID)
}

func (r *AnalysisRepo) list(ctx context.Context, query string, arg any) ([]domain.AnalysisRecord, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var records []domain.AnalysisRecord
	for rows.Next() {
		rec, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func scanAnalysis(row pgx.Row) (*domain.AnalysisRecord, error) {
	var rec domain.AnalysisRecord
	var threadID, sessionID, recError *string
	var inputJSON, outputJSON []byte

	err := row.Scan(
		&rec.ID,
		&rec.ProcessInstanceID,
		&threadID,
		&sessionID,
		&rec.TaskName,
		&rec.ServiceName,
		&rec.Operation,
		&rec.Status,
		&recError,
		&rec.Tags,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&inputJSON,
		&outputJSON,
		&rec.RawResponse,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan analysis: %w", err)
	}

	if threadID != nil {
		rec.ThreadID = *threadID
	}
	if sessionID != nil {
		rec.SessionID = *sessionID
	}
	if recError != nil {
		rec.Error = *recError
	}
	if inputJSON != nil {
		if err := json.Unmarshal(inputJSON, &rec.Input); err != nil {
			return nil, fmt.Errorf("unmarshal input: %w", err)
		}
	}
	if outputJSON != nil {
		if err := json.Unmarshal(outputJSON, &rec.Output); err != nil {
			return nil, fmt.Errorf("unmarshal output: %w", err)
		}
	}

	return &rec, nil
}
