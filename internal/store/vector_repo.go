package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VectorEntry — одна запись поискового индекса.
type VectorEntry struct {
	AnalysisID uuid.UUID `json:"analysis_id"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding"`
	IndexedAt  time.Time `json:"indexed_at"`
}

// VectorRepo — vector store для поискового индекса анализов.
//
// Вторичное хранилище: best-effort зеркало Capture Store, наполняется
// фоновым vector-index процессором. Upsert по analysis id — повторная
// индексация сходится к одному и тому же состоянию.
type VectorRepo struct {
	pool *pgxpool.Pool
}

// NewVectorRepo создаёт новый VectorRepo.
func NewVectorRepo(pool *pgxpool.Pool) *VectorRepo {
	return &VectorRepo{pool: pool}
}

// Upsert сохраняет или замещает индексную запись анализа.
func (r *VectorRepo) Upsert(ctx context.Context, entry *VectorEntry) error {
	query := `
		INSERT INTO analysis_vectors (analysis_id, content, embedding, indexed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (analysis_id) DO UPDATE
		SET content = EXCLUDED.content,
		    embedding = EXCLUDED.embedding,
		    indexed_at = EXCLUDED.indexed_at
	`
	_, err := r.pool.Exec(ctx, query,
		entry.AnalysisID,
		entry.Content,
		entry.Embedding,
		entry.IndexedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert analysis vector: %w", err)
	}
	return nil
}
