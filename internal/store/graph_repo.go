package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Link — одно отношение анализа в графе связей.
type Link struct {
	AnalysisID uuid.UUID `json:"analysis_id"`
	Relation   string    `json:"relation"`
	Target     string    `json:"target"`
	CreatedAt  time.Time `json:"created_at"`
}

// GraphRepo — хранилище графа связей анализов.
//
// Вторичное хранилище: наполняется graph-expand процессором.
// Upsert по (analysis, relation, target) — повторное раскрытие
// графа идемпотентно.
type GraphRepo struct {
	pool *pgxpool.Pool
}

// NewGraphRepo создаёт новый GraphRepo.
func NewGraphRepo(pool *pgxpool.Pool) *GraphRepo {
	return &GraphRepo{pool: pool}
}

// UpsertLinks сохраняет связи анализа. Существующие пары не дублируются.
func (r *GraphRepo) UpsertLinks(ctx context.Context, links []Link) error {
	if len(links) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, link := range links {
		batch.Queue(`
			INSERT INTO analysis_links (analysis_id, relation, target, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (analysis_id, relation, target) DO NOTHING
		`,
			link.AnalysisID,
			link.Relation,
			link.Target,
			link.CreatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range links {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert analysis link: %w", err)
		}
	}
	return nil
}
