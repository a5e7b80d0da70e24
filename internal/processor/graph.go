package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/store"
)

// Типы связей, которые строит graph-expand.
const (
	RelationProcess = "produced-by-process"
	RelationThread  = "in-thread"
	RelationTag     = "tagged"
)

// GraphStore — интерфейс хранилища связей.
type GraphStore interface {
	UpsertLinks(ctx context.Context, links []store.Link) error
}

// GraphExpandProcessor разворачивает запись анализа в связи графа:
// анализ → процесс, анализ → thread, анализ → каждая метка.
//
// Связи пишутся upsert'ом по составному ключу — повторная обработка
// не плодит дубликатов.
type GraphExpandProcessor struct {
	links GraphStore
}

// NewGraphExpandProcessor создаёт процессор graph-expand.
func NewGraphExpandProcessor(links GraphStore) *GraphExpandProcessor {
	return &GraphExpandProcessor{links: links}
}

// Type возвращает "graph-expand".
func (p *GraphExpandProcessor) Type() string { return TypeGraphExpand }

// Process строит и сохраняет связи одной записи.
func (p *GraphExpandProcessor) Process(ctx context.Context, rec *domain.AnalysisRecord, _ *domain.ProcessingTask) error {
	links := deriveLinks(rec)
	if len(links) == 0 {
		return nil
	}
	if err := p.links.UpsertLinks(ctx, links); err != nil {
		return fmt.Errorf("upsert graph links: %w", err)
	}
	return nil
}

// deriveLinks выводит связи из полей записи.
func deriveLinks(rec *domain.AnalysisRecord) []store.Link {
	now := time.Now().UTC()
	links := make([]store.Link, 0, 2+len(rec.Tags))

	if rec.ProcessInstanceID != "" {
		links = append(links, store.Link{
			AnalysisID: rec.ID,
			Relation:   RelationProcess,
			Target:     rec.ProcessInstanceID,
			CreatedAt:  now,
		})
	}
	if rec.ThreadID != "" {
		links = append(links, store.Link{
			AnalysisID: rec.ID,
			Relation:   RelationThread,
			Target:     rec.ThreadID,
			CreatedAt:  now,
		})
	}
	for _, tag := range rec.Tags {
		if tag == "" {
			continue
		}
		links = append(links, store.Link{
			AnalysisID: rec.ID,
			Relation:   RelationTag,
			Target:     tag,
			CreatedAt:  now,
		})
	}
	return links
}
