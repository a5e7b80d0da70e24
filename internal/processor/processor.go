package processor

import (
	"context"
	"fmt"

	"github.com/shaiso/Conductor/internal/domain"
)

// Типы процессоров.
const (
	TypeVectorIndex = "vector-index"
	TypeGraphExpand = "graph-expand"
)

// Processor — интерфейс обработки одной записи анализа.
//
// Реализации обязаны быть идемпотентными: задача может быть выполнена
// повторно при redelivery события или после падения обработчика.
type Processor interface {
	// Type возвращает тип процессора (совпадает с ProcessorType задачи).
	Type() string

	// Process обрабатывает запись. Ошибка фиксируется на задаче
	// и не прерывает обработку остальных элементов батча.
	Process(ctx context.Context, rec *domain.AnalysisRecord, task *domain.ProcessingTask) error
}

// Registry — реестр процессоров по типу.
type Registry struct {
	processors map[string]Processor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{processors: make(map[string]Processor)}
}

// Register добавляет процессор.
func (r *Registry) Register(p Processor) {
	r.processors[p.Type()] = p
}

// Get возвращает процессор для типа задачи.
func (r *Registry) Get(processorType string) (Processor, error) {
	p, ok := r.processors[processorType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProcessorType, processorType)
	}
	return p, nil
}

// Types возвращает зарегистрированные типы.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.processors))
	for t := range r.processors {
		types = append(types, t)
	}
	return types
}
