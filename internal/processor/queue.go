package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/mq"
	"github.com/shaiso/Conductor/internal/store"
	"github.com/shaiso/Conductor/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 50
	defaultPrefetch     = 5
)

// ProcessingStore — интерфейс хранилища фоновых задач.
type ProcessingStore interface {
	ListPending(ctx context.Context, limit int) ([]domain.ProcessingTask, error)
	ListByAnalysis(ctx context.Context, analysisID uuid.UUID) ([]domain.ProcessingTask, error)
	Update(ctx context.Context, task *domain.ProcessingTask) error
}

// AnalysisReader читает записи анализа для обработки.
type AnalysisReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.AnalysisRecord, error)
}

// Queue выполняет фоновые задачи обработки записей анализа.
//
// Queue — stateless компонент, который:
//   - получает события analyses.captured из RabbitMQ (event-driven)
//   - периодически проверяет pending задачи в БД (polling fallback)
//   - выполняет задачу процессором соответствующего типа
//   - изолирует сбои: ошибка одного элемента фиксируется на задаче
//     и не прерывает обработку остальных
//
// Экземпляры масштабируются горизонтально — несколько потребляют
// из одной очереди.
type Queue struct {
	tasks    ProcessingStore
	analyses AnalysisReader
	registry *Registry

	conn *mq.Connection

	pollInterval time.Duration
	batchSize    int

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// QueueConfig — конфигурация Queue.
type QueueConfig struct {
	Tasks    ProcessingStore
	Analyses AnalysisReader

	// Registry процессоров (обязательно).
	Registry *Registry

	// Conn — подключение к RabbitMQ (опционально; nil — только polling).
	Conn *mq.Connection

	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // количество задач за один poll (default: 50)

	Logger *slog.Logger
}

// NewQueue создаёт Queue.
func NewQueue(cfg QueueConfig) *Queue {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		tasks:        cfg.Tasks,
		analyses:     cfg.Analyses,
		registry:     cfg.Registry,
		conn:         cfg.Conn,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Start запускает Queue: consumer (если есть MQ) и polling-горутину.
func (q *Queue) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	q.cancelFunc = cancel

	q.logger.Info("starting processing queue",
		"poll_interval", q.pollInterval,
		"batch_size", q.batchSize,
		"processors", q.registry.Types(),
	)

	if q.conn != nil {
		consumer := mq.NewCapturedConsumer(q.conn, q.logger, q.handleAnalysisCaptured, defaultPrefetch)

		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				q.logger.Error("analyses consumer error", "error", err)
			}
		}()
	} else {
		q.logger.Warn("mq connection not configured, polling only")
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.pollLoop(ctx)
	}()

	q.logger.Info("processing queue started")
	return nil
}

// Stop останавливает Queue.
func (q *Queue) Stop() {
	q.logger.Info("stopping processing queue...")

	if q.cancelFunc != nil {
		q.cancelFunc()
	}
	q.wg.Wait()

	q.logger.Info("processing queue stopped")
}

// handleAnalysisCaptured обрабатывает событие analyses.captured.
func (q *Queue) handleAnalysisCaptured(ctx context.Context, payload mq.AnalysisCapturedPayload) error {
	return q.ProcessForAnalysis(ctx, payload.AnalysisID)
}

// ProcessForAnalysis выполняет все pending задачи одной записи.
//
// Завершённые задачи пропускаются — redelivery события безопасен.
func (q *Queue) ProcessForAnalysis(ctx context.Context, analysisID uuid.UUID) error {
	tasks, err := q.tasks.ListByAnalysis(ctx, analysisID)
	if err != nil {
		return fmt.Errorf("list tasks for analysis: %w", err)
	}

	for i := range tasks {
		q.processOne(ctx, &tasks[i])
	}
	return nil
}

// pollLoop — цикл polling для fallback.
func (q *Queue) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем задачи, созданные
	// пока обработчик был выключен)
	q.ProcessPending(ctx, q.batchSize)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.ProcessPending(ctx, q.batchSize)
		}
	}
}

// ProcessPending выполняет один батч pending задач.
//
// Возвращает количество задач, у которых была попытка обработки.
// Ошибки отдельных элементов фиксируются на задачах и не прерывают
// батч; ошибка возвращается только если батч не удалось получить.
func (q *Queue) ProcessPending(ctx context.Context, batchSize int) (int, error) {
	tasks, err := q.tasks.ListPending(ctx, batchSize)
	if err != nil {
		q.logger.Error("failed to list pending tasks", "error", err)
		return 0, fmt.Errorf("list pending tasks: %w", err)
	}

	if len(tasks) == 0 {
		return 0, nil
	}

	q.logger.Debug("poll found pending tasks", "count", len(tasks))

	processed := 0
	for i := range tasks {
		select {
		case <-ctx.Done():
			return processed, ctx.Err()
		default:
		}
		q.processOne(ctx, &tasks[i])
		processed++
	}
	return processed, nil
}

// processOne выполняет одну задачу с изоляцией сбоев.
func (q *Queue) processOne(ctx context.Context, task *domain.ProcessingTask) {
	if task.Status != domain.ProcessingStatusPending {
		return
	}

	logger := q.logger.With(
		"task_id", task.ID,
		"analysis_id", task.AnalysisID,
		"processor_type", task.ProcessorType,
	)

	task.MarkRunning()
	if err := q.tasks.Update(ctx, task); err != nil {
		logger.Error("failed to mark task running", "error", err)
		return
	}

	err := q.runProcessor(ctx, task)
	if err != nil {
		task.MarkFailed(err.Error())
		telemetry.ProcessingTotal.WithLabelValues(task.ProcessorType, "failed").Inc()
		logger.Warn("processing task failed", "attempt", task.Attempt, "error", err)
	} else {
		task.MarkCompleted()
		telemetry.ProcessingTotal.WithLabelValues(task.ProcessorType, "completed").Inc()
		logger.Info("processing task completed", "attempt", task.Attempt)
	}

	if updErr := q.tasks.Update(ctx, task); updErr != nil {
		logger.Error("failed to persist task result", "error", updErr)
	}
}

// runProcessor выполняет процессор с перехватом паники.
//
// Паника процессора — сбой элемента, не обработчика: фиксируется
// как ошибка задачи.
func (q *Queue) runProcessor(ctx context.Context, task *domain.ProcessingTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()

	p, err := q.registry.Get(task.ProcessorType)
	if err != nil {
		return err
	}

	rec, err := q.analyses.Get(ctx, task.AnalysisID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("analysis record not found: %s", task.AnalysisID)
		}
		return fmt.Errorf("get analysis record: %w", err)
	}

	return p.Process(ctx, rec, task)
}
