package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/mq"
	"github.com/shaiso/Conductor/internal/registry"
	"github.com/shaiso/Conductor/internal/store"
	"github.com/shaiso/Conductor/internal/telemetry"
)

const (
	defaultCallTimeout     = 30 * time.Second
	defaultMaxRetries      = 2
	defaultPersistAttempts = 3
	defaultPersistBackoff  = 100 * time.Millisecond
)

// Resolver — интерфейс резолвинга логических имён сервисов.
type Resolver interface {
	Resolve(service string) (*registry.Resolved, error)
}

// AnalysisStore — интерфейс Capture Store для dispatch-пути.
type AnalysisStore interface {
	Create(ctx context.Context, rec *domain.AnalysisRecord) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AnalysisStatus, upd domain.StatusUpdate) error
}

// ProcessingEnqueuer ставит фоновые задачи обработки.
type ProcessingEnqueuer interface {
	Enqueue(ctx context.Context, task *domain.ProcessingTask) error
}

// ConversationCapturer фиксирует связь процесса с диалогом.
type ConversationCapturer interface {
	Capture(ctx context.Context, processInstanceID, threadID, assistantID string) error
}

// EventPublisher публикует события о сохранённых записях.
type EventPublisher interface {
	PublishAnalysisCaptured(ctx context.Context, payload mq.AnalysisCapturedPayload) error
}

// Caller выполняет вызов операции backend-сервиса.
type Caller interface {
	Call(ctx context.Context, baseURL, operation string, payload map[string]any) (map[string]any, []byte, error)
}

// Config — конфигурация Dispatcher.
type Config struct {
	// CallTimeout — таймаут одного вызова backend. Default: 30s.
	CallTimeout time.Duration

	// MaxRetries — количество повторов вызова сверх первой попытки.
	// Повторы применяются только к операциям, объявленным идемпотентными
	// при регистрации. Default: 2.
	MaxRetries int

	// PersistAttempts — количество попыток записи в Capture Store.
	// Default: 3.
	PersistAttempts int

	// PersistBackoff — базовая задержка между попытками записи
	// (удваивается). Default: 100ms.
	PersistBackoff time.Duration

	// ProcessorTypes — типы процессоров, для которых ставятся фоновые
	// задачи после завершения dispatch.
	ProcessorTypes []string
}

// Dispatcher выполняет service tasks: резолвит сервис, вызывает backend
// и синхронно фиксирует результат в Capture Store.
//
// Инварианты:
//   - каждый dispatch порождает ровно одну AnalysisRecord; запись
//     создаётся до вызова backend и никогда не удаляется;
//   - вызывающая сторона видит только терминальный статус;
//   - провал записи не теряет результат backend — он возвращается
//     с флагом Unaudited.
type Dispatcher struct {
	resolver   Resolver
	analyses   AnalysisStore
	processing ProcessingEnqueuer
	tracker    ConversationCapturer
	publisher  EventPublisher
	caller     Caller
	extractor  Extractor
	logger     *slog.Logger
	cfg        Config
}

// New создаёт Dispatcher.
//
// processing, tracker и publisher опциональны (nil отключает
// соответствующий side-effect — полезно в тестах и degraded-режиме).
func New(
	resolver Resolver,
	analyses AnalysisStore,
	processing ProcessingEnqueuer,
	tracker ConversationCapturer,
	publisher EventPublisher,
	logger *slog.Logger,
	cfg Config,
) *Dispatcher {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.PersistAttempts <= 0 {
		cfg.PersistAttempts = defaultPersistAttempts
	}
	if cfg.PersistBackoff <= 0 {
		cfg.PersistBackoff = defaultPersistBackoff
	}

	return &Dispatcher{
		resolver:   resolver,
		analyses:   analyses,
		processing: processing,
		tracker:    tracker,
		publisher:  publisher,
		caller:     NewBackendCaller(),
		extractor:  WellKnownFieldsExtractor{},
		logger:     logger,
		cfg:        cfg,
	}
}

// SetCaller заменяет caller (для тестов).
func (d *Dispatcher) SetCaller(c Caller) { d.caller = c }

// Dispatch выполняет одну инвокацию задачи.
//
// Возвращаемый DispatchResult всегда содержит AnalysisID и терминальный
// статус. Ошибка возвращается только при невалидной инвокации —
// все остальные неудачи выражаются статусом failed в результате.
func (d *Dispatcher) Dispatch(ctx context.Context, inv domain.TaskInvocation) (*domain.DispatchResult, error) {
	if err := validateInvocation(inv); err != nil {
		return nil, err
	}

	rec := domain.NewAnalysisRecord(inv)

	logger := d.logger.With(
		"analysis_id", rec.ID,
		"service", inv.ServiceName,
		"operation", inv.Operation,
		"process_instance_id", inv.ProcessInstanceID,
	)

	// Запись создаётся до вызова backend: dispatch без следа в
	// Capture Store недопустим. Провал create не блокирует вызов —
	// результат будет помечен Unaudited.
	unaudited := false
	if err := d.persist(ctx, func(c context.Context) error {
		return d.analyses.Create(c, rec)
	}); err != nil {
		logger.Error("failed to create analysis record", "error", err)
		unaudited = true
	}

	// Резолвим сервис после создания записи, чтобы неудачный резолвинг
	// тоже оставлял след.
	resolved, err := d.resolver.Resolve(inv.ServiceName)
	if err != nil {
		kind := resolveErrorKind(err)
		// unavailable — временное состояние, unknown — ошибка конфигурации
		retryable := kind == ErrorKindServiceUnavailable
		return d.failDispatch(ctx, logger, rec, unaudited, kind, err.Error(), nil, retryable), nil
	}

	if !unaudited {
		if err := d.persist(ctx, func(c context.Context) error {
			return d.analyses.UpdateStatus(c, rec.ID, domain.AnalysisStatusProcessing, domain.StatusUpdate{})
		}); err != nil {
			logger.Error("failed to mark analysis processing", "error", err)
			unaudited = true
		}
	}
	rec.MarkProcessing()

	output, raw, callErr := d.callWithRetry(ctx, logger, resolved, inv)
	if callErr != nil {
		return d.failDispatch(ctx, logger, rec, unaudited, ErrorKindBackendCallFailed, callErr.Error(), callErrorRaw(callErr), isRetryableCall(callErr)), nil
	}

	threadID, assistantID := d.extractor.Extract(output)
	rec.MarkCompleted(output, raw)
	rec.ThreadID = threadID

	if !unaudited {
		if err := d.persist(ctx, func(c context.Context) error {
			return d.analyses.UpdateStatus(c, rec.ID, domain.AnalysisStatusCompleted, domain.StatusUpdate{
				ThreadID:    threadID,
				Output:      output,
				RawResponse: raw,
			})
		}); err != nil {
			logger.Error("failed to persist analysis result", "error", err)
			unaudited = true
		}
	}
	if unaudited {
		telemetry.UnauditedTotal.Inc()
	}

	d.captureConversation(ctx, logger, inv.ProcessInstanceID, threadID, assistantID)
	if !unaudited {
		d.enqueueProcessing(ctx, logger, rec)
	}

	telemetry.DispatchTotal.WithLabelValues(inv.ServiceName, string(domain.AnalysisStatusCompleted)).Inc()
	logger.Info("dispatch completed", "status", domain.AnalysisStatusCompleted, "unaudited", unaudited)

	return &domain.DispatchResult{
		AnalysisID: rec.ID.String(),
		Status:     domain.AnalysisStatusCompleted,
		Output:     output,
		Unaudited:  unaudited,
	}, nil
}

// callWithRetry вызывает backend с таймаутом и ограниченными повторами.
//
// Повторы только для идемпотентных операций и только при
// ретраебельных ошибках (транспорт, 5xx). Каждая попытка заново
// резолвит сервис — нездоровый endpoint выбывает между попытками.
func (d *Dispatcher) callWithRetry(ctx context.Context, logger *slog.Logger, resolved *registry.Resolved, inv domain.TaskInvocation) (map[string]any, []byte, error) {
	maxAttempts := 1
	if resolved.IsIdempotent(inv.Operation) {
		maxAttempts += d.cfg.MaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			var err error
			resolved, err = d.resolver.Resolve(inv.ServiceName)
			if err != nil {
				return nil, nil, lastErr
			}
		}

		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		output, raw, err := d.caller.Call(callCtx, resolved.Endpoint.BaseURL(), inv.Operation, inv.Payload)
		cancel()
		telemetry.DispatchDuration.WithLabelValues(inv.ServiceName).Observe(time.Since(start).Seconds())

		if err == nil {
			return output, raw, nil
		}
		lastErr = err

		if ctx.Err() != nil || !isRetryableCall(err) {
			return nil, nil, err
		}

		logger.Warn("backend call failed, retrying",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"endpoint", resolved.Endpoint.BaseURL(),
			"error", err,
		)
	}

	return nil, nil, lastErr
}

// failDispatch фиксирует неудачу dispatch и формирует результат.
func (d *Dispatcher) failDispatch(ctx context.Context, logger *slog.Logger, rec *domain.AnalysisRecord, unaudited bool, kind, errMsg string, raw []byte, retryable bool) *domain.DispatchResult {
	rec.MarkFailed(errMsg, raw)

	if !unaudited {
		if err := d.persist(ctx, func(c context.Context) error {
			return d.analyses.UpdateStatus(c, rec.ID, domain.AnalysisStatusFailed, domain.StatusUpdate{
				Error:       errMsg,
				RawResponse: raw,
			})
		}); err != nil {
			logger.Error("failed to persist analysis failure", "error", err)
			unaudited = true
		}
	}
	if unaudited {
		telemetry.UnauditedTotal.Inc()
	}

	if !unaudited {
		d.enqueueProcessing(ctx, logger, rec)
	}

	telemetry.DispatchTotal.WithLabelValues(rec.ServiceName, string(domain.AnalysisStatusFailed)).Inc()
	logger.Warn("dispatch failed", "error_kind", kind, "error", errMsg, "unaudited", unaudited)

	return &domain.DispatchResult{
		AnalysisID: rec.ID.String(),
		Status:     domain.AnalysisStatusFailed,
		Error:      errMsg,
		ErrorKind:  kind,
		Retryable:  retryable,
		Unaudited:  unaudited,
	}
}

// persist выполняет запись в Capture Store с exponential backoff.
//
// Использует context.WithoutCancel: отменённый dispatch всё равно
// обязан оставить след (audit trail).
func (d *Dispatcher) persist(ctx context.Context, op func(context.Context) error) error {
	writeCtx := context.WithoutCancel(ctx)

	var err error
	backoff := d.cfg.PersistBackoff
	for attempt := 1; attempt <= d.cfg.PersistAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(backoff)
			backoff *= 2
		}
		if err = op(writeCtx); err == nil {
			return nil
		}
		// Невалидный переход — ошибка программирования, retry не поможет
		if errors.Is(err, store.ErrInvalidTransition) {
			break
		}
	}

	return fmt.Errorf("%w: %v", ErrPersistenceWriteFailed, err)
}

// captureConversation сохраняет контекст диалога (best-effort).
func (d *Dispatcher) captureConversation(ctx context.Context, logger *slog.Logger, processInstanceID, threadID, assistantID string) {
	if d.tracker == nil || threadID == "" {
		return
	}
	if err := d.tracker.Capture(context.WithoutCancel(ctx), processInstanceID, threadID, assistantID); err != nil {
		logger.Warn("failed to capture conversation context", "thread_id", threadID, "error", err)
	}
}

// enqueueProcessing ставит фоновые задачи и публикует событие.
//
// Fire-and-forget: неудачи логируются и не влияют на результат
// dispatch — фоновая обработка догонит запись через polling.
func (d *Dispatcher) enqueueProcessing(ctx context.Context, logger *slog.Logger, rec *domain.AnalysisRecord) {
	if d.processing == nil || len(d.cfg.ProcessorTypes) == 0 {
		return
	}

	bgCtx := context.WithoutCancel(ctx)
	enqueued := false
	for _, pt := range d.cfg.ProcessorTypes {
		task := domain.NewProcessingTask(rec.ID, pt)
		if err := d.processing.Enqueue(bgCtx, task); err != nil {
			logger.Warn("failed to enqueue processing task", "processor_type", pt, "error", err)
			continue
		}
		enqueued = true
	}

	if enqueued && d.publisher != nil {
		err := d.publisher.PublishAnalysisCaptured(bgCtx, mq.AnalysisCapturedPayload{
			AnalysisID:        rec.ID,
			ProcessInstanceID: rec.ProcessInstanceID,
			Status:            string(rec.Status),
		})
		if err != nil {
			logger.Warn("failed to publish analysis captured event", "error", err)
		}
	}
}

// validateInvocation проверяет обязательные поля инвокации.
func validateInvocation(inv domain.TaskInvocation) error {
	switch {
	case inv.ProcessInstanceID == "":
		return fmt.Errorf("%w: process_instance_id is required", ErrInvalidInvocation)
	case inv.TaskName == "":
		return fmt.Errorf("%w: task_name is required", ErrInvalidInvocation)
	case inv.ServiceName == "":
		return fmt.Errorf("%w: service_name is required", ErrInvalidInvocation)
	case inv.Operation == "":
		return fmt.Errorf("%w: operation is required", ErrInvalidInvocation)
	}
	return nil
}

// resolveErrorKind сопоставляет ошибку резолвинга с кодом.
func resolveErrorKind(err error) string {
	if errors.Is(err, registry.ErrServiceUnavailable) {
		return ErrorKindServiceUnavailable
	}
	return ErrorKindServiceUnknown
}
