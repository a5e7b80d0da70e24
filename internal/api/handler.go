package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/Conductor/internal/domain"
	"github.com/shaiso/Conductor/internal/registry"
)

// TaskDispatcher выполняет инвокации задач.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, inv domain.TaskInvocation) (*domain.DispatchResult, error)
}

// AnalysisReader читает записи анализа.
type AnalysisReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.AnalysisRecord, error)
	ListByProcess(ctx context.Context, processInstanceID string) ([]domain.AnalysisRecord, error)
	ListByThread(ctx context.Context, threadID string) ([]domain.AnalysisRecord, error)
}

// ServiceRegistry — поверхность динамической регистрации сервисов.
type ServiceRegistry interface {
	Register(service string, ep registry.Endpoint, opts registry.RegisterOptions) (*registry.Handle, error)
	Deregister(h *registry.Handle) error
	Snapshot() []registry.ServiceStatus
}

// ConversationReader читает контексты диалогов.
type ConversationReader interface {
	Get(ctx context.Context, processInstanceID string) (*domain.ConversationContext, error)
}

// PendingRunner запускает обработку pending задач вручную.
type PendingRunner interface {
	ProcessPending(ctx context.Context, batchSize int) (int, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	dispatcher    TaskDispatcher
	analyses      AnalysisReader
	registry      ServiceRegistry
	conversations ConversationReader
	pending       PendingRunner
	logger        *slog.Logger
}

// Config — конфигурация для создания Handler.
//
// Dispatcher, Registry и Conversations нужны сервису-оркестратору;
// Pending — сервису фоновой обработки. Nil-зависимость отключает
// соответствующие маршруты.
type Config struct {
	Dispatcher    TaskDispatcher
	Analyses      AnalysisReader
	Registry      ServiceRegistry
	Conversations ConversationReader
	Pending       PendingRunner
	Logger        *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		dispatcher:    cfg.Dispatcher,
		analyses:      cfg.Analyses,
		registry:      cfg.Registry,
		conversations: cfg.Conversations,
		pending:       cfg.Pending,
		logger:        cfg.Logger,
	}
}
