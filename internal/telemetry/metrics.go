package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики оркестратора.
//
// Регистрируются в default registry через promauto; отдаются
// через promhttp на /metrics каждого бинарника.
var (
	// DispatchTotal — количество dispatch по финальному статусу записи.
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conductor_dispatch_total",
		Help: "Total task dispatches by final analysis status",
	}, []string{"service", "status"})

	// DispatchDuration — длительность вызова backend-сервиса.
	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "conductor_backend_call_duration_seconds",
		Help:    "Backend call duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"service"})

	// UnauditedTotal — dispatch'и, результат которых не удалось сохранить
	// в Capture Store. Ненулевое значение требует сверки операторами.
	UnauditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conductor_unaudited_dispatch_total",
		Help: "Dispatches whose analysis record could not be persisted",
	})

	// ProcessingTotal — обработанные фоновые задачи по процессору и исходу.
	ProcessingTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conductor_processing_tasks_total",
		Help: "Background processing tasks by processor type and outcome",
	}, []string{"processor", "outcome"})

	// RegistryEndpoints — текущее количество endpoint'ов по здоровью.
	RegistryEndpoints = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "conductor_registry_endpoints",
		Help: "Registered endpoints by health state",
	}, []string{"state"})
)
