// Conductor Dispatcher — сервис-оркестратор decision-analysis платформы.
//
// Dispatcher:
//   - Принимает service tasks от workflow-движка по HTTP
//   - Резолвит логические имена сервисов через Registry (health-based)
//   - Вызывает backend-сервисы и фиксирует каждый вызов в Capture Store
//   - Отслеживает контексты диалогов процессов
//   - Ставит фоновые задачи обработки и публикует события в RabbitMQ
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conductor/internal/api"
	"github.com/shaiso/Conductor/internal/conversation"
	"github.com/shaiso/Conductor/internal/dispatcher"
	"github.com/shaiso/Conductor/internal/mq"
	"github.com/shaiso/Conductor/internal/processor"
	"github.com/shaiso/Conductor/internal/registry"
	"github.com/shaiso/Conductor/internal/store"
	"github.com/shaiso/Conductor/internal/telemetry"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conductor-dispatcher")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := store.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Репозитории
	analysisRepo := store.NewAnalysisRepo(pool)
	processingRepo := store.NewProcessingRepo(pool)
	contextRepo := store.NewContextRepo(pool)

	// Registry + health checker
	reg := registry.New(logger)
	checker := registry.NewHealthChecker(registry.HealthCheckerConfig{
		Registry: reg,
		Interval: envDuration("HEALTH_INTERVAL", 0),
		Logger:   logger,
	})
	checker.Start(ctx)
	defer checker.Stop()

	// RabbitMQ (опционально: без него события не публикуются,
	// обработчик догоняет записи через polling)
	var publisher *mq.Publisher
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, events disabled", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	// Conversation tracker
	tracker := conversation.NewTracker(contextRepo, logger)

	// Dispatcher
	var eventPublisher dispatcher.EventPublisher
	if publisher != nil {
		eventPublisher = publisher
	}
	disp := dispatcher.New(
		reg,
		analysisRepo,
		processingRepo,
		tracker,
		eventPublisher,
		logger,
		dispatcher.Config{
			CallTimeout:    envDuration("DISPATCH_TIMEOUT", 0),
			ProcessorTypes: []string{processor.TypeVectorIndex, processor.TypeGraphExpand},
		},
	)

	// API handler
	handler := api.NewHandler(api.Config{
		Dispatcher:    disp,
		Analyses:      analysisRepo,
		Registry:      reg,
		Conversations: tracker,
		Logger:        logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("conductor-dispatcher stopped")
}

// envDuration читает длительность из env в секундах.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	sec, err := strconv.Atoi(v)
	if err != nil || sec <= 0 {
		return def
	}
	return time.Duration(sec) * time.Second
}
