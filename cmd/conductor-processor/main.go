// Conductor Processor — фоновая обработка записей анализа.
//
// Processor:
//   - Получает события analyses.captured из RabbitMQ
//   - Периодически проверяет pending задачи в БД (polling fallback)
//   - Выполняет процессоры vector-index и graph-expand
//   - Удаляет завершённые задачи по retention-расписанию
//
// Экземпляры масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Conductor/internal/api"
	"github.com/shaiso/Conductor/internal/mq"
	"github.com/shaiso/Conductor/internal/processor"
	"github.com/shaiso/Conductor/internal/store"
	"github.com/shaiso/Conductor/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting conductor-processor")

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
	vectorRepo := store.NewVectorRepo(pool)
	graphRepo := store.NewGraphRepo(pool)

	// RabbitMQ
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err := mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
	}

	// Embedder: внешний сервис или локальный fallback
	var embedder processor.Embedder
	if url := os.Getenv("EMBEDDINGS_URL"); url != "" {
		embedder = processor.NewHTTPEmbedder(url)
		logger.Info("using http embedder", "url", url)
	} else {
		embedder = processor.LocalEmbedder{}
		logger.Info("using local embedder")
	}

	// Процессоры
	reg := processor.NewRegistry()
	reg.Register(processor.NewVectorIndexProcessor(embedder, vectorRepo))
	reg.Register(processor.NewGraphExpandProcessor(graphRepo))

	// Queue
	queue := processor.NewQueue(processor.QueueConfig{
		Tasks:        processingRepo,
		Analyses:     analysisRepo,
		Registry:     reg,
		Conn:         mqConn,
		PollInterval: envDuration("POLL_INTERVAL", 0),
		BatchSize:    envInt("BATCH_SIZE", 0),
		Logger:       logger,
	})

	if err := queue.Start(ctx); err != nil {
		logger.Error("failed to start processing queue", "error", err)
		os.Exit(1)
	}

	// Retention sweeper
	sweeper, err := processor.NewSweeper(
		processingRepo,
		os.Getenv("RETENTION_CRON"),
		envRetentionAge(),
		logger,
	)
	if err != nil {
		logger.Error("failed to create retention sweeper", "error", err)
		os.Exit(1)
	}
	sweeper.Start(ctx)

	// HTTP mux: /healthz + /metrics + ручной запуск обработки
	handler := api.NewHandler(api.Config{
		Analyses: analysisRepo,
		Pending:  queue,
		Logger:   logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	port := ":8082"
	if v := os.Getenv("PROCESSOR_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	sweeper.Stop()
	queue.Stop()
	logger.Info("conductor-processor stopped")
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

// envInt читает целое из env, невалидные значения игнорируются.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// envRetentionAge читает RETENTION_AGE_DAYS (default 30 дней).
func envRetentionAge() time.Duration {
	v := os.Getenv("RETENTION_AGE_DAYS")
	if v == "" {
		return 0
	}
	days, err := strconv.Atoi(v)
	if err != nil || days <= 0 {
		return 0
	}
	return time.Duration(days) * 24 * time.Hour
}
