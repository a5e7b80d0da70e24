// Conductor Migrate — применяет миграции схемы БД.
//
// Использует встроенные SQL-миграции (goose). Запускается перед
// стартом сервисов или как init-контейнер.
package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/shaiso/Conductor/internal/store"
	"github.com/shaiso/Conductor/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting conductor-migrate")

	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		dbURL = store.DefaultDBURL
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	if err := store.RunMigrations(ctx, db); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	logger.Info("migrations applied")
}
