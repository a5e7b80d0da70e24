// Package telemetry — structured logging и метрики для всех сервисов.
//
// Логирование построено на log/slog с JSON-выводом для production.
// Метрики — prometheus/client_golang, регистрация через promauto.
package telemetry
