// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go              — Handler с DI (dispatcher, registry, хранилища, logger)
//   - routes.go               — регистрация маршрутов
//   - middleware.go           — middleware (logging, recovery)
//   - response.go             — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                  — Data Transfer Objects (request/response)
//   - task_handler.go         — обработчик /tasks/execute
//   - analysis_handler.go     — обработчики /analyses
//   - service_handler.go      — обработчики /services
//   - conversation_handler.go — обработчик /conversations
//   - processing_handler.go   — обработчик /processing/run
//
// API предоставляет вход для workflow-движка (выполнение задач),
// динамическую регистрацию сервисов и операционные выборки.
package api
