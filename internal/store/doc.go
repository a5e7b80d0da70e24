// Package store — доступ к PostgreSQL через pgx.
//
// Репозитории:
//   - AnalysisRepo — analysis records (metadata + data, атомарный create,
//     статусные переходы только вперёд)
//   - ProcessingRepo — очередь фоновых задач обогащения
//   - ContextRepo — conversation contexts
//   - VectorRepo, GraphRepo — вторичные хранилища (поисковый индекс,
//     граф связей), наполняются фоновыми процессорами
//
// Схема применяется goose-миграциями, встроенными в бинарник.
// Удаление analysis_metadata каскадно удаляет data, processing tasks,
// vectors и links.
package store
