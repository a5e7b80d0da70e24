package domain

// AnalysisStatus — статус AnalysisRecord.
//
// Жизненный цикл (строго вперёд, без обратных переходов):
//
//	created → processing → completed
//	                     ↘ failed
type AnalysisStatus string

const (
	// AnalysisStatusCreated — запись создана, backend ещё не вызван.
	AnalysisStatusCreated AnalysisStatus = "created"

	// AnalysisStatusProcessing — идёт вызов backend-сервиса.
	AnalysisStatusProcessing AnalysisStatus = "processing"

	// AnalysisStatusCompleted — вызов завершён успешно, output заполнен.
	AnalysisStatusCompleted AnalysisStatus = "completed"

	// AnalysisStatusFailed — вызов завершился ошибкой (после всех retry).
	AnalysisStatusFailed AnalysisStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный.
func (s AnalysisStatus) IsTerminal() bool {
	switch s {
	case AnalysisStatusCompleted, AnalysisStatusFailed:
		return true
	default:
		return false
	}
}

// rank задаёт порядок статусов для проверки монотонности переходов.
func (s AnalysisStatus) rank() int {
	switch s {
	case AnalysisStatusCreated:
		return 0
	case AnalysisStatusProcessing:
		return 1
	case AnalysisStatusCompleted, AnalysisStatusFailed:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo проверяет, допустим ли переход в статус next.
// Переходы только вперёд: created < processing < {completed, failed}.
// Переход между двумя терминальными статусами запрещён.
func (s AnalysisStatus) CanTransitionTo(next AnalysisStatus) bool {
	if s.rank() < 0 || next.rank() < 0 {
		return false
	}
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// PreviousStatuses возвращает статусы, из которых допустим переход в s.
// Используется репозиторием для проверки перехода на уровне SQL.
func (s AnalysisStatus) PreviousStatuses() []AnalysisStatus {
	switch s {
	case AnalysisStatusProcessing:
		return []AnalysisStatus{AnalysisStatusCreated}
	case AnalysisStatusCompleted, AnalysisStatusFailed:
		return []AnalysisStatus{AnalysisStatusCreated, AnalysisStatusProcessing}
	default:
		return nil
	}
}

// ProcessingStatus — статус ProcessingTask.
//
// Жизненный цикл:
//
//	pending → running → completed
//	                  ↘ failed
type ProcessingStatus string

const (
	// ProcessingStatusPending — задача в очереди, ожидает обработки.
	ProcessingStatusPending ProcessingStatus = "pending"

	// ProcessingStatusRunning — задача обрабатывается процессором.
	ProcessingStatusRunning ProcessingStatus = "running"

	// ProcessingStatusCompleted — обогащение применено.
	ProcessingStatusCompleted ProcessingStatus = "completed"

	// ProcessingStatusFailed — процессор завершился ошибкой.
	ProcessingStatusFailed ProcessingStatus = "failed"
)

// IsTerminal возвращает true, если статус финальный.
func (s ProcessingStatus) IsTerminal() bool {
	switch s {
	case ProcessingStatusCompleted, ProcessingStatusFailed:
		return true
	default:
		return false
	}
}
