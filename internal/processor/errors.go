package processor

import "errors"

// Ошибки фоновой обработки.
var (
	// ErrUnknownProcessorType — для типа задачи нет зарегистрированного
	// процессора.
	ErrUnknownProcessorType = errors.New("unknown processor type")

	// ErrTaskNotPending — задача уже выполняется или завершена
	// (нормальная ситуация при redelivery события).
	ErrTaskNotPending = errors.New("processing task is not pending")

	// ErrEmbedding — не удалось получить embedding.
	ErrEmbedding = errors.New("embedding failed")
)
