package store

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidTransition — попытка обратного или недопустимого
	// статусного перехода. Всегда ошибка интеграции, не retryable.
	ErrInvalidTransition = errors.New("invalid state transition")
)
