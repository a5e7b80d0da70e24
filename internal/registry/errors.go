package registry

import "errors"

// Ошибки реестра сервисов.
var (
	// ErrServiceUnknown — логическое имя сервиса никогда не регистрировалось.
	// Не retryable: вызывающая сторона получает ошибку сразу.
	ErrServiceUnknown = errors.New("service unknown")

	// ErrServiceUnavailable — сервис зарегистрирован, но ни один endpoint
	// не здоров. Retryable после backoff на стороне вызывающего.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrHandleNotFound — registration handle не найден (повторный deregister).
	ErrHandleNotFound = errors.New("registration handle not found")

	// ErrInvalidEndpoint — endpoint без адреса или порта.
	ErrInvalidEndpoint = errors.New("invalid endpoint")
)
