package dispatcher

import "errors"

// Ошибки dispatch-пути.
var (
	// ErrBackendCallFailed — вызов backend-сервиса не удался
	// (транспортная ошибка, таймаут или HTTP-статус >= 400).
	ErrBackendCallFailed = errors.New("backend call failed")

	// ErrPersistenceWriteFailed — запись в Capture Store не удалась
	// после всех retry с backoff. Результат dispatch при этом
	// возвращается с флагом Unaudited.
	ErrPersistenceWriteFailed = errors.New("persistence write failed")

	// ErrInvalidInvocation — инвокация не прошла валидацию.
	ErrInvalidInvocation = errors.New("invalid invocation")
)

// Машиночитаемые коды ошибок для DispatchResult.ErrorKind.
const (
	ErrorKindServiceUnknown     = "service_unknown"
	ErrorKindServiceUnavailable = "service_unavailable"
	ErrorKindBackendCallFailed  = "backend_call_failed"
)
