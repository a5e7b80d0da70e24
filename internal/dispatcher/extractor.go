package dispatcher

// Extractor извлекает идентификаторы диалога из ответа backend-сервиса.
type Extractor interface {
	// Extract возвращает thread_id и assistant_id из нормализованного
	// ответа. Пустые строки — идентификаторы отсутствуют.
	Extract(output map[string]any) (threadID, assistantID string)
}

// WellKnownFieldsExtractor читает контрактные top-level поля ответа:
// thread_id и assistant_id. Поля опциональны; вложенные структуры
// и рефлексия не используются — контракт версионируется явно.
type WellKnownFieldsExtractor struct{}

// Extract читает thread_id и assistant_id из верхнего уровня ответа.
func (WellKnownFieldsExtractor) Extract(output map[string]any) (string, string) {
	return stringField(output, "thread_id"), stringField(output, "assistant_id")
}

// stringField извлекает строковое поле из map, "" если нет или не строка.
func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if val, ok := m[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}
