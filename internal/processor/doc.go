// Package processor реализует фоновую обработку записей анализа:
// очередь задач с event-driven и polling путями, процессоры
// vector-index и graph-expand, retention завершённых задач.
package processor
