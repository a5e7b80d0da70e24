// Package registry — реестр логических имён backend-сервисов.
//
// Registry отвечает за:
//   - Динамическую регистрацию endpoint'ов (register/deregister по handle)
//   - Разрешение логического имени в живой адрес (resolve на каждый dispatch)
//   - Фильтрацию по здоровью: resolve возвращает только здоровые endpoint'ы
//   - Детерминированный round-robin при нескольких здоровых endpoint'ах
//
// Здоровье обновляется только асинхронным HealthChecker'ом:
// медленная деградация (N провалов подряд), быстрое восстановление
// (один успех).
package registry
