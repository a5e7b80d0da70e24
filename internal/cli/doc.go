// Package cli реализует инструмент командной строки Conductor.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Conductor API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для операционных выборок записей анализа,
// управления регистрациями сервисов и ручного запуска обработки.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Conductor API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	services, err := client.ListServices()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success) — в stderr.
// Это позволяет использовать pipe: conductor service list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - analysis: show, list
//   - service: list, register, deregister
//   - conversation: show
//   - processing: run
//
// Каждая группа создаётся через фабричную функцию (NewServiceCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
