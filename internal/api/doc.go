// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go          — Handler с DI (dispatcher, artifacts, sync loop, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (recovery, tracing, metrics, logging)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - task_handler.go     — обработчики для /tasks
//   - artifact_handler.go — загрузка и скачивание artifacts
//   - sync_handler.go     — управление циклом /redeem-sync
//
// Воркеры забирают задачи через GET /api/v1/tasks/next и отчитываются
// через /complete или /fail.
package api
