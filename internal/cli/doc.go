// Package cli реализует инструмент командной строки TaskBridge.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с TaskBridge API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// Подходит и для ручной работы с очередью, и как простой воркер в скриптах.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для TaskBridge API. Инкапсулирует HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок. Числа в payload/result сохраняются как json.Number.
//
//	client := cli.NewClient("http://localhost:8080")
//	task, ok, err := client.ClaimTask("getmybonus_anycard")
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: taskbridge task list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - task: list, show, create, claim, complete, fail, delete
//   - artifact: upload, list, download
//   - sync: status, start, stop
//
// Каждая группа создаётся через фабричную функцию (NewTaskCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
