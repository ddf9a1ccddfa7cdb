// Package dispatch — очередь tasks для внешних воркеров.
//
// Dispatcher выполняет create/claim/complete/fail/delete. Поведение,
// зависящее от типа task (генерация спроса, обогащение payload,
// применение результата), задаётся таблицей Registry: новый тип
// добавляется одной записью.
package dispatch
