// Package mq — обмен сообщениями через RabbitMQ.
//
// Обмен сообщениями опционален: LazyConnection подключается при первом
// обращении и, если брокер не настроен или недоступен, переходит в
// StateUnavailable. Publisher в этом состоянии молча отбрасывает события.
//
// Структура:
//   - connection.go — соединение с reconnect
//   - lazy.go       — однократная загрузка соединения
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — события жизненного цикла tasks
//   - consumer.go   — чтение очередей с ack/nack
//   - signals.go    — обработчик сигналов anycard.flagged
package mq
