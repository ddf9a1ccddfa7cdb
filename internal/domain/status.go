package domain

import (
	"fmt"
	"strings"
)

// TaskStatus — статус task в очереди.
//
// Жизненный цикл:
//
//	READY → IN_PROGRESS → SUCCEEDED
//	                    ↘ FAILED
//
// Guard'ов на переходы нет: complete/fail применимы к task в любом статусе.
// FAILED — финальный статус, автоматического retry нет.
type TaskStatus string

const (
	// TaskStatusReady — task ожидает, пока её заберёт воркер.
	TaskStatusReady TaskStatus = "READY"

	// TaskStatusInProgress — task забрана воркером (claim).
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"

	// TaskStatusSucceeded — воркер сообщил об успешном выполнении.
	TaskStatusSucceeded TaskStatus = "SUCCEEDED"

	// TaskStatusFailed — воркер сообщил об ошибке.
	TaskStatusFailed TaskStatus = "FAILED"
)

// IsLive возвращает true для статусов, в которых task ещё "в работе"
// (READY или IN_PROGRESS).
func (s TaskStatus) IsLive() bool {
	return s == TaskStatusReady || s == TaskStatusInProgress
}

// IsTerminal возвращает true, если статус финальный.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление TaskStatus.
func (s TaskStatus) String() string {
	return string(s)
}

// ParseTaskStatus парсит строку в TaskStatus.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case TaskStatusReady:
		return TaskStatusReady, nil
	case TaskStatusInProgress:
		return TaskStatusInProgress, nil
	case TaskStatusSucceeded:
		return TaskStatusSucceeded, nil
	case TaskStatusFailed:
		return TaskStatusFailed, nil
	default:
		return "", fmt.Errorf("%w: unknown task status %q", ErrValidation, s)
	}
}
