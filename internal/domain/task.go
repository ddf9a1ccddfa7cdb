package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskType — закрытое перечисление типов task.
//
// В БД и API хранится code ("getmybonus_anycard"), при парсинге
// принимается также имя константы ("GETMYBONUS_ANYCARD").
type TaskType string

const (
	// TaskTypeGetMyBonusAnycard — погашение anycard через getmybonus.
	// Спрос генерируется автоматически из anycard с needsRedeem=true.
	TaskTypeGetMyBonusAnycard TaskType = "getmybonus_anycard"
)

// taskTypeNames — имена констант для парсинга.
var taskTypeNames = map[string]TaskType{
	"GETMYBONUS_ANYCARD": TaskTypeGetMyBonusAnycard,
}

// TaskTypes возвращает все известные типы task.
func TaskTypes() []TaskType {
	return []TaskType{TaskTypeGetMyBonusAnycard}
}

// String возвращает code типа.
func (t TaskType) String() string {
	return string(t)
}

// ParseTaskType парсит тип по code или имени, без учёта регистра.
func ParseTaskType(s string) (TaskType, error) {
	normalized := strings.TrimSpace(s)
	if normalized == "" {
		return "", fmt.Errorf("%w: task type is required", ErrValidation)
	}
	if t, ok := taskTypeNames[strings.ToUpper(normalized)]; ok {
		return t, nil
	}
	for _, t := range TaskTypes() {
		if strings.EqualFold(string(t), normalized) {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown task type: %s", ErrValidation, s)
}

// Task — единица работы для внешнего воркера.
//
// Task создаётся через API или генератором, изменяется Dispatcher'ом.
// Автоматически task не удаляется; явное удаление каскадно удаляет artifacts.
type Task struct {
	// ID — уникальный идентификатор, неизменен после создания.
	ID uuid.UUID `json:"id"`

	// Type — тип task (закрытое перечисление).
	Type TaskType `json:"type"`

	// Status — текущий статус.
	Status TaskStatus `json:"status"`

	// Payload — входные данные для воркера. Никогда не nil после NewTask.
	Payload Document `json:"payload"`

	// Result — результат, присланный воркером (может отсутствовать).
	Result Document `json:"result,omitempty"`

	// LastError — текст последней ошибки воркера.
	LastError string `json:"last_error,omitempty"`

	// CreatedAt — время создания, не меняется.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTask создаёт task в статусе READY.
func NewTask(taskType TaskType, payload Document, now time.Time) *Task {
	if payload == nil {
		payload = Document{}
	}
	return &Task{
		ID:        uuid.New(),
		Type:      taskType,
		Status:    TaskStatusReady,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// MarkClaimed переводит task в IN_PROGRESS и очищает последнюю ошибку.
func (t *Task) MarkClaimed(now time.Time) {
	t.Status = TaskStatusInProgress
	t.LastError = ""
	t.touch(now)
}

// MarkSucceeded переводит task в SUCCEEDED с результатом.
func (t *Task) MarkSucceeded(result Document, now time.Time) {
	t.Status = TaskStatusSucceeded
	t.Result = result
	t.LastError = ""
	t.touch(now)
}

// MarkFailed переводит task в FAILED. result перезаписывается, только если передан.
func (t *Task) MarkFailed(errMsg string, result Document, now time.Time) {
	t.Status = TaskStatusFailed
	t.LastError = errMsg
	if result != nil {
		t.Result = result
	}
	t.touch(now)
}

// PatchPayload выставляет поле payload.
func (t *Task) PatchPayload(key string, value any, now time.Time) {
	if t.Payload == nil {
		t.Payload = Document{}
	}
	t.Payload[key] = value
	t.touch(now)
}

// Clone возвращает глубокую копию task.
func (t *Task) Clone() *Task {
	c := *t
	c.Payload = t.Payload.Clone()
	c.Result = t.Result.Clone()
	return &c
}

// LiveCardNumber возвращает номер карты из payload — ключ дедупликации
// для живых (READY/IN_PROGRESS) task.
func (t *Task) LiveCardNumber() string {
	return t.Payload.Text(CardNumberKeys...)
}

// touch обновляет UpdatedAt. Время не идёт назад относительно предыдущего значения.
func (t *Task) touch(now time.Time) {
	if !now.After(t.UpdatedAt) {
		now = t.UpdatedAt.Add(time.Microsecond)
	}
	t.UpdatedAt = now
}
