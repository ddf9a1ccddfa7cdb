package domain

import "errors"

// Ошибки уровня домена. Ошибки хранилища (not found, conflict) живут в repo.
var (
	// ErrValidation — некорректный или отсутствующий обязательный вход.
	// Операция не имеет эффекта.
	ErrValidation = errors.New("validation failed")

	// ErrConsistency — нарушена связность данных (например, task ссылается
	// на anycard, которой нет). Никогда не глушится.
	ErrConsistency = errors.New("consistency violation")
)
