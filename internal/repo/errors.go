package repo

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrCorruptDocument — сохранённый payload/result не парсится.
	ErrCorruptDocument = errors.New("corrupt stored document")
)

// pgUniqueViolation — SQLSTATE нарушения уникального индекса.
const pgUniqueViolation = "23505"

// isUniqueViolation проверяет, что ошибка — нарушение уникальности в Postgres.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
