package migrations

import "embed"

// Files — SQL-миграции, применяются по возрастанию имени файла.
//
//go:embed *.sql
var Files embed.FS
