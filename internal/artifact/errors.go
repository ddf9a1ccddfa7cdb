package artifact

import "errors"

var (
	// ErrStorage — сбой записи или хеширования содержимого.
	ErrStorage = errors.New("artifact storage failure")

	// ErrBlobNotFound — содержимое по storage path отсутствует.
	ErrBlobNotFound = errors.New("artifact blob not found")
)
