package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Blob — хранилище содержимого artifacts.
type Blob interface {
	// Put сохраняет поток под ключом key и возвращает location,
	// по которому содержимое читается и удаляется, и число записанных байт.
	Put(ctx context.Context, key string, r io.Reader, contentType string) (location string, size int64, err error)

	// Open открывает содержимое. Отсутствие возвращает ErrBlobNotFound.
	Open(ctx context.Context, location string) (io.ReadCloser, error)

	// Remove удаляет содержимое. Отсутствие возвращает ErrBlobNotFound.
	Remove(ctx context.Context, location string) error
}

// FSBlob хранит содержимое в локальном каталоге.
// Location — абсолютный путь к файлу.
type FSBlob struct {
	root string
}

// NewFSBlob создаёт FSBlob с корнем dir (создаётся при необходимости).
func NewFSBlob(dir string) (*FSBlob, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve artifacts dir: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	return &FSBlob{root: root}, nil
}

// Root возвращает абсолютный путь корня.
func (b *FSBlob) Root() string {
	return b.root
}

// Put пишет поток во временный файл и атомарно переименовывает его.
func (b *FSBlob) Put(ctx context.Context, key string, r io.Reader, _ string) (string, int64, error) {
	path := filepath.Join(b.root, filepath.FromSlash(key))
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	n, err := io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if err != nil {
		_ = tmp.Close()
		return "", 0, fmt.Errorf("write content: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", 0, fmt.Errorf("sync content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, fmt.Errorf("close content: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", 0, fmt.Errorf("rename content: %w", err)
	}
	return path, n, nil
}

// Open открывает файл по абсолютному пути.
func (b *FSBlob) Open(_ context.Context, location string) (io.ReadCloser, error) {
	f, err := os.Open(location)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open content: %w", err)
	}
	return f, nil
}

// Remove удаляет файл и пустой каталог task.
func (b *FSBlob) Remove(_ context.Context, location string) error {
	err := os.Remove(location)
	if errors.Is(err, os.ErrNotExist) {
		return ErrBlobNotFound
	}
	if err != nil {
		return fmt.Errorf("remove content: %w", err)
	}
	// Каталог task удаляется, только если он пуст.
	if dir := filepath.Dir(location); dir != b.root {
		_ = os.Remove(dir)
	}
	return nil
}

// contextReader прерывает копирование при отмене контекста.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
