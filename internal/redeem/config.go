package redeem

import (
	"log/slog"
	"time"
)

// Config — общие зависимости компонентов пакета.
type Config struct {
	Logger *slog.Logger

	// Now — источник времени; по умолчанию time.Now().UTC().
	Now func() time.Time
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c Config) clock() func() time.Time {
	if c.Now == nil {
		return func() time.Time { return time.Now().UTC() }
	}
	return c.Now
}
