package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// defaultDialTimeout ограничивает подключение и объявление топологии.
const defaultDialTimeout = 10 * time.Second

// ErrUnavailable — обмен сообщениями недоступен (не настроен или
// подключение не удалось).
var ErrUnavailable = errors.New("messaging unavailable")

// LoadState — состояние однократной загрузки соединения.
type LoadState int

const (
	StateUnattempted LoadState = iota
	StateLoaded
	StateUnavailable
)

func (s LoadState) String() string {
	switch s {
	case StateUnattempted:
		return "unattempted"
	case StateLoaded:
		return "loaded"
	case StateUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("LoadState(%d)", int(s))
	}
}

// DialFunc открывает соединение и готовит топологию.
type DialFunc func(ctx context.Context) (*Connection, error)

// LazyConnection подключается к RabbitMQ при первом обращении.
//
// Попытка делается ровно один раз: после неудачи состояние остаётся
// StateUnavailable и Get сразу возвращает ErrUnavailable.
// Подключение идёт без мьютекса и не зависит от отмены ctx вызывающего.
type LazyConnection struct {
	dial        DialFunc
	dialTimeout time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	state   LoadState
	conn    *Connection
	cause   error
	loading chan struct{}
}

// NewLazyConnection создаёт загрузчик для url. Пустой url отключает
// обмен сообщениями без попытки подключения.
func NewLazyConnection(url string, logger *slog.Logger) *LazyConnection {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(url) == "" {
		return NewLazyConnectionWithDial(nil, logger)
	}
	return NewLazyConnectionWithDial(func(ctx context.Context) (*Connection, error) {
		conn, err := NewConnection(url, logger)
		if err != nil {
			return nil, err
		}
		if err := SetupTopology(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setup topology: %w", err)
		}
		logger.Debug(TopologyInfo())
		return conn, nil
	}, logger)
}

// NewLazyConnectionWithDial создаёт загрузчик с произвольной функцией
// подключения. dial == nil означает "обмен сообщениями отключён".
func NewLazyConnectionWithDial(dial DialFunc, logger *slog.Logger) *LazyConnection {
	if logger == nil {
		logger = slog.Default()
	}
	l := &LazyConnection{dial: dial, dialTimeout: defaultDialTimeout, logger: logger}
	if dial == nil {
		l.state = StateUnavailable
		l.cause = errors.New("not configured")
	}
	return l
}

// Get возвращает соединение, подключаясь при первом вызове.
//
// Пока идёт подключение, остальные вызовы ждут его результата или
// отмены своего ctx. Отмена ctx не делает обмен сообщениями недоступным:
// подключение выполняется с собственным таймаутом.
func (l *LazyConnection) Get(ctx context.Context) (*Connection, error) {
	l.mu.Lock()
	for l.loading != nil {
		wait := l.loading
		l.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		l.mu.Lock()
	}

	switch l.state {
	case StateLoaded:
		defer l.mu.Unlock()
		return l.conn, nil
	case StateUnavailable:
		defer l.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, l.cause)
	}

	done := make(chan struct{})
	l.loading = done
	l.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.dialTimeout)
	conn, err := l.dial(dialCtx)
	cancel()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loading = nil
	close(done)

	if err != nil {
		l.state = StateUnavailable
		l.cause = err
		l.logger.Warn("messaging disabled: RabbitMQ unavailable", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if l.state != StateUnattempted {
		// Close пришёл во время подключения.
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, l.cause)
	}

	l.state = StateLoaded
	l.conn = conn
	return conn, nil
}

// State возвращает текущее состояние загрузки.
func (l *LazyConnection) State() LoadState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Health описывает состояние обмена сообщениями для /healthz:
// "connected", "reconnecting" (соединение потеряно, идёт reconnect)
// или состояние загрузки.
func (l *LazyConnection) Health() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateLoaded {
		return l.state.String()
	}
	if l.conn != nil && l.conn.IsConnected() {
		return "connected"
	}
	return "reconnecting"
}

// Close закрывает соединение, если оно было открыто. После Close
// Get возвращает ErrUnavailable.
func (l *LazyConnection) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateUnavailable
	l.cause = errors.New("closed")
	if l.conn == nil {
		return nil
	}
	err := l.conn.Close()
	l.conn = nil
	return err
}
