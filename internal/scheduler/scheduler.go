package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/taskbridge/internal/telemetry"
)

// Job — одна итерация цикла.
type Job func(ctx context.Context) error

// Config — конфигурация Loop.
type Config struct {
	// Name — имя цикла для логов.
	Name string

	// Schedule — расписание запусков (default: "@every 10s").
	Schedule string

	// DefaultDuration — длительность, если Start вызван с 0 (default: 2h).
	DefaultDuration time.Duration

	Job    Job
	Logger *slog.Logger

	// Now — источник времени; по умолчанию time.Now().UTC().
	Now func() time.Time
}

// Status — состояние цикла.
type Status struct {
	Running   bool       `json:"running"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndAt     *time.Time `json:"end_at,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Runs      int        `json:"runs"`
}

// Loop — периодический цикл с одним активным запуском.
type Loop struct {
	name            string
	schedule        cron.Schedule
	defaultDuration time.Duration
	job             Job
	logger          *slog.Logger
	now             func() time.Time

	// slot — единственная активная итерация; переживает Stop/Start.
	slot sync.Mutex

	mu     sync.Mutex
	gen    uint64
	cron   *cron.Cron
	cancel context.CancelFunc
	timer  *time.Timer
	status Status
}

// NewLoop создаёт остановленный Loop.
func NewLoop(cfg Config) (*Loop, error) {
	if cfg.Job == nil {
		return nil, errors.New("scheduler: job is required")
	}
	spec := cfg.Schedule
	if spec == "" {
		spec = EverySpec(10 * time.Second)
	}
	schedule, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = "loop"
	}
	duration := cfg.DefaultDuration
	if duration <= 0 {
		duration = 2 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Loop{
		name:            name,
		schedule:        schedule,
		defaultDuration: duration,
		job:             cfg.Job,
		logger:          logger.With("loop", name),
		now:             now,
	}, nil
}

// Start запускает цикл на duration (0 — DefaultDuration).
// Если цикл уже работает, ничего не меняет и возвращает текущий статус.
// Первая итерация выполняется сразу; если итерация прошлого запуска
// ещё не завершилась, первая ждёт её окончания.
func (l *Loop) Start(duration time.Duration) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status.Running {
		return l.snapshot()
	}
	if duration <= 0 {
		duration = l.defaultDuration
	}

	l.gen++
	gen := l.gen
	ctx, cancel := context.WithCancel(context.Background())

	now := l.now()
	endAt := now.Add(duration)
	l.status.Running = true
	l.status.StartedAt = &now
	l.status.EndAt = &endAt
	l.status.LastError = ""

	cronLog := cronLogger{logger: l.logger}
	job := cron.NewChain(
		cron.Recover(cronLog),
		cron.SkipIfStillRunning(cronLog),
	).Then(cron.FuncJob(func() { l.runOnce(ctx, gen, false) }))

	c := cron.New(cron.WithLogger(cronLog))
	c.Schedule(l.schedule, job)
	c.Start()

	l.cron = c
	l.cancel = cancel
	l.timer = time.AfterFunc(duration, func() { l.expire(gen) })

	go l.runOnce(ctx, gen, true)

	l.logger.Info("loop started", "end_at", endAt)
	return l.snapshot()
}

// Stop останавливает цикл и отменяет текущую итерацию.
func (l *Loop) Stop() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.status.Running {
		l.stopLocked()
		l.logger.Info("loop stopped")
	}
	return l.snapshot()
}

// Status возвращает копию состояния.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

// expire останавливает цикл по истечении срока, если он не был перезапущен.
func (l *Loop) expire(gen uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if gen != l.gen || !l.status.Running {
		return
	}
	l.stopLocked()
	l.logger.Info("loop finished", "runs", l.status.Runs)
}

func (l *Loop) stopLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	if l.cron != nil {
		l.cron.Stop()
		l.cron = nil
	}
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.status.Running = false
}

// runOnce выполняет итерацию в slot. Тик расписания при занятом slot
// пропускается, первая итерация запуска (wait) ждёт освобождения.
func (l *Loop) runOnce(ctx context.Context, gen uint64, wait bool) {
	if wait {
		l.slot.Lock()
	} else if !l.slot.TryLock() {
		l.logger.Debug("previous iteration still running, tick skipped")
		return
	}
	defer l.slot.Unlock()

	if ctx.Err() != nil {
		return
	}

	err := l.safeRun(ctx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return
	}
	now := l.now()
	l.status.LastRunAt = &now
	l.status.Runs++
	if err != nil {
		l.status.LastError = err.Error()
		telemetry.SyncRuns.WithLabelValues(l.name, "error").Inc()
		l.logger.Warn("loop iteration failed", "error", err)
		return
	}
	l.status.LastError = ""
	telemetry.SyncRuns.WithLabelValues(l.name, "ok").Inc()
}

// safeRun превращает панику Job в ошибку итерации.
func (l *Loop) safeRun(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return l.job(ctx)
}

func (l *Loop) snapshot() Status {
	s := l.status
	s.StartedAt = copyTime(s.StartedAt)
	s.EndAt = copyTime(s.EndAt)
	s.LastRunAt = copyTime(s.LastRunAt)
	return s
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
