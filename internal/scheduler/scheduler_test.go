package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// waitFor ждёт выполнения условия не дольше timeout.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("условие не выполнено за %s", timeout)
}

func TestNewLoop_Validation(t *testing.T) {
	if _, err := NewLoop(Config{}); err == nil {
		t.Error("ожидалась ошибка без job")
	}
	job := func(context.Context) error { return nil }
	if _, err := NewLoop(Config{Job: job, Schedule: "not a schedule"}); err == nil {
		t.Error("ожидалась ошибка для неверного расписания")
	}
	if _, err := NewLoop(Config{Job: job, Schedule: "*/5 * * * *"}); err != nil {
		t.Errorf("cron-выражение: %v", err)
	}
}

func TestLoop_StartRunsImmediately(t *testing.T) {
	var runs atomic.Int32
	loop, err := NewLoop(Config{
		Schedule: EverySpec(time.Hour),
		Job: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	defer loop.Stop()

	st := loop.Start(time.Minute)
	if !st.Running || st.EndAt == nil || st.StartedAt == nil {
		t.Fatalf("status = %+v", st)
	}
	if got := st.EndAt.Sub(*st.StartedAt); got != time.Minute {
		t.Errorf("endAt - startedAt = %s", got)
	}

	waitFor(t, 2*time.Second, func() bool { return loop.Status().LastRunAt != nil })
	if runs.Load() != 1 {
		t.Errorf("runs = %d", runs.Load())
	}
}

func TestLoop_StartWhileRunningIsNoOp(t *testing.T) {
	loop, _ := NewLoop(Config{Job: func(context.Context) error { return nil }})
	defer loop.Stop()

	first := loop.Start(time.Minute)
	second := loop.Start(time.Hour)
	if !second.EndAt.Equal(*first.EndAt) {
		t.Errorf("повторный Start изменил endAt: %s -> %s", first.EndAt, second.EndAt)
	}
}

func TestLoop_StopCancelsJob(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	loop, _ := NewLoop(Config{
		Schedule: EverySpec(time.Hour),
		Job: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return ctx.Err()
		},
	})

	loop.Start(time.Minute)
	<-started

	if st := loop.Stop(); st.Running {
		t.Fatalf("после Stop running = true")
	}
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("контекст итерации не отменён")
	}
}

func TestLoop_SelfTerminates(t *testing.T) {
	loop, _ := NewLoop(Config{Job: func(context.Context) error { return nil }})
	loop.Start(50 * time.Millisecond)

	waitFor(t, 2*time.Second, func() bool { return !loop.Status().Running })
}

func TestLoop_RecordsErrors(t *testing.T) {
	loop, _ := NewLoop(Config{
		Schedule: EverySpec(time.Hour),
		Job:      func(context.Context) error { return errors.New("mailbox unavailable") },
	})
	defer loop.Stop()

	loop.Start(time.Minute)
	waitFor(t, 2*time.Second, func() bool { return loop.Status().LastError != "" })

	st := loop.Status()
	if st.LastError != "mailbox unavailable" || !st.Running {
		t.Errorf("status = %+v", st)
	}
}

func TestLoop_RecoversPanics(t *testing.T) {
	loop, _ := NewLoop(Config{
		Schedule: EverySpec(time.Hour),
		Job:      func(context.Context) error { panic("boom") },
	})
	defer loop.Stop()

	loop.Start(time.Minute)
	waitFor(t, 2*time.Second, func() bool { return loop.Status().LastError != "" })
	if !loop.Status().Running {
		t.Error("паника остановила цикл")
	}
}

func TestLoop_Restart(t *testing.T) {
	var runs atomic.Int32
	loop, _ := NewLoop(Config{
		Schedule: EverySpec(time.Hour),
		Job: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	defer loop.Stop()

	loop.Start(time.Minute)
	waitFor(t, 2*time.Second, func() bool { return loop.Status().Runs == 1 })
	loop.Stop()

	loop.Start(time.Minute)
	waitFor(t, 2*time.Second, func() bool { return loop.Status().Runs == 2 })
	if st := loop.Status(); !st.Running || runs.Load() != 2 {
		t.Errorf("status = %+v, runs = %d", st, runs.Load())
	}
}

// Итерация, не реагирующая на отмену, не должна пересекаться с первой
// итерацией следующего запуска.
func TestLoop_RestartDoesNotOverlap(t *testing.T) {
	var active, maxActive, done atomic.Int32
	loop, _ := NewLoop(Config{
		Schedule: EverySpec(time.Hour),
		Job: func(context.Context) error {
			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(300 * time.Millisecond)
			active.Add(-1)
			done.Add(1)
			return nil
		},
	})
	defer loop.Stop()

	loop.Start(time.Minute)
	time.Sleep(50 * time.Millisecond)
	loop.Stop()
	loop.Start(time.Minute)

	waitFor(t, 3*time.Second, func() bool { return done.Load() == 2 })
	if got := maxActive.Load(); got != 1 {
		t.Errorf("одновременных итераций = %d, ожидалась 1", got)
	}
}
