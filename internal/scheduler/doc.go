// Package scheduler — отменяемый периодический цикл с одним слотом выполнения.
//
// Loop запускает Job по расписанию (cron-выражение или "@every <duration>"),
// не допускает наложения запусков и останавливается сам по истечении
// заданной длительности. Ошибки запусков записываются в Status и не
// прерывают следующие запуски.
//
// Структура:
//   - scheduler.go — Loop (Start, Stop, Status)
//   - cron.go      — парсинг расписаний и адаптер логгера для robfig/cron
//
// Использование:
//
//	loop, err := scheduler.NewLoop(scheduler.Config{
//	    Name:     "redeem-sync",
//	    Schedule: "@every 10s",
//	    Job:      func(ctx context.Context) error { ... },
//	    Logger:   logger,
//	})
//
//	loop.Start(2 * time.Hour)
//	defer loop.Stop()
package scheduler
