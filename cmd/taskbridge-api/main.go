// TaskBridge API — HTTP-сервис очереди tasks для внешних воркеров.
//
// Сервис:
//   - Выдаёт tasks воркерам и принимает результаты
//   - Хранит artifacts (файловая система или MinIO)
//   - Ведёт цикл redeem-sync, порождающий tasks для помеченных anycards
//   - Публикует события tasks в RabbitMQ и принимает сигналы anycard.flagged
//
// Без RABBITMQ_URL сервис работает без обмена сообщениями.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/taskbridge/internal/api"
	"github.com/shaiso/taskbridge/internal/artifact"
	"github.com/shaiso/taskbridge/internal/config"
	"github.com/shaiso/taskbridge/internal/dispatch"
	"github.com/shaiso/taskbridge/internal/mq"
	"github.com/shaiso/taskbridge/internal/redeem"
	"github.com/shaiso/taskbridge/internal/repo"
	"github.com/shaiso/taskbridge/internal/scheduler"
	"github.com/shaiso/taskbridge/internal/telemetry"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger("taskbridge-api")
	logger.Info("starting taskbridge-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = telemetry.WithLogger(ctx, logger)

	shutdownTracing, err := telemetry.SetupTracing(ctx, "taskbridge-api", cfg.Tracing)
	if err != nil {
		logger.Error("failed to setup tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}
	store := repo.NewPostgresStore(pool)

	blob, err := newBlob(ctx, cfg.Artifacts)
	if err != nil {
		logger.Error("failed to init artifact storage", "backend", cfg.Artifacts.Backend, "error", err)
		os.Exit(1)
	}
	artifacts := artifact.NewStore(artifact.Config{Repo: store, Blob: blob, Logger: logger})

	// RabbitMQ подключается при первой публикации
	conns := mq.NewLazyConnection(cfg.RabbitMQURL, logger)
	defer conns.Close()
	publisher := mq.NewPublisher(conns, logger)

	redeemCfg := redeem.Config{Logger: logger}
	dispatcher := dispatch.New(dispatch.Config{
		Store:     store,
		Artifacts: artifacts,
		Registry:  dispatch.NewRegistry(redeemCfg),
		Events:    publisher,
		Logger:    logger,
	})

	if cfg.RabbitMQURL != "" {
		go runFlaggedConsumer(ctx, conns, redeem.NewFlagger(store, redeemCfg))
	}

	loop, err := scheduler.NewLoop(scheduler.Config{
		Name:            "redeem-sync",
		Schedule:        cfg.RedeemSync.Spec(),
		DefaultDuration: cfg.RedeemSync.Duration,
		Job: func(ctx context.Context) error {
			_, err := dispatcher.SyncGenerators(ctx)
			return err
		},
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to create redeem sync loop", "error", err)
		os.Exit(1)
	}
	defer loop.Stop()
	if cfg.RedeemSync.Autostart {
		loop.Start(0)
	}

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		Dispatcher:     dispatcher,
		Artifacts:      artifacts,
		Sync:           loop,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s messaging=%s", time.Since(startTime), conns.Health())
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := cfg.Addr()
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}

func newBlob(ctx context.Context, cfg config.ArtifactsConfig) (artifact.Blob, error) {
	if cfg.Backend == config.BackendMinio {
		return artifact.NewMinioBlob(ctx, artifact.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	}
	return artifact.NewFSBlob(cfg.Dir)
}

// runFlaggedConsumer принимает сигналы anycard.flagged.
// Если брокер недоступен, сервис продолжает работу без consumer.
func runFlaggedConsumer(ctx context.Context, conns *mq.LazyConnection, flagger *redeem.Flagger) {
	logger := telemetry.FromContext(ctx)

	conn, err := conns.Get(ctx)
	if err != nil {
		logger.Warn("RabbitMQ not available, flagged signals disabled", "error", err)
		return
	}

	consumer := mq.NewConsumer(conn, logger, mq.ConsumerConfig{
		Queue:   mq.QueueAnycardFlagged,
		Handler: mq.FlaggedHandler(flagger),
	})
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("flagged consumer stopped", "error", err)
	}
}
