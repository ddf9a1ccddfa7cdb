// Package config загружает конфигурацию сервисов taskbridge из окружения.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shaiso/taskbridge/internal/scheduler"
	"github.com/shaiso/taskbridge/internal/telemetry"
)

// Backend — хранилище содержимого artifacts.
const (
	BackendFS    = "fs"
	BackendMinio = "minio"
)

// Ключи конфигурации; каждому соответствует одноимённая переменная окружения.
const (
	KeyDBURL               = "db_url"
	KeyAPIPort             = "api_port"
	KeyArtifactsDir        = "artifacts_dir"
	KeyArtifactBackend     = "artifact_backend"
	KeyMinioEndpoint       = "minio_endpoint"
	KeyMinioAccessKey      = "minio_access_key"
	KeyMinioSecretKey      = "minio_secret_key"
	KeyMinioBucket         = "minio_bucket"
	KeyMinioUseSSL         = "minio_use_ssl"
	KeyRabbitMQURL         = "rabbitmq_url"
	KeyRedeemSyncInterval  = "redeem_sync_interval"
	KeyRedeemSyncSchedule  = "redeem_sync_schedule"
	KeyRedeemSyncDuration  = "redeem_sync_duration"
	KeyRedeemSyncAutostart = "redeem_sync_autostart"
	KeyMaxUploadBytes      = "max_upload_bytes"
	KeyOTelExporter        = "otel_exporter"
	KeyOTelEndpoint        = "otel_endpoint"
	KeyOTelInsecure        = "otel_insecure"
	KeyOTelSampleRatio     = "otel_sample_ratio"
)

var (
	ErrUnknownBackend        = errors.New("ARTIFACT_BACKEND must be fs or minio")
	ErrMinioEndpointRequired = errors.New("MINIO_ENDPOINT is required for the minio backend")
	ErrInvalidSyncInterval   = errors.New("REDEEM_SYNC_INTERVAL must be positive")
	ErrInvalidSyncSchedule   = errors.New("REDEEM_SYNC_SCHEDULE is not a valid cron expression")
	ErrInvalidSyncDuration   = errors.New("REDEEM_SYNC_DURATION must be positive")
	ErrInvalidUploadLimit    = errors.New("MAX_UPLOAD_BYTES must be positive")
	ErrInvalidPort           = errors.New("API_PORT is required")
	ErrUnknownExporter       = errors.New("OTEL_EXPORTER must be none, stdout or otlphttp")
	ErrInvalidSampleRatio    = errors.New("OTEL_SAMPLE_RATIO must be within [0, 1]")
)

// Config — конфигурация taskbridge-api.
type Config struct {
	// DBURL — пустое значение означает repo.DefaultDSN.
	DBURL   string
	APIPort string

	Artifacts ArtifactsConfig

	// RabbitMQURL — пустое значение отключает обмен сообщениями.
	RabbitMQURL string

	RedeemSync RedeemSyncConfig

	MaxUploadBytes int64

	Tracing telemetry.TracingConfig
}

// ArtifactsConfig — хранилище содержимого artifacts.
type ArtifactsConfig struct {
	Backend string
	Dir     string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// RedeemSyncConfig — фоновый цикл генерации redeem tasks.
type RedeemSyncConfig struct {
	Interval time.Duration

	// Schedule — cron-выражение или дескриптор; если задано, Interval
	// не используется.
	Schedule string

	Duration  time.Duration
	Autostart bool
}

// Spec возвращает расписание цикла для scheduler.
func (c RedeemSyncConfig) Spec() string {
	if c.Schedule != "" {
		return c.Schedule
	}
	return scheduler.EverySpec(c.Interval)
}

// Defaults выставляет значения по умолчанию.
func Defaults(v *viper.Viper) {
	v.SetDefault(KeyDBURL, "")
	v.SetDefault(KeyAPIPort, "8080")
	v.SetDefault(KeyArtifactsDir, "./data/artifacts")
	v.SetDefault(KeyArtifactBackend, BackendFS)
	v.SetDefault(KeyMinioBucket, "taskbridge-artifacts")
	v.SetDefault(KeyMinioUseSSL, false)
	v.SetDefault(KeyRabbitMQURL, "")
	v.SetDefault(KeyRedeemSyncInterval, 10*time.Second)
	v.SetDefault(KeyRedeemSyncSchedule, "")
	v.SetDefault(KeyRedeemSyncDuration, 2*time.Hour)
	v.SetDefault(KeyRedeemSyncAutostart, false)
	v.SetDefault(KeyMaxUploadBytes, int64(64<<20))
	v.SetDefault(KeyOTelExporter, telemetry.ExporterNone)
	v.SetDefault(KeyOTelEndpoint, "")
	v.SetDefault(KeyOTelInsecure, true)
	v.SetDefault(KeyOTelSampleRatio, 1.0)
}

// Load читает конфигурацию из окружения и проверяет её.
func Load() (*Config, error) {
	v := viper.New()
	Defaults(v)
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper собирает Config из подготовленного viper.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DBURL:   strings.TrimSpace(v.GetString(KeyDBURL)),
		APIPort: strings.TrimSpace(v.GetString(KeyAPIPort)),
		Artifacts: ArtifactsConfig{
			Backend:        strings.ToLower(strings.TrimSpace(v.GetString(KeyArtifactBackend))),
			Dir:            v.GetString(KeyArtifactsDir),
			MinioEndpoint:  strings.TrimSpace(v.GetString(KeyMinioEndpoint)),
			MinioAccessKey: v.GetString(KeyMinioAccessKey),
			MinioSecretKey: v.GetString(KeyMinioSecretKey),
			MinioBucket:    v.GetString(KeyMinioBucket),
			MinioUseSSL:    v.GetBool(KeyMinioUseSSL),
		},
		RabbitMQURL: strings.TrimSpace(v.GetString(KeyRabbitMQURL)),
		RedeemSync: RedeemSyncConfig{
			Interval:  v.GetDuration(KeyRedeemSyncInterval),
			Schedule:  strings.TrimSpace(v.GetString(KeyRedeemSyncSchedule)),
			Duration:  v.GetDuration(KeyRedeemSyncDuration),
			Autostart: v.GetBool(KeyRedeemSyncAutostart),
		},
		MaxUploadBytes: v.GetInt64(KeyMaxUploadBytes),
		Tracing: telemetry.TracingConfig{
			Exporter:    strings.ToLower(strings.TrimSpace(v.GetString(KeyOTelExporter))),
			Endpoint:    strings.TrimSpace(v.GetString(KeyOTelEndpoint)),
			Insecure:    v.GetBool(KeyOTelInsecure),
			SampleRatio: v.GetFloat64(KeyOTelSampleRatio),
		},
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate проверяет согласованность конфигурации.
func Validate(cfg *Config) error {
	if cfg.APIPort == "" {
		return ErrInvalidPort
	}
	switch cfg.Artifacts.Backend {
	case BackendFS:
	case BackendMinio:
		if cfg.Artifacts.MinioEndpoint == "" {
			return ErrMinioEndpointRequired
		}
	default:
		return ErrUnknownBackend
	}
	if cfg.RedeemSync.Schedule == "" && cfg.RedeemSync.Interval <= 0 {
		return ErrInvalidSyncInterval
	}
	if err := scheduler.ValidateSchedule(cfg.RedeemSync.Spec()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSyncSchedule, err)
	}
	if cfg.RedeemSync.Duration <= 0 {
		return ErrInvalidSyncDuration
	}
	if cfg.MaxUploadBytes <= 0 {
		return ErrInvalidUploadLimit
	}
	switch cfg.Tracing.Exporter {
	case "", telemetry.ExporterNone, telemetry.ExporterStdout, telemetry.ExporterOTLPHTTP:
	default:
		return ErrUnknownExporter
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		return ErrInvalidSampleRatio
	}
	return nil
}

// Addr — адрес HTTP сервера.
func (c *Config) Addr() string {
	return ":" + c.APIPort
}
