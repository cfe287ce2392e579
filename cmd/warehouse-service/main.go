package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/warehouse/internal/app"
	"github.com/vladislavdragonenkov/warehouse/internal/version"
)

const (
	envLogLevel            = "WAREHOUSE_LOG_LEVEL"
	envGRPCAddr            = "WAREHOUSE_GRPC_ADDR"
	envMetricsAddr         = "WAREHOUSE_METRICS_ADDR"
	envStorageDriver       = "WAREHOUSE_STORAGE_DRIVER"
	envPostgresDSN         = "WAREHOUSE_POSTGRES_DSN"
	envPostgresAutoMigrate = "WAREHOUSE_POSTGRES_AUTO_MIGRATE"
	envKafkaBrokers        = "KAFKA_BROKERS"
	envEventsTopic         = "WAREHOUSE_EVENTS_TOPIC"
	envOutboxPollInterval  = "WAREHOUSE_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "WAREHOUSE_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "WAREHOUSE_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "WAREHOUSE_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending    = "WAREHOUSE_OUTBOX_MAX_PENDING"
	envTracing             = "WAREHOUSE_TRACING"
	envOTLPEndpoint        = "OTEL_EXPORTER_OTLP_ENDPOINT"
)

type envLookup func(key string) (string, bool)

// readConfigFromEnv накладывает переменные окружения на app.DefaultConfig.
// Некорректные значения не применяются и возвращаются как предупреждения.
func readConfigFromEnv(lookup envLookup) (app.Config, []error) {
	cfg := app.DefaultConfig()
	var warnings []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envPostgresDSN, &cfg.PostgresDSN)
	str(envEventsTopic, &cfg.EventsTopic)
	str(envOTLPEndpoint, &cfg.OTLPEndpoint)
	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(envTracing); ok && strings.TrimSpace(v) != "" {
		cfg.TracingMode = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = app.ParseBrokers(v)
	}

	if v, ok := lookup(envPostgresAutoMigrate); ok {
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", envPostgresAutoMigrate, err))
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	intVar := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	intVar(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	intVar(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	intVar(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0")

	durationVar := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	durationVar(envOutboxPollInterval, &cfg.OutboxPollInterval, func(v time.Duration) bool { return v > 0 }, "must be > 0")
	durationVar(envOutboxRetryDelay, &cfg.OutboxRetryDelay, func(v time.Duration) bool { return v >= 0 }, "must be >= 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}

func main() {
	if err := app.ConfigureLogging(os.Getenv(envLogLevel)); err != nil {
		log.WithError(err).Warn("invalid log level, using info")
	}

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.WithError(warning).Warn("ignoring invalid configuration value")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_brokers":  cfg.KafkaBrokers,
		"version":        version.String(),
	}).Info("запускаем warehouse service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("warehouse service остановлен")
}
