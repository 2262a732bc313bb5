package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodies/internal/app"
)

const (
	envLogLevel            = "FOODIES_LOG_LEVEL"
	envAPIAddr             = "FOODIES_API_ADDR"
	envGRPCAddr            = "FOODIES_GRPC_ADDR"
	envMetricsAddr         = "FOODIES_METRICS_ADDR"
	envStorageDriver       = "FOODIES_STORAGE_DRIVER"
	envPostgresDSN         = "FOODIES_POSTGRES_DSN"
	envPostgresAutoMigrate = "FOODIES_POSTGRES_AUTO_MIGRATE"
	envKafkaBrokers        = "FOODIES_KAFKA_BROKERS"
	envKafkaTopic          = "FOODIES_KAFKA_TOPIC"
	envStaticDir           = "FOODIES_STATIC_DIR"
	envOrderRetention      = "FOODIES_ORDER_RETENTION"
	envRetentionInterval   = "FOODIES_RETENTION_INTERVAL"
)

type envLookup func(string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)
	if raw, ok := lookup(envLogLevel); ok && strings.TrimSpace(raw) != "" {
		level, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			log.WithError(err).Warnf("invalid %s, using info", envLogLevel)
			return
		}
		log.SetLevel(level)
	}
}

// readConfigFromEnv формирует конфигурацию order-api, позволяя переопределить
// значения по умолчанию через переменные окружения.
func readConfigFromEnv(lookup envLookup) (app.ServerConfig, []string) {
	cfg := app.DefaultServerConfig()
	var warnings []string

	setString := func(key string, target *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	setString(envAPIAddr, &cfg.APIAddr)
	setString(envGRPCAddr, &cfg.GRPCAddr)
	setString(envMetricsAddr, &cfg.MetricsAddr)
	setString(envPostgresDSN, &cfg.PostgresDSN)
	setString(envKafkaBrokers, &cfg.KafkaBrokers)
	setString(envKafkaTopic, &cfg.KafkaTopic)
	setString(envStaticDir, &cfg.StaticDir)

	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = app.StorageDriver(strings.ToLower(strings.TrimSpace(v)))
	}
	if v, ok := lookup(envPostgresAutoMigrate); ok && strings.TrimSpace(v) != "" {
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", envPostgresAutoMigrate, err))
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	if v, ok := lookup(envOrderRetention); ok && strings.TrimSpace(v) != "" {
		parsed, err := time.ParseDuration(strings.TrimSpace(v))
		switch {
		case err != nil:
			warnings = append(warnings, fmt.Sprintf("%s: %v", envOrderRetention, err))
		case parsed < 0:
			warnings = append(warnings, fmt.Sprintf("%s: must not be negative", envOrderRetention))
		default:
			cfg.OrderRetention = parsed
		}
	}
	if v, ok := lookup(envRetentionInterval); ok && strings.TrimSpace(v) != "" {
		parsed, err := time.ParseDuration(strings.TrimSpace(v))
		switch {
		case err != nil:
			warnings = append(warnings, fmt.Sprintf("%s: %v", envRetentionInterval, err))
		case parsed <= 0:
			warnings = append(warnings, fmt.Sprintf("%s: must be positive", envRetentionInterval))
		default:
			cfg.RetentionInterval = parsed
		}
	}

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

func main() {
	setupLogger(os.LookupEnv)
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"api_addr":     cfg.APIAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
	}).Info("запускаем order-api")

	if err := app.RunServer(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("order-api завершился с ошибкой")
	}

	log.Info("order-api остановлен")
}
