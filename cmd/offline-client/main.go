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
	envLogLevel      = "FOODIES_LOG_LEVEL"
	envListenAddr    = "FOODIES_LISTEN_ADDR"
	envOriginURL     = "FOODIES_ORIGIN_URL"
	envRemoteURL     = "FOODIES_REMOTE_URL"
	envDataDir       = "FOODIES_DATA_DIR"
	envOrderStore    = "FOODIES_ORDER_STORE"
	envCacheDriver   = "FOODIES_CACHE_DRIVER"
	envRedisAddr     = "FOODIES_REDIS_ADDR"
	envManifest      = "FOODIES_MANIFEST"
	envProbeInterval = "FOODIES_PROBE_INTERVAL"
	envHTTPTimeout   = "FOODIES_HTTP_TIMEOUT"
)

type envLookup func(string) (string, bool)

// setupLogger настраивает формат и уровень логирования.
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

// readConfigFromEnv переопределяет настройки по умолчанию из окружения.
// Некорректные значения не применяются и возвращаются как предупреждения.
func readConfigFromEnv(lookup envLookup) (app.ClientConfig, []string) {
	cfg := app.DefaultClientConfig()
	var warnings []string

	setString := func(key string, target *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	setString(envListenAddr, &cfg.ListenAddr)
	setString(envOriginURL, &cfg.OriginURL)
	setString(envRemoteURL, &cfg.RemoteURL)
	setString(envDataDir, &cfg.DataDir)
	setString(envRedisAddr, &cfg.RedisAddr)
	setString(envManifest, &cfg.ManifestPath)

	if v, ok := lookup(envOrderStore); ok && strings.TrimSpace(v) != "" {
		driver := app.OrderStoreDriver(strings.ToLower(strings.TrimSpace(v)))
		switch driver {
		case app.OrderStoreSQLite, app.OrderStoreMemory:
			cfg.OrderStore = driver
		default:
			warnings = append(warnings, fmt.Sprintf("%s: unsupported driver %q", envOrderStore, v))
		}
	}
	if v, ok := lookup(envCacheDriver); ok && strings.TrimSpace(v) != "" {
		driver := app.CacheDriver(strings.ToLower(strings.TrimSpace(v)))
		switch driver {
		case app.CacheDriverMemory, app.CacheDriverRedis:
			cfg.CacheDriver = driver
		default:
			warnings = append(warnings, fmt.Sprintf("%s: unsupported driver %q", envCacheDriver, v))
		}
	}

	positive := func(d time.Duration) bool { return d > 0 }
	for key, target := range map[string]*time.Duration{
		envProbeInterval: &cfg.ProbeInterval,
		envHTTPTimeout:   &cfg.HTTPTimeout,
	} {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		parsed, err := parseDuration(v, positive, "must be > 0")
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
			continue
		}
		*target = parsed
	}

	return cfg, warnings
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, fmt.Errorf("%s, got %s", rule, value)
	}
	return value, nil
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
		"listen_addr": cfg.ListenAddr,
		"origin":      cfg.OriginURL,
		"order_store": cfg.OrderStore,
		"cache":       cfg.CacheDriver,
	}).Info("запускаем offline-client")

	if err := app.RunClient(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("offline-client завершился с ошибкой")
	}

	log.Info("offline-client остановлен")
}
