package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/foodies/internal/health"
	"github.com/vladislavdragonenkov/foodies/internal/orderstore"
	"github.com/vladislavdragonenkov/foodies/internal/storage/memory"
	"github.com/vladislavdragonenkov/foodies/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/foodies/internal/storage/redis"
	"github.com/vladislavdragonenkov/foodies/internal/storage/sqlite"
)

const ordersFileName = "orders.db"

// orderBackendOpener возвращает Opener выбранного backend. Открытие
// откладывается до первого обращения к хранилищу.
func orderBackendOpener(cfg ClientConfig, logger *log.Entry) (orderstore.Opener, error) {
	switch OrderStoreDriver(strings.ToLower(strings.TrimSpace(string(cfg.OrderStore)))) {
	case OrderStoreMemory:
		return func(context.Context) (domain.OrderBackend, error) {
			logger.Warn("order store is in-memory, orders are lost on restart")
			return memory.NewOrderBackend(), nil
		}, nil
	case OrderStoreSQLite, "":
		path := filepath.Join(cfg.DataDir, ordersFileName)
		return func(ctx context.Context) (domain.OrderBackend, error) {
			store, err := sqlite.Open(ctx, path)
			if err != nil {
				return nil, err
			}
			logger.WithField("path", path).Info("sqlite order store opened")
			return sqlite.NewOrderBackend(store), nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported order store driver: %s", cfg.OrderStore)
	}
}

type cacheDeps struct {
	storage domain.CacheStorage
	checker healthcheck.Checker
	closeFn func() error
}

// initCacheStorage открывает хранилище поколений кеша.
func initCacheStorage(ctx context.Context, cfg ClientConfig, logger *log.Entry) (cacheDeps, error) {
	switch CacheDriver(strings.ToLower(strings.TrimSpace(string(cfg.CacheDriver)))) {
	case CacheDriverMemory, "":
		return cacheDeps{storage: memory.NewCacheStorage()}, nil
	case CacheDriverRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return cacheDeps{}, errors.New("redis cache driver requires FOODIES_REDIS_ADDR")
		}
		store, err := redisstore.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			return cacheDeps{}, fmt.Errorf("open redis cache storage: %w", err)
		}
		logger.WithField("addr", cfg.RedisAddr).Info("redis cache storage connected")
		return cacheDeps{
			storage: store,
			checker: healthcheck.NewSimpleChecker("cache-storage", store.Ping),
			closeFn: store.Close,
		}, nil
	default:
		return cacheDeps{}, fmt.Errorf("unsupported cache driver: %s", cfg.CacheDriver)
	}
}

type serverDeps struct {
	repo           domain.ReceivedOrderRepository
	storageChecker healthcheck.Checker
	closeFn        func() error
}

// initReceivedOrders открывает хранилище принятых заказов.
func initReceivedOrders(ctx context.Context, cfg ServerConfig, logger *log.Entry) (serverDeps, error) {
	switch StorageDriver(strings.ToLower(strings.TrimSpace(string(cfg.StorageDriver)))) {
	case StorageDriverMemory, "":
		return serverDeps{repo: memory.NewReceivedOrderRepository()}, nil
	case StorageDriverPostgres:
		var opts []postgres.Option
		if cfg.PostgresAutoMigrate {
			opts = append(opts, postgres.WithMigrations())
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN, opts...)
		if errors.Is(err, postgres.ErrEmptyDSN) {
			return serverDeps{}, errors.New("postgres storage driver requires FOODIES_POSTGRES_DSN")
		}
		if err != nil {
			return serverDeps{}, fmt.Errorf("open postgres store: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			logger.Info("postgres migrations applied")
		}
		return serverDeps{
			repo:           postgres.NewReceivedOrderRepository(store),
			storageChecker: healthcheck.NewSimpleChecker("storage", store.Ping),
			closeFn:        store.Close,
		}, nil
	default:
		return serverDeps{}, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
}
