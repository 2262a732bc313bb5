package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/foodies/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/foodies/internal/health"
)

func TestOrderBackendOpener_SQLite(t *testing.T) {
	t.Parallel()

	cfg := DefaultClientConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "nested")

	opener, err := orderBackendOpener(cfg, log.WithField("test", "sqlite-opener"))
	require.NoError(t, err)

	ctx := context.Background()
	backend, err := opener(ctx)
	require.NoError(t, err)
	defer backend.Close()

	id, err := backend.Add(ctx, domain.NewPendingRecord(domain.OrderPayload{"item": "burger"}, "ref-1", time.Now()))
	require.NoError(t, err)
	require.Equal(t, int64(1), id)

	_, err = os.Stat(filepath.Join(cfg.DataDir, ordersFileName))
	require.NoError(t, err)
}

func TestOrderBackendOpener_Memory(t *testing.T) {
	t.Parallel()

	cfg := DefaultClientConfig()
	cfg.OrderStore = " MeMoRy "

	opener, err := orderBackendOpener(cfg, log.WithField("test", "memory-opener"))
	require.NoError(t, err)
	backend, err := opener(context.Background())
	require.NoError(t, err)
	require.NoError(t, backend.Close())
}

func TestOrderBackendOpener_Unsupported(t *testing.T) {
	t.Parallel()

	cfg := DefaultClientConfig()
	cfg.OrderStore = "indexeddb"

	_, err := orderBackendOpener(cfg, log.WithField("test", "unsupported"))
	require.ErrorContains(t, err, "unsupported order store driver")
}

func TestInitCacheStorage(t *testing.T) {
	t.Parallel()

	cfg := DefaultClientConfig()
	deps, err := initCacheStorage(context.Background(), cfg, log.WithField("test", "cache"))
	require.NoError(t, err)
	require.NotNil(t, deps.storage)
	require.Nil(t, deps.checker)

	cfg.CacheDriver = CacheDriverRedis
	cfg.RedisAddr = " "
	_, err = initCacheStorage(context.Background(), cfg, log.WithField("test", "cache"))
	require.Error(t, err)

	cfg.CacheDriver = "localstorage"
	_, err = initCacheStorage(context.Background(), cfg, log.WithField("test", "cache"))
	require.ErrorContains(t, err, "unsupported cache driver")
}

func TestInitReceivedOrders_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initReceivedOrders(context.Background(), ServerConfig{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	require.NoError(t, err)
	require.NotNil(t, deps.repo)
	require.Nil(t, deps.closeFn)
}

func TestInitReceivedOrders_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initReceivedOrders(context.Background(), ServerConfig{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	require.Error(t, err)
}

func TestInitReceivedOrders_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initReceivedOrders(context.Background(), ServerConfig{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestInitReceivedOrders_PostgresSuccess(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("FOODIES_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultServerConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn

	deps, err := initReceivedOrders(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer func() { _ = deps.closeFn() }()

	require.NotNil(t, deps.repo)
	require.NotNil(t, deps.storageChecker)
	check := deps.storageChecker.Check(context.Background())
	require.Equal(t, healthcheck.StatusHealthy, check.Status)
}
