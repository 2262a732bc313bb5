package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vladislavdragonenkov/foodies/internal/storage/migrations"
)

const (
	migrationsGlob    = "sql/migrations/*.sql"
	migrationLockKey  = int64(10824701)
	migrationTableDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

// postgresDialect сериализует миграции между репликами через advisory lock.
var postgresDialect = migrations.Dialect{
	TableDDL:    migrationTableDDL,
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	Lock: func(ctx context.Context, conn *sql.Conn) (func(), error) {
		lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
			return nil, err
		}
		return func() {
			_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
		}, nil
	},
}

// MigrateUp применяет up-миграции.
// steps=0 означает "применить все доступные".
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	runner, err := s.runner()
	if err != nil {
		return err
	}
	return runner.Up(ctx, steps)
}

// MigrateDown откатывает миграции.
// steps<=0 интерпретируется как 1 шаг.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	runner, err := s.runner()
	if err != nil {
		return err
	}
	return runner.Down(ctx, steps)
}

// MigrationStatus возвращает текущую версию и количество применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	runner, err := s.runner()
	if err != nil {
		return 0, 0, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return runner.Status(queryCtx)
}

func (s *Store) runner() (*migrations.Runner, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("postgres store is not initialized")
	}
	set, err := migrations.Load(migrationsFS, migrationsGlob)
	if err != nil {
		return nil, fmt.Errorf("load postgres migrations: %w", err)
	}
	return migrations.NewRunner(s.db, postgresDialect, set), nil
}
