// Package sqlite — локальное долговременное хранилище заказов на SQLite (pure Go).
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/vladislavdragonenkov/foodies/internal/storage/migrations"
)

const (
	defaultConnTimeout = 5 * time.Second
	migrationsGlob     = "sql/migrations/*.sql"
	migrationTableDDL  = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

// Store оборачивает файл SQLite. Одно соединение — один писатель за раз.
type Store struct {
	db *sql.DB
}

// Open открывает (создавая при необходимости) базу по пути и применяет миграции.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	store := &Store{db: db}
	if err := store.MigrateUp(ctx, 0); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// DB возвращает raw SQL DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность базы.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store is not initialized")
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// MigrateUp применяет up-миграции локальной схемы.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	runner, err := s.runner()
	if err != nil {
		return err
	}
	if err := runner.Up(ctx, steps); err != nil {
		return fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return nil
}

// MigrateDown откатывает последние steps миграций локальной схемы.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	runner, err := s.runner()
	if err != nil {
		return err
	}
	if err := runner.Down(ctx, steps); err != nil {
		return fmt.Errorf("rollback sqlite schema: %w", err)
	}
	return nil
}

// MigrationStatus возвращает текущую версию схемы и количество применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	runner, err := s.runner()
	if err != nil {
		return 0, 0, err
	}
	return runner.Status(ctx)
}

func (s *Store) runner() (*migrations.Runner, error) {
	set, err := migrations.Load(migrationsFS, migrationsGlob)
	if err != nil {
		return nil, err
	}
	return migrations.NewRunner(s.db, migrations.Dialect{TableDDL: migrationTableDDL}, set), nil
}

// Close закрывает базу.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
