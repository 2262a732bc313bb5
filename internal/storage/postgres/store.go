// Package postgres хранит принятые сервером заказы в PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrEmptyDSN возвращается, если строка подключения не задана.
var ErrEmptyDSN = errors.New("postgres dsn is required")

type options struct {
	connTimeout  time.Duration
	maxOpenConns int
	maxIdleConns int
	connLifetime time.Duration
	connIdleTime time.Duration
	migrate      bool
}

func defaultOptions() options {
	return options{
		connTimeout:  5 * time.Second,
		maxOpenConns: 10,
		maxIdleConns: 5,
		connLifetime: 30 * time.Minute,
		connIdleTime: 5 * time.Minute,
	}
}

// Option настраивает Open.
type Option func(*options)

// WithConnTimeout ограничивает время ping при открытии и в health check.
func WithConnTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connTimeout = d
		}
	}
}

// WithPoolSize задаёт размер пула; idle не превышает open.
func WithPoolSize(maxOpen, maxIdle int) Option {
	return func(o *options) {
		if maxOpen > 0 {
			o.maxOpenConns = maxOpen
		}
		if maxIdle >= 0 {
			o.maxIdleConns = min(maxIdle, o.maxOpenConns)
		}
	}
}

// WithMigrations применяет все up-миграции received_orders сразу после подключения.
func WithMigrations() Option {
	return func(o *options) { o.migrate = true }
}

// Store владеет пулом подключений order-api к PostgreSQL.
type Store struct {
	db          *sql.DB
	connTimeout time.Duration
}

// Open подключается к базе и проверяет её доступность. При ошибке пул закрыт.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, ErrEmptyDSN
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(o.maxIdleConns)
	db.SetConnMaxLifetime(o.connLifetime)
	db.SetConnMaxIdleTime(o.connIdleTime)

	store := &Store{db: db, connTimeout: o.connTimeout}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if o.migrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
	}

	return store, nil
}

// DB отдаёт пул репозиториям пакета и служебным тестам.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping используется как health check "storage".
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.connTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Close закрывает пул. Повторный вызов и nil-Store безопасны.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
