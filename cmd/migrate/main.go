package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/foodies/internal/storage/postgres"
	"github.com/vladislavdragonenkov/foodies/internal/storage/sqlite"
)

const (
	defaultTimeout = 30 * time.Second
)

// migrator объединяет хранилища с версионированной схемой.
type migrator interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (int64, int, error)
	Close() error
}

type options struct {
	driver    string
	direction string
	steps     int
	dsn       string
}

func main() {
	var opts options

	flag.StringVar(&opts.driver, "driver", "postgres", "storage driver: postgres (order-api) | sqlite (offline-client)")
	flag.StringVar(&opts.direction, "direction", "up", "migration direction: up|down|status")
	flag.IntVar(&opts.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	flag.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN or SQLite file path (fallback: FOODIES_POSTGRES_DSN for postgres)")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, opts, os.Stdout); err != nil {
		cancel()
		fail("%v", err)
	}
}

func run(ctx context.Context, opts options, out io.Writer) error {
	store, err := openStore(ctx, opts)
	if err != nil {
		return err
	}
	defer store.Close()

	switch strings.ToLower(strings.TrimSpace(opts.direction)) {
	case "up":
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("migrate up failed: %w", err)
		}
		return printStatus(ctx, store, out, "migrate up ok")
	case "down":
		steps := opts.steps
		if steps <= 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			return fmt.Errorf("migrate down failed: %w", err)
		}
		return printStatus(ctx, store, out, "migrate down ok")
	case "status":
		return printStatus(ctx, store, out, "migration status")
	default:
		return fmt.Errorf("unsupported direction: %s (use up|down|status)", opts.direction)
	}
}

func openStore(ctx context.Context, opts options) (migrator, error) {
	dsn := strings.TrimSpace(opts.dsn)

	switch strings.ToLower(strings.TrimSpace(opts.driver)) {
	case "postgres", "":
		if dsn == "" {
			dsn = strings.TrimSpace(os.Getenv("FOODIES_POSTGRES_DSN"))
		}
		if dsn == "" {
			return nil, fmt.Errorf("FOODIES_POSTGRES_DSN (or -dsn) is required")
		}
		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	case "sqlite":
		if dsn == "" {
			return nil, fmt.Errorf("-dsn with the sqlite file path is required")
		}
		store, err := sqlite.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s (use postgres|sqlite)", opts.driver)
	}
}

func printStatus(ctx context.Context, store migrator, out io.Writer, prefix string) error {
	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	_, err = fmt.Fprintf(out, "%s: version=%d applied=%d\n", prefix, version, count)
	return err
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
