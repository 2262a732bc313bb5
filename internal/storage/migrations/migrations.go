// Package migrations применяет версионированные SQL-миграции из embed.FS
// к PostgreSQL и SQLite через database/sql.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// Migration хранит up/down скрипты одной версии.
type Migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// Dialect описывает различия драйверов.
type Dialect struct {
	// TableDDL создаёт таблицу schema_migrations(version, name, applied_at).
	TableDDL string
	// Placeholder возвращает n-й (с 1) плейсхолдер параметра.
	Placeholder func(n int) string
	// Lock берёт межпроцессную блокировку на время миграции; nil — без блокировки.
	Lock func(ctx context.Context, conn *sql.Conn) (unlock func(), err error)
}

// Runner применяет миграции к одной базе.
type Runner struct {
	db         *sql.DB
	dialect    Dialect
	migrations []Migration
}

type direction string

const (
	directionUp   direction = "up"
	directionDown direction = "down"
)

// NewRunner создаёт Runner для уже загруженного набора миграций.
func NewRunner(db *sql.DB, dialect Dialect, migrations []Migration) *Runner {
	if dialect.Placeholder == nil {
		dialect.Placeholder = func(int) string { return "?" }
	}
	return &Runner{db: db, dialect: dialect, migrations: migrations}
}

// Up применяет up-миграции. steps=0 означает "применить все доступные".
func (r *Runner) Up(ctx context.Context, steps int) error {
	return r.migrate(ctx, directionUp, steps)
}

// Down откатывает миграции. steps<=0 интерпретируется как 1 шаг.
func (r *Runner) Down(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return r.migrate(ctx, directionDown, steps)
}

// Status возвращает текущую версию и количество применённых миграций.
func (r *Runner) Status(ctx context.Context) (int64, int, error) {
	if r == nil || r.db == nil {
		return 0, 0, errors.New("migration runner is not initialized")
	}
	if _, err := r.db.ExecContext(ctx, r.dialect.TableDDL); err != nil {
		return 0, 0, fmt.Errorf("ensure migration table: %w", err)
	}

	var (
		version int64
		count   int
	)
	if err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0), COUNT(*)
		FROM schema_migrations
	`).Scan(&version, &count); err != nil {
		return 0, 0, fmt.Errorf("query migration status: %w", err)
	}

	return version, count, nil
}

func (r *Runner) migrate(ctx context.Context, dir direction, steps int) error {
	if r == nil || r.db == nil {
		return errors.New("migration runner is not initialized")
	}

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	if r.dialect.Lock != nil {
		unlock, err := r.dialect.Lock(ctx, conn)
		if err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		defer unlock()
	}

	if _, err := conn.ExecContext(ctx, r.dialect.TableDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	switch dir {
	case directionUp:
		return r.applyUp(ctx, conn, steps)
	case directionDown:
		return r.applyDown(ctx, conn, steps)
	default:
		return fmt.Errorf("unsupported migration direction: %s", dir)
	}
}

func (r *Runner) applyUp(ctx context.Context, conn *sql.Conn, steps int) error {
	applied, err := r.loadAppliedVersions(ctx, conn)
	if err != nil {
		return err
	}

	appliedSteps := 0
	for _, m := range r.migrations {
		if applied[m.Version] {
			continue
		}
		if err := r.applyOne(ctx, conn, m, directionUp); err != nil {
			return err
		}
		appliedSteps++
		if steps > 0 && appliedSteps >= steps {
			break
		}
	}

	return nil
}

func (r *Runner) applyDown(ctx context.Context, conn *sql.Conn, steps int) error {
	byVersion := make(map[int64]Migration, len(r.migrations))
	for _, m := range r.migrations {
		byVersion[m.Version] = m
	}

	applied, err := r.loadAppliedVersions(ctx, conn)
	if err != nil {
		return err
	}
	versions := make([]int64, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
	if len(versions) > steps {
		versions = versions[:steps]
	}

	for _, version := range versions {
		m, ok := byVersion[version]
		if !ok {
			return fmt.Errorf("cannot rollback unknown migration version %d", version)
		}
		if err := r.applyOne(ctx, conn, m, directionDown); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) applyOne(ctx context.Context, conn *sql.Conn, m Migration, dir direction) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx (%s %d): %w", dir, m.Version, err)
	}

	body := m.UpSQL
	if dir == directionDown {
		body = m.DownSQL
	}
	if _, err := tx.ExecContext(ctx, body); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("execute %s migration %d_%s: %w", dir, m.Version, m.Name, err)
	}

	p := r.dialect.Placeholder
	if dir == directionUp {
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO schema_migrations (version, name) VALUES (%s, %s)`, p(1), p(2)),
			m.Version, m.Name,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM schema_migrations WHERE version = %s`, p(1)),
			m.Version,
		)
	}
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record %s migration %d_%s: %w", dir, m.Version, m.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %d_%s: %w", dir, m.Version, m.Name, err)
	}

	return nil
}

func (r *Runner) loadAppliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration version: %w", err)
		}
		result[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}

	return result, nil
}

// Load читает файлы вида NNNN_name.(up|down).sql по glob-шаблону.
func Load(fsys fs.FS, glob string) ([]Migration, error) {
	files, err := fs.Glob(fsys, glob)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	builders := make(map[int64]*Migration)
	for _, file := range files {
		base := path.Base(file)
		matches := migrationFilePattern.FindStringSubmatch(base)
		if len(matches) != 4 {
			return nil, fmt.Errorf("invalid migration file name: %s", base)
		}

		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version from %s: %w", base, err)
		}
		name, dir := matches[2], matches[3]

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		m, ok := builders[version]
		if !ok {
			m = &Migration{Version: version, Name: name}
			builders[version] = m
		} else if m.Name != name {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, m.Name, name)
		}

		switch direction(dir) {
		case directionUp:
			if m.UpSQL != "" {
				return nil, fmt.Errorf("duplicate up migration for version %d", version)
			}
			m.UpSQL = body
		case directionDown:
			if m.DownSQL != "" {
				return nil, fmt.Errorf("duplicate down migration for version %d", version)
			}
			m.DownSQL = body
		}
	}

	result := make([]Migration, 0, len(builders))
	for _, m := range builders {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration %d_%s must have both up and down files", m.Version, m.Name)
		}
		result = append(result, *m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })

	return result, nil
}
