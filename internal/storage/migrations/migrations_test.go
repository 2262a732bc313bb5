package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	_ "github.com/glebarez/go-sqlite"
)

const testGlob = "sql/migrations/*.sql"

func TestLoad_Success(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0002_more.up.sql":   {Data: []byte("CREATE TABLE test_b (id INT);")},
		"sql/migrations/0002_more.down.sql": {Data: []byte("DROP TABLE IF EXISTS test_b;")},
		"sql/migrations/0001_init.up.sql":   {Data: []byte("CREATE TABLE test_a (id INT);")},
		"sql/migrations/0001_init.down.sql": {Data: []byte("DROP TABLE IF EXISTS test_a;")},
	}

	migrations, err := Load(fsys, testGlob)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "init" {
		t.Fatalf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[1].Version != 2 || migrations[1].Name != "more" {
		t.Fatalf("unexpected second migration: %+v", migrations[1])
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fsys    fstest.MapFS
		wantMsg string
	}{
		{
			name: "missing down",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql": {Data: []byte("CREATE TABLE a (id INT);")},
			},
			wantMsg: "both up and down",
		},
		{
			name: "invalid name",
			fsys: fstest.MapFS{
				"sql/migrations/not_a_migration.sql": {Data: []byte("SELECT 1;")},
			},
			wantMsg: "invalid migration file name",
		},
		{
			name: "empty body",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":   {Data: []byte("   \n")},
				"sql/migrations/0001_init.down.sql": {Data: []byte("DROP TABLE IF EXISTS a;")},
			},
			wantMsg: "empty",
		},
		{
			name: "name mismatch",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":    {Data: []byte("CREATE TABLE a (id INT);")},
				"sql/migrations/0001_other.down.sql": {Data: []byte("DROP TABLE IF EXISTS a;")},
			},
			wantMsg: "name mismatch",
		},
		{
			name:    "no files",
			fsys:    fstest.MapFS{},
			wantMsg: "no migration files",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(tc.fsys, testGlob)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRunner_UpDownStatusOnSQLite(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrations.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	migrations, err := Load(fstest.MapFS{
		"sql/migrations/0001_init.up.sql":   {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"sql/migrations/0001_init.down.sql": {Data: []byte("DROP TABLE a;")},
		"sql/migrations/0002_more.up.sql":   {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"sql/migrations/0002_more.down.sql": {Data: []byte("DROP TABLE b;")},
	}, testGlob)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	runner := NewRunner(db, Dialect{
		TableDDL: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}, migrations)

	ctx := context.Background()
	if err := runner.Up(ctx, 1); err != nil {
		t.Fatalf("up 1: %v", err)
	}
	version, count, err := runner.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if version != 1 || count != 1 {
		t.Fatalf("expected version=1 count=1, got version=%d count=%d", version, count)
	}

	if err := runner.Up(ctx, 0); err != nil {
		t.Fatalf("up all: %v", err)
	}
	// повторный up ничего не делает
	if err := runner.Up(ctx, 0); err != nil {
		t.Fatalf("up again: %v", err)
	}
	version, count, _ = runner.Status(ctx)
	if version != 2 || count != 2 {
		t.Fatalf("expected version=2 count=2, got version=%d count=%d", version, count)
	}

	if err := runner.Down(ctx, 0); err != nil {
		t.Fatalf("down: %v", err)
	}
	version, count, _ = runner.Status(ctx)
	if version != 1 || count != 1 {
		t.Fatalf("expected version=1 count=1 after down, got version=%d count=%d", version, count)
	}
	if _, err := db.ExecContext(ctx, "INSERT INTO b (id) VALUES (1)"); err == nil {
		t.Fatal("table b should be dropped after rollback")
	}
}
