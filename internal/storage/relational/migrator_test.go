package relational

import (
	"context"
	"slices"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

func TestLoadMigrationsFromFS_Success(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/sqlite/0001_init.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
		"sql/sqlite/0001_init.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_a;"),
		},
		"sql/sqlite/0002_more.up.sql": {
			Data: []byte("CREATE TABLE test_b (id INT);"),
		},
		"sql/sqlite/0002_more.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_b;"),
		},
	}

	migrations, err := loadMigrationsFromFS(fsys, DriverSQLite.migrationsGlob())
	if err != nil {
		t.Fatalf("loadMigrationsFromFS failed: %v", err)
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

func TestLoadMigrationsFromFS_MissingDown(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/sqlite/0001_init.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
	}

	_, err := loadMigrationsFromFS(fsys, DriverSQLite.migrationsGlob())
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "both up and down") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadMigrationsFromFS_InvalidFilename(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/sqlite/not_a_migration.sql": {
			Data: []byte("SELECT 1;"),
		},
	}

	_, err := loadMigrationsFromFS(fsys, DriverSQLite.migrationsGlob())
	if err == nil {
		t.Fatal("expected error for invalid migration file name")
	}
}

func TestLoadMigrationsFromFS_EmptyFile(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/sqlite/0001_init.up.sql": {
			Data: []byte("   \n"),
		},
		"sql/sqlite/0001_init.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test;"),
		},
	}

	_, err := loadMigrationsFromFS(fsys, DriverSQLite.migrationsGlob())
	if err == nil {
		t.Fatal("expected error for empty migration file body")
	}
}

func TestLoadMigrationsFromFS_DialectsAreIsolated(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/postgres/0001_init.up.sql":   {Data: []byte("CREATE TABLE pg_only (id BIGINT);")},
		"sql/postgres/0001_init.down.sql": {Data: []byte("DROP TABLE pg_only;")},
	}

	if _, err := loadMigrationsFromFS(fsys, DriverSQLite.migrationsGlob()); err == nil {
		t.Fatal("expected error: sqlite must not pick up postgres migrations")
	}
	migrations, err := loadMigrationsFromFS(fsys, DriverPostgres.migrationsGlob())
	if err != nil || len(migrations) != 1 {
		t.Fatalf("expected one postgres migration, got %d (%v)", len(migrations), err)
	}
}

func TestEmbeddedMigrations_SameVersionsForAllDialects(t *testing.T) {
	t.Parallel()

	pg, err := loadMigrationsFromFS(migrationsFS, DriverPostgres.migrationsGlob())
	if err != nil {
		t.Fatalf("load postgres migrations: %v", err)
	}
	lite, err := loadMigrationsFromFS(migrationsFS, DriverSQLite.migrationsGlob())
	if err != nil {
		t.Fatalf("load sqlite migrations: %v", err)
	}
	if len(pg) != len(lite) {
		t.Fatalf("dialects diverged: postgres=%d sqlite=%d", len(pg), len(lite))
	}
	for i := range pg {
		if pg[i].Version != lite[i].Version || pg[i].Name != lite[i].Name {
			t.Fatalf("migration %d differs: %+v vs %+v", i, pg[i], lite[i])
		}
	}
}

func TestMigrator_SQLiteLifecycle(t *testing.T) {
	runMigratorLifecycle(t, sqliteStore(t))
}

func TestMigrator_PostgresLifecycle(t *testing.T) {
	store := postgresStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Сначала сбрасываем состояние миграций.
	if err := store.MigrateDown(ctx, 100); err != nil {
		t.Fatalf("migrate down reset: %v", err)
	}
	runMigratorLifecycle(t, store)
}

func runMigratorLifecycle(t *testing.T, store *Store) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	assertStatus := func(stage string, want MigrationState) {
		t.Helper()
		got, err := store.MigrationStatus(ctx)
		if err != nil {
			t.Fatalf("migration status %s: %v", stage, err)
		}
		if got != want {
			t.Fatalf("unexpected status %s: %+v, want %+v", stage, got, want)
		}
	}

	assertStatus("on empty database", MigrationState{Pending: 2})

	if err := store.MigrateUp(ctx, 1); err != nil {
		t.Fatalf("migrate up 1: %v", err)
	}
	assertStatus("after up 1", MigrationState{Version: 1, Applied: 1, Pending: 1})

	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("migrate up all: %v", err)
	}
	assertStatus("after up all", MigrationState{Version: 2, Applied: 2})

	// Повторный up ничего не меняет.
	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("idempotent migrate up: %v", err)
	}
	assertStatus("after idempotent up", MigrationState{Version: 2, Applied: 2})

	if err := store.MigrateDown(ctx, 1); err != nil {
		t.Fatalf("migrate down 1: %v", err)
	}
	assertStatus("after down 1", MigrationState{Version: 1, Applied: 1, Pending: 1})

	if err := store.MigrateDown(ctx, 0); err != nil {
		t.Fatalf("migrate down default step: %v", err)
	}
	assertStatus("after down default", MigrationState{Pending: 2})

	if err := store.MigrateDown(ctx, 1); err != nil {
		t.Fatalf("migrate down on empty should be no-op: %v", err)
	}
}

func TestMigrator_GuardsAndUnsupportedDirection(t *testing.T) {
	var nilStore *Store
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := nilStore.MigrateUp(ctx, 0); err == nil {
		t.Fatal("expected error for nil store MigrateUp")
	}
	if err := nilStore.MigrateDown(ctx, 1); err == nil {
		t.Fatal("expected error for nil store MigrateDown")
	}
	if _, err := nilStore.MigrationStatus(ctx); err == nil {
		t.Fatal("expected error for nil store MigrationStatus")
	}

	store := sqliteStore(t)
	if err := store.migrate(ctx, migrationDirection("invalid"), 0); err == nil {
		t.Fatal("expected unsupported direction error")
	}
}

func TestPlanMigrations(t *testing.T) {
	t.Parallel()

	known := []migration{
		{Version: 1, Name: "orders"},
		{Version: 2, Name: "items"},
		{Version: 5, Name: "outbox"},
	}
	versions := func(plan []migrationStep) []int64 {
		out := make([]int64, 0, len(plan))
		for _, step := range plan {
			out = append(out, step.Version)
		}
		return out
	}

	tests := []struct {
		name      string
		applied   []int64
		direction migrationDirection
		steps     int
		want      []int64
	}{
		{name: "up from scratch", direction: migrationUp, want: []int64{1, 2, 5}},
		{name: "up limited", direction: migrationUp, steps: 2, want: []int64{1, 2}},
		{name: "up fills gap", applied: []int64{1, 5}, direction: migrationUp, want: []int64{2}},
		{name: "up nothing left", applied: []int64{1, 2, 5}, direction: migrationUp, want: []int64{}},
		{name: "down newest first", applied: []int64{1, 2, 5}, direction: migrationDown, steps: 2, want: []int64{5, 2}},
		{name: "down unlimited", applied: []int64{1, 2}, direction: migrationDown, want: []int64{2, 1}},
		{name: "down on empty", direction: migrationDown, steps: 1, want: []int64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := planMigrations(known, tt.applied, tt.direction, tt.steps)
			if err != nil {
				t.Fatalf("planMigrations: %v", err)
			}
			if got := versions(plan); !slices.Equal(got, tt.want) {
				t.Fatalf("planned versions = %v, want %v", got, tt.want)
			}
			for _, step := range plan {
				if step.direction != tt.direction {
					t.Fatalf("step %d has direction %s", step.Version, step.direction)
				}
			}
		})
	}
}

func TestPlanMigrations_RollbackOfUnknownVersion(t *testing.T) {
	t.Parallel()

	known := []migration{{Version: 1, Name: "orders"}}
	if _, err := planMigrations(known, []int64{1, 7}, migrationDown, 1); err == nil {
		t.Fatal("expected error for applied version without migration files")
	}
}

func TestMigrationStep_Bookkeeping(t *testing.T) {
	t.Parallel()

	m := migration{Version: 3, Name: "payments", UpSQL: "CREATE TABLE p (id INT);", DownSQL: "DROP TABLE p;"}

	up := migrationStep{migration: m, direction: migrationUp}
	query, args := up.bookkeeping(DriverPostgres)
	if !strings.Contains(query, "INSERT INTO schema_migrations") || !strings.Contains(query, "$2") {
		t.Fatalf("unexpected up bookkeeping query: %s", query)
	}
	if len(args) != 2 || args[0] != int64(3) || args[1] != "payments" {
		t.Fatalf("unexpected up bookkeeping args: %v", args)
	}
	if up.script() != m.UpSQL {
		t.Fatalf("up step must run the up script, got %q", up.script())
	}

	down := migrationStep{migration: m, direction: migrationDown}
	query, args = down.bookkeeping(DriverSQLite)
	if !strings.Contains(query, "DELETE FROM schema_migrations") || !strings.Contains(query, "?") {
		t.Fatalf("unexpected down bookkeeping query: %s", query)
	}
	if len(args) != 1 || args[0] != int64(3) {
		t.Fatalf("unexpected down bookkeeping args: %v", args)
	}
	if down.script() != m.DownSQL {
		t.Fatalf("down step must run the down script, got %q", down.script())
	}
}
