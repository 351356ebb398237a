package relational

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"
)

// postgresTestDSNEnv указывает на базу, которую тесты могут очищать.
const postgresTestDSNEnv = "OMS_POSTGRES_TEST_DSN"

type storeFactory func(t *testing.T) *Store

func openForTest(t *testing.T, driver Driver, dsn string) *Store {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := Open(ctx, driver, dsn)
	if err != nil {
		t.Fatalf("open %s store: %v", driver, err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func migrateForTest(t *testing.T, store *Store) *Store {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.MigrateUp(ctx, 0); err != nil {
		t.Fatalf("migrate %s store: %v", store.Driver(), err)
	}
	return store
}

// sqliteStore открывает изолированную in-memory базу без схемы.
func sqliteStore(t *testing.T) *Store {
	t.Helper()
	return openForTest(t, DriverSQLite, ":memory:")
}

func migratedSQLiteStore(t *testing.T) *Store {
	t.Helper()
	return migrateForTest(t, sqliteStore(t))
}

// postgresStore пропускает тест, если переменная с DSN не задана.
func postgresStore(t *testing.T) *Store {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv(postgresTestDSNEnv))
	if dsn == "" {
		t.Skipf("%s is not set", postgresTestDSNEnv)
	}
	return openForTest(t, DriverPostgres, dsn)
}

// migratedPostgresStore возвращает схему без данных от предыдущих тестов.
func migratedPostgresStore(t *testing.T) *Store {
	t.Helper()

	store := migrateForTest(t, postgresStore(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := store.DB().ExecContext(ctx, `TRUNCATE TABLE order_items, orders RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("clean postgres tables: %v", err)
	}
	return store
}
