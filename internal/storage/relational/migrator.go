package relational

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	migrationLockKey    = int64(20531907)
	migrationLockWait   = 5 * time.Second
	migrationStatusWait = 5 * time.Second
)

//go:embed sql/postgres/*.sql sql/sqlite/*.sql
var migrationsFS embed.FS

var migrationFileName = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

type migrationDirection string

const (
	migrationUp   migrationDirection = "up"
	migrationDown migrationDirection = "down"
)

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

func (m migration) label() string {
	return fmt.Sprintf("%d_%s", m.Version, m.Name)
}

// migrationStep описывает одну миграцию вместе с направлением, в котором её надо выполнить.
type migrationStep struct {
	migration
	direction migrationDirection
}

func (s migrationStep) script() string {
	if s.direction == migrationDown {
		return s.DownSQL
	}
	return s.UpSQL
}

// bookkeeping возвращает запрос к schema_migrations, который фиксирует шаг.
func (s migrationStep) bookkeeping(driver Driver) (string, []any) {
	if s.direction == migrationDown {
		return driver.rebind(`DELETE FROM schema_migrations WHERE version = ?`), []any{s.Version}
	}
	return driver.rebind(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`), []any{s.Version, s.Name}
}

// MigrationState описывает состояние схемы относительно встроенных миграций.
type MigrationState struct {
	Version int64
	Applied int
	Pending int
}

// MigrateUp применяет up-миграции.
// steps=0 означает "применить все доступные".
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationUp, steps)
}

// MigrateDown откатывает миграции.
// steps<=0 интерпретируется как 1 шаг.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationDown, max(steps, 1))
}

// MigrationStatus возвращает текущую версию схемы, число применённых и ожидающих миграций.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationState, error) {
	if s == nil || s.db == nil {
		return MigrationState{}, errStoreNotInitialized
	}

	known, err := loadMigrationsFromFS(migrationsFS, s.driver.migrationsGlob())
	if err != nil {
		return MigrationState{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, migrationStatusWait)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, s.driver.migrationTableDDL()); err != nil {
		return MigrationState{}, fmt.Errorf("ensure migration table: %w", err)
	}
	applied, err := appliedVersions(queryCtx, s.db)
	if err != nil {
		return MigrationState{}, err
	}

	state := MigrationState{Applied: len(applied)}
	if len(applied) > 0 {
		state.Version = applied[len(applied)-1]
	}
	pending, err := planMigrations(known, applied, migrationUp, 0)
	if err != nil {
		return MigrationState{}, err
	}
	state.Pending = len(pending)
	return state, nil
}

var errStoreNotInitialized = errors.New("relational store is not initialized")

func (s *Store) migrate(ctx context.Context, direction migrationDirection, steps int) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	if direction != migrationUp && direction != migrationDown {
		return fmt.Errorf("unsupported migration direction: %s", direction)
	}

	known, err := loadMigrationsFromFS(migrationsFS, s.driver.migrationsGlob())
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	release, err := s.lockMigrations(ctx, conn)
	if err != nil {
		return err
	}
	defer release()

	if _, err := conn.ExecContext(ctx, s.driver.migrationTableDDL()); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}
	plan, err := planMigrations(known, applied, direction, steps)
	if err != nil {
		return err
	}
	for _, step := range plan {
		if err := runMigrationStep(ctx, conn, s.driver, step); err != nil {
			return err
		}
	}
	return nil
}

// planMigrations выбирает шаги для выполнения.
// applied отсортирован по возрастанию, steps<=0 снимает ограничение.
// Откат идёт от последней применённой версии, и каждая откатываемая версия должна быть известна.
func planMigrations(known []migration, applied []int64, direction migrationDirection, steps int) ([]migrationStep, error) {
	var plan []migrationStep
	full := func() bool { return steps > 0 && len(plan) >= steps }

	if direction == migrationUp {
		for _, m := range known {
			if full() {
				break
			}
			if _, done := slices.BinarySearch(applied, m.Version); !done {
				plan = append(plan, migrationStep{migration: m, direction: migrationUp})
			}
		}
		return plan, nil
	}

	for i := len(applied) - 1; i >= 0 && !full(); i-- {
		idx, ok := slices.BinarySearchFunc(known, applied[i], func(m migration, v int64) int {
			return cmp.Compare(m.Version, v)
		})
		if !ok {
			return nil, fmt.Errorf("cannot rollback unknown migration version %d", applied[i])
		}
		plan = append(plan, migrationStep{migration: known[idx], direction: migrationDown})
	}
	return plan, nil
}

// runMigrationStep выполняет скрипт и запись в schema_migrations одной транзакцией.
func runMigrationStep(ctx context.Context, conn *sql.Conn, driver Driver, step migrationStep) (err error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s migration %s: %w", step.direction, step.label(), err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, step.script()); err != nil {
		return fmt.Errorf("execute %s migration %s: %w", step.direction, step.label(), err)
	}
	query, args := step.bookkeeping(driver)
	if _, err = tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record %s migration %s: %w", step.direction, step.label(), err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %s: %w", step.direction, step.label(), err)
	}
	return nil
}

// lockMigrations сериализует миграции между экземплярами сервиса.
// В SQLite писатель и так один, блокировка не нужна.
func (s *Store) lockMigrations(ctx context.Context, conn *sql.Conn) (func(), error) {
	if s.driver != DriverPostgres {
		return func() {}, nil
	}

	lockCtx, cancel := context.WithTimeout(ctx, migrationLockWait)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	return func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}, nil
}

type rowQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// appliedVersions возвращает применённые версии по возрастанию.
func appliedVersions(ctx context.Context, q rowQuerier) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return versions, nil
}

// loadMigrationsFromFS собирает пары up/down по glob и сортирует их по версии.
func loadMigrationsFromFS(fsys fs.FS, glob string) ([]migration, error) {
	files, err := fs.Glob(fsys, glob)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	byVersion := make(map[int64]*migration, len(files)/2)
	for _, file := range files {
		version, name, direction, err := parseMigrationFileName(path.Base(file))
		if err != nil {
			return nil, err
		}
		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", file)
		}

		m := byVersion[version]
		if m == nil {
			m = &migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if m.Name != name {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, m.Name, name)
		}
		slot := &m.UpSQL
		if direction == migrationDown {
			slot = &m.DownSQL
		}
		if *slot != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %d", direction, version)
		}
		*slot = body
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m.label())
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}

func parseMigrationFileName(base string) (int64, string, migrationDirection, error) {
	parts := migrationFileName.FindStringSubmatch(base)
	if parts == nil {
		return 0, "", "", fmt.Errorf("invalid migration file name: %s", base)
	}
	version, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("parse migration version from %s: %w", base, err)
	}
	return version, parts[2], migrationDirection(parts[3]), nil
}
