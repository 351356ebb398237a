package relational

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Driver называет поддерживаемый SQL-диалект.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// ParseDriver разбирает имя диалекта из конфигурации.
func ParseDriver(raw string) (Driver, error) {
	driver := Driver(strings.ToLower(strings.TrimSpace(raw)))
	if err := driver.validate(); err != nil {
		return "", err
	}
	return driver, nil
}

func (d Driver) validate() error {
	switch d {
	case DriverPostgres, DriverSQLite:
		return nil
	default:
		return fmt.Errorf("unsupported relational driver %q", string(d))
	}
}

func (d Driver) sqlDriverName() string {
	if d == DriverPostgres {
		return "pgx"
	}
	return "sqlite"
}

func (d Driver) migrationsGlob() string {
	return "sql/" + string(d) + "/*.sql"
}

func (d Driver) migrationTableDDL() string {
	if d == DriverPostgres {
		return `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	}
	return `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`
}

// readTxOptions задаёт изоляцию чтения агрегата. В SQLite транзакция и так
// держит единственное соединение пула, писатель не вклинится между запросами.
func (d Driver) readTxOptions() *sql.TxOptions {
	if d == DriverPostgres {
		return &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead}
	}
	return nil
}

// rebind переписывает плейсхолдеры "?" в "$n" для PostgreSQL.
// Запросы пакета не содержат "?" внутри строковых литералов.
func (d Driver) rebind(query string) string {
	if d != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// sqlState возвращает SQLSTATE ошибки PostgreSQL для логов; пусто для остальных.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
