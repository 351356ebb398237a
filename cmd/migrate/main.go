// Command migrate применяет, откатывает и показывает миграции схемы заказов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/storage/relational"
)

const defaultTimeout = 30 * time.Second

type action string

const (
	actionUp     action = "up"
	actionDown   action = "down"
	actionStatus action = "status"
)

type config struct {
	driver  relational.Driver
	dsn     string
	action  action
	steps   int
	timeout time.Duration
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.WithError(err).Fatal("invalid arguments")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		log.WithError(err).WithField("action", cfg.action).Fatal("migration failed")
	}
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	var (
		cfg        config
		driverName string
		actionName string
	)

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.StringVar(&driverName, "driver", "", "database dialect: postgres|sqlite (fallback: OMS_STORAGE_DRIVER, then postgres)")
	fs.StringVar(&actionName, "direction", string(actionUp), "migration direction: up|down|status")
	fs.IntVar(&cfg.steps, "steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	fs.StringVar(&cfg.dsn, "dsn", "", "database DSN (fallback: OMS_POSTGRES_DSN or OMS_SQLITE_PATH)")
	fs.DurationVar(&cfg.timeout, "timeout", defaultTimeout, "overall deadline for the command")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if fs.NArg() > 0 {
		return config{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if driverName = strings.TrimSpace(driverName); driverName == "" {
		driverName = strings.TrimSpace(getenv("OMS_STORAGE_DRIVER"))
		// memory подходит сервису, но мигрировать в нём нечего.
		if driverName == "" || driverName == "memory" {
			driverName = string(relational.DriverPostgres)
		}
	}
	driver, err := relational.ParseDriver(driverName)
	if err != nil {
		return config{}, err
	}
	cfg.driver = driver

	switch a := action(strings.ToLower(strings.TrimSpace(actionName))); a {
	case actionUp, actionDown, actionStatus:
		cfg.action = a
	default:
		return config{}, fmt.Errorf("unsupported direction %q (use up|down|status)", actionName)
	}

	if cfg.steps < 0 {
		return config{}, errors.New("-steps must not be negative")
	}
	if cfg.action == actionDown && cfg.steps == 0 {
		cfg.steps = 1
	}
	if cfg.timeout <= 0 {
		return config{}, errors.New("-timeout must be positive")
	}

	if cfg.dsn = strings.TrimSpace(cfg.dsn); cfg.dsn == "" {
		cfg.dsn = strings.TrimSpace(getenv(dsnEnvKey(driver)))
	}
	if cfg.dsn == "" {
		return config{}, fmt.Errorf("%s (or -dsn) is required", dsnEnvKey(driver))
	}
	return cfg, nil
}

func dsnEnvKey(driver relational.Driver) string {
	if driver == relational.DriverSQLite {
		return "OMS_SQLITE_PATH"
	}
	return "OMS_POSTGRES_DSN"
}

// run выполняет действие и печатает итоговое состояние схемы в out.
func run(ctx context.Context, cfg config, out io.Writer) error {
	store, err := relational.Open(ctx, cfg.driver, cfg.dsn)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.driver, err)
	}
	defer store.Close()

	switch cfg.action {
	case actionUp:
		err = store.MigrateUp(ctx, cfg.steps)
	case actionDown:
		err = store.MigrateDown(ctx, cfg.steps)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", cfg.action, err)
	}

	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	log.WithFields(log.Fields{
		"driver":  cfg.driver,
		"action":  cfg.action,
		"version": state.Version,
		"applied": state.Applied,
		"pending": state.Pending,
	}).Info("migrations done")

	_, err = fmt.Fprintf(out, "%s %s: version=%d applied=%d pending=%d\n",
		cfg.driver, cfg.action, state.Version, state.Applied, state.Pending)
	return err
}
