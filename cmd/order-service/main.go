package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/app"
	"github.com/vladislavdragonenkov/ordercore/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) []string {
	var warnings []string

	format, _ := nonEmpty(lookup, envLogFormat)
	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
		warnings = append(warnings, envLogFormat+"="+format+" ignored: use text|json")
	}

	level := log.InfoLevel
	if raw, ok := nonEmpty(lookup, envLogLevel); ok {
		parsed, err := log.ParseLevel(raw)
		if err != nil {
			warnings = append(warnings, envLogLevel+"="+raw+" ignored: "+err.Error())
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)

	return warnings
}

// loadConfig собирает конфигурацию: значения по умолчанию, YAML-файл, затем окружение.
func loadConfig(lookup envLookup) (app.Config, []string, error) {
	cfg := app.DefaultConfig()
	if path, ok := nonEmpty(lookup, envConfigFile); ok {
		var err error
		if cfg, err = loadConfigFile(path, cfg); err != nil {
			return cfg, nil, err
		}
	}
	cfg, warnings := applyEnv(cfg, lookup)
	return cfg, warnings, nil
}

func main() {
	// .env не перекрывает уже заданные переменные окружения.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Warn("failed to load .env file")
	}

	warnings := setupLogger(os.LookupEnv)
	cfg, cfgWarnings, err := loadConfig(os.LookupEnv)
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}
	for _, w := range append(warnings, cfgWarnings...) {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":      version.GetVersion(),
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"kafka":        cfg.KafkaBrokers != "",
	}).Info("запускаем OrderService")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("OrderService остановлен")
}
