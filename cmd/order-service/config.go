package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/ordercore/internal/app"
)

const (
	envConfigFile        = "OMS_CONFIG_FILE"
	envGRPCAddr          = "OMS_GRPC_ADDR"
	envMetricsAddr       = "OMS_METRICS_ADDR"
	envStorageDriver     = "OMS_STORAGE_DRIVER"
	envPostgresDSN       = "OMS_POSTGRES_DSN"
	envSQLitePath        = "OMS_SQLITE_PATH"
	envDBAutoMigrate     = "OMS_DB_AUTO_MIGRATE"
	envDBOpTimeout       = "OMS_DB_OP_TIMEOUT"
	envOrderCacheSize    = "OMS_ORDER_CACHE_SIZE"
	envGRPCRateLimit     = "OMS_GRPC_RATE_LIMIT"
	envGRPCRateBurst     = "OMS_GRPC_RATE_BURST"
	envKafkaBrokers      = "KAFKA_BROKERS"
	envKafkaGroup        = "OMS_KAFKA_GROUP"
	envKafkaCommandTopic = "OMS_KAFKA_COMMAND_TOPIC"
	envKafkaMaxRetries   = "OMS_KAFKA_MAX_RETRIES"
	envLogLevel          = "OMS_LOG_LEVEL"
	envLogFormat         = "OMS_LOG_FORMAT"
)

type envLookup func(string) (string, bool)

// fileConfig повторяет структуру YAML-файла. Отсутствующие ключи не меняют значения по умолчанию.
type fileConfig struct {
	GRPCAddr    *string `yaml:"grpc_addr"`
	MetricsAddr *string `yaml:"metrics_addr"`
	Storage     struct {
		Driver      *string `yaml:"driver"`
		PostgresDSN *string `yaml:"postgres_dsn"`
		SQLitePath  *string `yaml:"sqlite_path"`
		AutoMigrate *bool   `yaml:"auto_migrate"`
		OpTimeout   *string `yaml:"op_timeout"`
		CacheSize   *int    `yaml:"cache_size"`
	} `yaml:"storage"`
	RateLimit struct {
		RPS   *float64 `yaml:"rps"`
		Burst *int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Group        *string  `yaml:"group"`
		CommandTopic *string  `yaml:"command_topic"`
		MaxRetries   *int     `yaml:"max_retries"`
	} `yaml:"kafka"`
}

// loadConfigFile накладывает YAML-файл на cfg. Неизвестные ключи считаются ошибкой.
func loadConfigFile(path string, cfg app.Config) (app.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.GRPCAddr, fc.GRPCAddr)
	setString(&cfg.MetricsAddr, fc.MetricsAddr)
	if fc.Storage.Driver != nil {
		driver, err := app.ParseStorageDriver(*fc.Storage.Driver)
		if err != nil {
			return cfg, err
		}
		cfg.StorageDriver = driver
	}
	setString(&cfg.PostgresDSN, fc.Storage.PostgresDSN)
	setString(&cfg.SQLitePath, fc.Storage.SQLitePath)
	if fc.Storage.AutoMigrate != nil {
		cfg.DBAutoMigrate = *fc.Storage.AutoMigrate
	}
	if fc.Storage.OpTimeout != nil {
		timeout, err := parseDuration(*fc.Storage.OpTimeout, positiveDuration, "must be > 0")
		if err != nil {
			return cfg, fmt.Errorf("storage.op_timeout: %w", err)
		}
		cfg.DBOpTimeout = timeout
	}
	if fc.Storage.CacheSize != nil {
		if *fc.Storage.CacheSize < 0 {
			return cfg, fmt.Errorf("storage.cache_size: must be >= 0")
		}
		cfg.OrderCacheSize = *fc.Storage.CacheSize
	}
	if fc.RateLimit.RPS != nil {
		if *fc.RateLimit.RPS < 0 {
			return cfg, fmt.Errorf("rate_limit.rps: must be >= 0")
		}
		cfg.GRPCRateLimit = *fc.RateLimit.RPS
	}
	if fc.RateLimit.Burst != nil {
		if *fc.RateLimit.Burst <= 0 {
			return cfg, fmt.Errorf("rate_limit.burst: must be > 0")
		}
		cfg.GRPCRateBurst = *fc.RateLimit.Burst
	}
	if len(fc.Kafka.Brokers) > 0 {
		cfg.KafkaBrokers = strings.Join(fc.Kafka.Brokers, ",")
	}
	setString(&cfg.KafkaGroup, fc.Kafka.Group)
	setString(&cfg.KafkaCommandTopic, fc.Kafka.CommandTopic)
	if fc.Kafka.MaxRetries != nil {
		if *fc.Kafka.MaxRetries < 0 {
			return cfg, fmt.Errorf("kafka.max_retries: must be >= 0")
		}
		cfg.KafkaMaxRetries = *fc.Kafka.MaxRetries
	}

	return cfg, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

// readConfigFromEnv накладывает переменные окружения на значения по умолчанию.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	return applyEnv(app.DefaultConfig(), lookup)
}

// applyEnv накладывает переменные окружения на cfg.
// Некорректные значения не применяются и возвращаются как предупреждения.
func applyEnv(cfg app.Config, lookup envLookup) (app.Config, []string) {
	var warnings []string
	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, raw, err))
	}

	if v, ok := nonEmpty(lookup, envGRPCAddr); ok {
		cfg.GRPCAddr = v
	}
	if v, ok := nonEmpty(lookup, envMetricsAddr); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := nonEmpty(lookup, envStorageDriver); ok {
		if driver, err := app.ParseStorageDriver(v); err != nil {
			warn(envStorageDriver, v, err)
		} else {
			cfg.StorageDriver = driver
		}
	}
	if v, ok := nonEmpty(lookup, envPostgresDSN); ok {
		cfg.PostgresDSN = v
	}
	if v, ok := nonEmpty(lookup, envSQLitePath); ok {
		cfg.SQLitePath = v
	}
	if v, ok := nonEmpty(lookup, envDBAutoMigrate); ok {
		if parsed, err := parseBool(v); err != nil {
			warn(envDBAutoMigrate, v, err)
		} else {
			cfg.DBAutoMigrate = parsed
		}
	}
	if v, ok := nonEmpty(lookup, envDBOpTimeout); ok {
		if parsed, err := parseDuration(v, positiveDuration, "must be > 0"); err != nil {
			warn(envDBOpTimeout, v, err)
		} else {
			cfg.DBOpTimeout = parsed
		}
	}
	if v, ok := nonEmpty(lookup, envOrderCacheSize); ok {
		if parsed, err := parseInt(v, func(n int) bool { return n >= 0 }, "must be >= 0"); err != nil {
			warn(envOrderCacheSize, v, err)
		} else {
			cfg.OrderCacheSize = parsed
		}
	}
	if v, ok := nonEmpty(lookup, envGRPCRateLimit); ok {
		if parsed, err := parseFloat(v); err != nil {
			warn(envGRPCRateLimit, v, err)
		} else {
			cfg.GRPCRateLimit = parsed
		}
	}
	if v, ok := nonEmpty(lookup, envGRPCRateBurst); ok {
		if parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0"); err != nil {
			warn(envGRPCRateBurst, v, err)
		} else {
			cfg.GRPCRateBurst = parsed
		}
	}
	if v, ok := nonEmpty(lookup, envKafkaBrokers); ok {
		cfg.KafkaBrokers = v
	}
	if v, ok := nonEmpty(lookup, envKafkaGroup); ok {
		cfg.KafkaGroup = v
	}
	if v, ok := nonEmpty(lookup, envKafkaCommandTopic); ok {
		cfg.KafkaCommandTopic = v
	}
	if v, ok := nonEmpty(lookup, envKafkaMaxRetries); ok {
		if parsed, err := parseInt(v, func(n int) bool { return n >= 0 }, "must be >= 0"); err != nil {
			warn(envKafkaMaxRetries, v, err)
		} else {
			cfg.KafkaMaxRetries = parsed
		}
	}

	return cfg, warnings
}

func nonEmpty(lookup envLookup, key string) (string, bool) {
	raw, ok := lookup(key)
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(raw)
	return value, value != ""
}

func positiveDuration(v time.Duration) bool { return v > 0 }

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseFloat(raw string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	if value < 0 {
		return 0, fmt.Errorf("value %v must be >= 0", value)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}
