package app

import (
	"fmt"
	"strings"
	"time"
)

// StorageDriver определяет бэкенд хранилища заказов.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
	StorageDriverSQLite   StorageDriver = "sqlite"
)

// ParseStorageDriver нормализует имя драйвера из конфигурации.
func ParseStorageDriver(raw string) (StorageDriver, error) {
	driver := StorageDriver(strings.ToLower(strings.TrimSpace(raw)))
	switch driver {
	case StorageDriverMemory, StorageDriverPostgres, StorageDriverSQLite:
		return driver, nil
	default:
		return "", fmt.Errorf("unsupported storage driver %q", raw)
	}
}

// Config описывает настройки запуска приложения.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver  StorageDriver
	PostgresDSN    string
	SQLitePath     string
	DBAutoMigrate  bool
	DBOpTimeout    time.Duration
	OrderCacheSize int

	GRPCRateLimit float64 // запросов в секунду; 0 отключает лимит
	GRPCRateBurst int

	KafkaBrokers      string // через запятую; пусто отключает приём команд
	KafkaGroup        string
	KafkaCommandTopic string
	KafkaMaxRetries   int
}

// DefaultConfig возвращает базовые настройки: память, без Kafka.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:          ":50051",
		MetricsAddr:       ":9090",
		StorageDriver:     StorageDriverMemory,
		SQLitePath:        "ordercore.db",
		DBAutoMigrate:     true,
		DBOpTimeout:       5 * time.Second,
		OrderCacheSize:    1024,
		GRPCRateLimit:     0,
		GRPCRateBurst:     50,
		KafkaGroup:        "ordercore",
		KafkaCommandTopic: "oms.order.commands",
		KafkaMaxRetries:   3,
	}
}

// brokerList разбирает KafkaBrokers, отбрасывая пустые элементы.
func (c Config) brokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
