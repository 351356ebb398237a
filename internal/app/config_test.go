package app

import (
	"testing"
	"time"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.GRPCAddr != ":50051" {
		t.Errorf("expected GRPCAddr :50051, got %s", cfg.GRPCAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}
	if cfg.StorageDriver != StorageDriverMemory {
		t.Errorf("expected StorageDriver %s, got %s", StorageDriverMemory, cfg.StorageDriver)
	}
	if !cfg.DBAutoMigrate {
		t.Error("expected DBAutoMigrate to be true")
	}
	if cfg.DBOpTimeout <= 0 {
		t.Error("expected DBOpTimeout to be > 0")
	}
	if cfg.OrderCacheSize <= 0 {
		t.Error("expected OrderCacheSize to be > 0")
	}
	if cfg.GRPCRateLimit != 0 {
		t.Errorf("rate limit should be disabled by default, got %v", cfg.GRPCRateLimit)
	}
	if cfg.KafkaBrokers != "" {
		t.Errorf("kafka should be disabled by default, got %q", cfg.KafkaBrokers)
	}
	if cfg.KafkaCommandTopic != "oms.order.commands" {
		t.Errorf("unexpected command topic %s", cfg.KafkaCommandTopic)
	}
	if cfg.KafkaMaxRetries <= 0 {
		t.Error("expected KafkaMaxRetries to be > 0")
	}
}

func TestParseStorageDriver(t *testing.T) {
	testCases := []struct {
		raw     string
		want    StorageDriver
		wantErr bool
	}{
		{raw: "memory", want: StorageDriverMemory},
		{raw: " Postgres ", want: StorageDriverPostgres},
		{raw: "SQLITE", want: StorageDriverSQLite},
		{raw: "mysql", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParseStorageDriver(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestConfig_BrokerList(t *testing.T) {
	cfg := Config{KafkaBrokers: "broker1:9092, broker2:9092,, "}
	brokers := cfg.brokerList()
	if len(brokers) != 2 || brokers[0] != "broker1:9092" || brokers[1] != "broker2:9092" {
		t.Fatalf("unexpected brokers: %v", brokers)
	}

	if got := (Config{}).brokerList(); len(got) != 0 {
		t.Fatalf("empty config should have no brokers, got %v", got)
	}
}

func TestConfig_Comparison(t *testing.T) {
	cfg1 := DefaultConfig()
	cfg2 := DefaultConfig()

	if cfg1 != cfg2 {
		t.Error("two DefaultConfig instances should be equal")
	}

	cfg2.DBOpTimeout = time.Second
	if cfg1 == cfg2 {
		t.Error("modified config should not be equal to original")
	}
}
