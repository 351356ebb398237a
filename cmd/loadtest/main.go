// Command loadtest нагружает gRPC API заказов и проверяет суммы заказов в ответах.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	grpcsvc "github.com/vladislavdragonenkov/ordercore/internal/service/grpc"
)

type config struct {
	addr           string
	requests       int
	duration       time.Duration
	workers        int
	conns          int
	rate           float64
	timeout        time.Duration
	scenario       string
	items          int
	product        string
	price          decimal.Decimal
	customerPrefix string
	reportPath     string
}

func parseConfig(args []string) (config, error) {
	var (
		cfg      config
		priceRaw string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.StringVar(&cfg.addr, "addr", "localhost:50051", "order service gRPC address")
	fs.IntVar(&cfg.requests, "requests", 400, "scenarios to run; 0 means until -duration ends")
	fs.DurationVar(&cfg.duration, "duration", 0, "stop after this long (0 disables)")
	fs.IntVar(&cfg.workers, "workers", 40, "scenarios in flight")
	fs.IntVar(&cfg.conns, "conns", 4, "gRPC connections shared by workers")
	fs.Float64Var(&cfg.rate, "rate", 0, "scenario starts per second (0 is unlimited)")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-call timeout")
	fs.StringVar(&cfg.scenario, "scenario", scenarioCreate, "one of: "+strings.Join(scenarioNames(), ", "))
	fs.IntVar(&cfg.items, "items", 1, "line items per order")
	fs.StringVar(&cfg.product, "product", "SKU-LOAD", "product id prefix")
	fs.StringVar(&priceRaw, "price", "10.00", "unit price")
	fs.StringVar(&cfg.customerPrefix, "customer-prefix", "load", "customer id prefix")
	fs.StringVar(&cfg.reportPath, "report", "", "write JSON report to this file")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	price, err := decimal.NewFromString(strings.TrimSpace(priceRaw))
	if err != nil || !price.IsPositive() {
		return config{}, fmt.Errorf("price must be a positive decimal, got %q", priceRaw)
	}
	cfg.price = price

	if _, ok := scenarios[cfg.scenario]; !ok {
		return config{}, fmt.Errorf("unknown scenario %q", cfg.scenario)
	}

	switch {
	case cfg.requests < 0 || cfg.duration < 0:
		return config{}, errors.New("requests and duration must not be negative")
	case cfg.requests == 0 && cfg.duration == 0:
		return config{}, errors.New("set -requests or -duration")
	case cfg.workers <= 0 || cfg.conns <= 0:
		return config{}, errors.New("workers and conns must be positive")
	case cfg.rate < 0:
		return config{}, errors.New("rate must not be negative")
	case cfg.timeout <= 0:
		return config{}, errors.New("timeout must be positive")
	case cfg.items <= 0:
		return config{}, errors.New("items must be positive")
	case strings.TrimSpace(cfg.product) == "" || strings.TrimSpace(cfg.customerPrefix) == "":
		return config{}, errors.New("product and customer-prefix must not be empty")
	}
	return cfg, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	os.Exit(runMain(os.Args[1:]))
}

// runMain возвращает код выхода: 1, если хоть один сценарий упал.
func runMain(args []string) int {
	cfg, err := parseConfig(args)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		log.WithError(err).Error("invalid arguments")
		return 2
	}

	conns := make([]*grpc.ClientConn, 0, cfg.conns)
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()
	clients := make([]orderAPI, 0, cfg.conns)
	for i := 0; i < cfg.conns; i++ {
		conn, err := grpcsvc.Dial(cfg.addr)
		if err != nil {
			log.WithError(err).Error("dial order service")
			return 1
		}
		conns = append(conns, conn)
		clients = append(clients, grpcsvc.NewClient(conn))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := run(ctx, cfg, clients)
	printSummary(os.Stdout, cfg, result)

	if cfg.reportPath != "" {
		if err := writeReport(cfg.reportPath, result); err != nil {
			log.WithError(err).Error("write report")
			return 1
		}
	}
	if result.Scenarios.Failed > 0 {
		return 1
	}
	return 0
}
