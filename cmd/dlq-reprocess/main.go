// Command dlq-reprocess возвращает команды над заказами из DLQ в топик команд.
// По умолчанию работает в режиме dry-run и только перечисляет кандидатов.
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

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	types       []kafka.CommandType
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

func (c config) mode() string {
	if c.execute {
		return "execute"
	}
	return "dry-run"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("dlq replay failed")
	}
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	var (
		cfg        config
		brokersRaw string
		typesRaw   string
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.StringVar(&brokersRaw, "brokers", "", "comma-separated Kafka brokers (fallback: KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicOrderCommandsDLQ, "dead letter topic to scan")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOrderCommands, "topic for letters without original topic")
	fs.StringVar(&typesRaw, "type", "", "replay only these command types, comma-separated")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of dead letters to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish commands; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the newest dead letters of each partition")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this much silence")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = getenv("KAFKA_BROKERS")
	}
	cfg.brokers = splitList(brokersRaw)
	if len(cfg.brokers) == 0 {
		return config{}, errors.New("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	}

	for _, raw := range splitList(typesRaw) {
		switch t := kafka.CommandType(raw); t {
		case kafka.CommandCreateOrder, kafka.CommandAddItem:
			cfg.types = append(cfg.types, t)
		default:
			return config{}, fmt.Errorf("unknown command type %q", raw)
		}
	}

	switch {
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, errors.New("source-topic must not be empty")
	case strings.TrimSpace(cfg.targetTopic) == "":
		return config{}, errors.New("target-topic must not be empty")
	case cfg.sourceTopic == cfg.targetTopic:
		return config{}, errors.New("source-topic and target-topic must differ")
	case cfg.limit <= 0:
		return config{}, errors.New("limit must be positive")
	case cfg.idleTimeout <= 0:
		return config{}, errors.New("idle-timeout must be positive")
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, chunk := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(chunk); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func run(ctx context.Context, cfg config) error {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, saramaCfg)
	if err != nil {
		return fmt.Errorf("connect to kafka: %w", err)
	}
	defer func() { _ = client.Close() }()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	defer func() { _ = consumer.Close() }()

	var pub publisher
	if cfg.execute {
		producer, err := kafka.NewProducer(cfg.brokers)
		if err != nil {
			return err
		}
		defer func() { _ = producer.Close() }()
		pub = producer
	}

	r := newReplayer(cfg.targetTopic, cfg.types, pub)
	if err := replay(ctx, cfg, client, saramaStreams{consumer: consumer}, r); err != nil {
		return err
	}
	r.logReport(cfg.mode())
	return nil
}

func replay(ctx context.Context, cfg config, client offsetClient, source streamSource, r *replayer) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"mode":         cfg.mode(),
		"limit":        cfg.limit,
		"types":        cfg.types,
	}).Info("scanning dead letters")

	windows, err := planWindows(client, cfg.sourceTopic, cfg.limit, cfg.fromNewest)
	if err != nil {
		return err
	}
	if len(windows) == 0 {
		log.WithField("topic", cfg.sourceTopic).Info("dead letter topic is empty")
		return nil
	}

	for _, w := range windows {
		if err := readWindow(ctx, source, cfg.sourceTopic, w, cfg.idleTimeout, r.handle); err != nil {
			return err
		}
	}
	return nil
}
