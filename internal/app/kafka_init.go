package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ordercore/internal/metrics"
	"github.com/vladislavdragonenkov/ordercore/internal/service/orders"
)

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// initCommandConsumer поднимает приём команд. Producer нужен для повторов и DLQ.
func initCommandConsumer(
	cfg Config,
	svc *orders.Service,
	m *metrics.OrderMetrics,
	producer *kafka.Producer,
	logger *log.Entry,
) (*kafka.Consumer, error) {
	handler := kafka.NewCommandHandler(svc, m, logger.WithField("layer", "kafka"))
	opts := []kafka.ConsumerOption{kafka.WithMaxRetries(cfg.KafkaMaxRetries)}
	if producer != nil {
		opts = append(opts, kafka.WithRetryPublisher(producer))
	}
	consumer, err := kafka.NewConsumer(
		cfg.brokerList(),
		cfg.KafkaGroup,
		[]string{cfg.KafkaCommandTopic},
		handler.Handle,
		opts...,
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka consumer, continuing without command intake")
		return nil, err
	}
	return consumer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
