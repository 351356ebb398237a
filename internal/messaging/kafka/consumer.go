package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
)

// DefaultMaxRetries задаёт число повторов временного сбоя до отправки в DLQ.
const DefaultMaxRetries = 3

// MessageHandler обрабатывает одно сообщение из топика команд.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// Publisher отправляет готовое сообщение; его реализует Producer.
type Publisher interface {
	PublishMessage(topic, key string, value []byte, headers map[string]string) error
}

// disposition определяет, что делать с сообщением после попытки обработки.
type disposition int

const (
	dispositionDone disposition = iota
	dispositionRetry
	dispositionDeadLetter
	dispositionKeep
)

func (d disposition) String() string {
	switch d {
	case dispositionDone:
		return "done"
	case dispositionRetry:
		return "retry"
	case dispositionDeadLetter:
		return "dead_letter"
	default:
		return "keep"
	}
}

// IsPermanent сообщает, что повтор обработки не изменит результат.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformedCommand) || domain.IsDomainRejection(err)
}

// decide выбирает судьбу сообщения. Без publisher'а повторять и откладывать в DLQ некуда,
// и сообщение остаётся непомеченным до следующей сессии.
func decide(err error, attempt, maxRetries int, canPublish bool) disposition {
	switch {
	case err == nil:
		return dispositionDone
	case !canPublish:
		return dispositionKeep
	case IsPermanent(err) || attempt >= maxRetries:
		return dispositionDeadLetter
	default:
		return dispositionRetry
	}
}

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*Consumer)

// WithRetryPublisher включает повторы через исходный топик и DLQ.
func WithRetryPublisher(p Publisher) ConsumerOption {
	return func(c *Consumer) { c.publisher = p }
}

// WithMaxRetries ограничивает число повторов временного сбоя.
func WithMaxRetries(n int) ConsumerOption {
	return func(c *Consumer) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithDLQTopic меняет топик для отклонённых команд.
func WithDLQTopic(topic string) ConsumerOption {
	return func(c *Consumer) {
		if topic != "" {
			c.dlqTopic = topic
		}
	}
}

// Consumer читает команды группой потребителей. Каждое сообщение либо обработано,
// либо переотправлено с увеличенным x-retry-count, либо отложено в DLQ.
type Consumer struct {
	group      sarama.ConsumerGroup
	topics     []string
	handler    MessageHandler
	publisher  Publisher
	dlqTopic   string
	maxRetries int
	logger     *log.Entry
	wg         sync.WaitGroup
}

// NewConsumer подключается к группе groupID и читает topics.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, opts ...ConsumerOption) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer group: %w", err)
	}
	return newConsumer(group, topics, handler, opts...), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		group:      group,
		topics:     topics,
		handler:    handler,
		dlqTopic:   TopicOrderCommandsDLQ,
		maxRetries: DefaultMaxRetries,
		logger:     log.WithField("component", "kafka-consumer"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start запускает чтение в фоне и сразу возвращается. Останавливается по ctx или Stop.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(2)
	go c.consumeLoop(ctx)
	go c.logErrors()

	c.logger.WithFields(log.Fields{
		"topics":      c.topics,
		"max_retries": c.maxRetries,
		"dlq":         c.publisher != nil,
	}).Info("kafka consumer started")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()
	// Consume возвращается на каждом rebalance.
	for ctx.Err() == nil {
		if err := c.group.Consume(ctx, c.topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}
			c.logger.WithError(err).Error("consumer session failed")
		}
	}
}

func (c *Consumer) logErrors() {
	defer c.wg.Done()
	for err := range c.group.Errors() {
		c.logger.WithError(err).Error("consumer group error")
	}
}

// Stop закрывает группу и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer group: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup реализует sarama.ConsumerGroupHandler.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup реализует sarama.ConsumerGroupHandler.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim помечает сообщение, только когда его судьба решена.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := session.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if err := c.process(ctx, message); err != nil {
				c.logger.WithError(err).WithFields(messageFields(message)).Error("message left unmarked")
				continue
			}
			session.MarkMessage(message, "")
		}
	}
}

// process обрабатывает сообщение и возвращает ошибку, если его нельзя помечать.
func (c *Consumer) process(ctx context.Context, message *sarama.ConsumerMessage) error {
	attempt := retryCount(message)
	handleErr := c.handler(ctx, message)
	action := decide(handleErr, attempt, c.maxRetries, c.publisher != nil)

	fields := messageFields(message)
	fields["retry_count"] = attempt
	fields["action"] = action.String()

	switch action {
	case dispositionDone:
		return nil
	case dispositionRetry:
		if err := c.republish(message, attempt+1); err != nil {
			return fmt.Errorf("republish for retry: %w", err)
		}
		c.logger.WithError(handleErr).WithFields(fields).Warn("command failed, scheduled retry")
		return nil
	case dispositionDeadLetter:
		if err := c.deadLetter(message, attempt, handleErr); err != nil {
			return fmt.Errorf("send to dlq: %w", err)
		}
		c.logger.WithError(handleErr).WithFields(fields).Info("command moved to dlq")
		return nil
	default:
		return handleErr
	}
}

func messageFields(message *sarama.ConsumerMessage) log.Fields {
	return log.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
	}
}

// retryCount читает x-retry-count; отсутствующий или битый заголовок даёт 0.
func retryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if header == nil || string(header.Key) != HeaderRetryCount {
			continue
		}
		if n, err := strconv.Atoi(string(header.Value)); err == nil && n >= 0 {
			return n
		}
	}
	return 0
}

func (c *Consumer) republish(message *sarama.ConsumerMessage, attempt int) error {
	return c.publisher.PublishMessage(message.Topic, string(message.Key), message.Value, map[string]string{
		HeaderRetryCount:    strconv.Itoa(attempt),
		HeaderOriginalTopic: message.Topic,
	})
}

func (c *Consumer) deadLetter(message *sarama.ConsumerMessage, attempt int, cause error) error {
	letter := DeadLetter{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		ErrorMessage:      cause.Error(),
		FailedAt:          time.Now().UTC().Format(time.RFC3339),
		RetryCount:        attempt,
	}
	payload, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}

	return c.publisher.PublishMessage(c.dlqTopic, letter.OriginalKey, payload, map[string]string{
		HeaderOriginalTopic: letter.OriginalTopic,
		HeaderErrorMessage:  letter.ErrorMessage,
		HeaderFailedAt:      letter.FailedAt,
		HeaderRetryCount:    strconv.Itoa(attempt),
	})
}
