package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CommandType определяет тип команды над заказом.
type CommandType string

const (
	CommandCreateOrder CommandType = "create_order"
	CommandAddItem     CommandType = "add_item"
)

// Topics для Kafka
const (
	TopicOrderCommands    = "oms.order.commands"
	TopicOrderCommandsDLQ = "oms.order.commands.dlq" // Dead Letter Queue для отклонённых команд
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// ErrMalformedCommand означает, что сообщение нельзя разобрать и повтор бессмысленен.
var ErrMalformedCommand = errors.New("malformed order command")

// CommandItem описывает позицию в команде. Цена сериализуется строкой.
type CommandItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderCommand описывает команду из топика oms.order.commands.
type OrderCommand struct {
	CommandID  string        `json:"command_id"`
	Type       CommandType   `json:"type"`
	CustomerID string        `json:"customer_id,omitempty"`
	OrderID    int64         `json:"order_id,omitempty"`
	Items      []CommandItem `json:"items,omitempty"`
	Item       *CommandItem  `json:"item,omitempty"`
	IssuedAt   time.Time     `json:"issued_at"`
}

// NewCreateOrderCommand создаёт команду создания заказа.
func NewCreateOrderCommand(customerID string, items []CommandItem) *OrderCommand {
	return &OrderCommand{
		CommandID:  uuid.NewString(),
		Type:       CommandCreateOrder,
		CustomerID: customerID,
		Items:      items,
		IssuedAt:   time.Now().UTC(),
	}
}

// NewAddItemCommand создаёт команду добавления позиции.
func NewAddItemCommand(orderID int64, item CommandItem) *OrderCommand {
	return &OrderCommand{
		CommandID: uuid.NewString(),
		Type:      CommandAddItem,
		OrderID:   orderID,
		Item:      &item,
		IssuedAt:  time.Now().UTC(),
	}
}

// Key возвращает ключ партиционирования: команды одного заказа идут в одну партицию.
func (c *OrderCommand) Key() string {
	if c.OrderID != 0 {
		return fmt.Sprintf("order-%d", c.OrderID)
	}
	return "customer-" + c.CustomerID
}

// ParseOrderCommand парсит команду из сообщения.
func ParseOrderCommand(message *sarama.ConsumerMessage) (*OrderCommand, error) {
	var cmd OrderCommand
	if err := json.Unmarshal(message.Value, &cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}

	switch cmd.Type {
	case CommandCreateOrder:
	case CommandAddItem:
		if cmd.Item == nil {
			return nil, fmt.Errorf("%w: add_item requires item", ErrMalformedCommand)
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedCommand, cmd.Type)
	}
	return &cmd, nil
}

// DeadLetter описывает содержимое сообщения в DLQ.
type DeadLetter struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}
