package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
	"github.com/vladislavdragonenkov/ordercore/internal/metrics"
	"github.com/vladislavdragonenkov/ordercore/internal/service/orders"
)

// CommandHandler применяет команды из Kafka к сервису заказов.
type CommandHandler struct {
	orders  *orders.Service
	metrics *metrics.OrderMetrics
	logger  *log.Entry
}

// NewCommandHandler создаёт обработчик команд.
func NewCommandHandler(svc *orders.Service, m *metrics.OrderMetrics, logger *log.Entry) *CommandHandler {
	if logger == nil {
		logger = log.WithField("component", "order-command-handler")
	}
	return &CommandHandler{orders: svc, metrics: m, logger: logger}
}

// Handle реализует MessageHandler.
func (h *CommandHandler) Handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	cmd, err := ParseOrderCommand(message)
	if err != nil {
		h.metrics.RecordCommand("malformed", err)
		return err
	}

	logger := h.logger.WithFields(log.Fields{
		"command_id":   cmd.CommandID,
		"command_type": cmd.Type,
	})

	var order *domain.Order
	switch cmd.Type {
	case CommandCreateOrder:
		order, err = h.orders.CreateOrder(ctx, cmd.CustomerID, itemRequests(cmd.Items))
	case CommandAddItem:
		order, err = h.orders.AddItemToOrder(ctx, domain.OrderID(cmd.OrderID), cmd.Item.ProductID, cmd.Item.Quantity, cmd.Item.UnitPrice)
	}
	h.metrics.RecordCommand(string(cmd.Type), err)

	if err != nil {
		return fmt.Errorf("apply %s command %s: %w", cmd.Type, cmd.CommandID, err)
	}

	logger.WithFields(log.Fields{
		"order_id": order.ID(),
		"status":   order.Status(),
		"total":    order.TotalAmount().String(),
	}).Info("order command applied")
	return nil
}

func itemRequests(items []CommandItem) []orders.ItemRequest {
	requests := make([]orders.ItemRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, orders.ItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return requests
}
