package orders

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
	"github.com/vladislavdragonenkov/ordercore/internal/metrics"
)

// ItemRequest описывает позицию, запрошенную при создании заказа.
type ItemRequest struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Option настраивает сервис.
type Option func(*Service)

// WithMetrics включает метрики use-case'ов.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRetry задаёт политику повторов сохранения.
func WithRetry(cfg RetryConfig) Option {
	return func(s *Service) {
		s.retry = cfg
	}
}

// Service реализует прикладной слой над агрегатом заказа.
// Каждый use-case: загрузить агрегат, изменить через корень, сохранить целиком.
type Service struct {
	orders  domain.OrderRepository
	logger  *log.Entry
	metrics *metrics.OrderMetrics
	retry   RetryConfig
}

// NewService создаёт сервис заказов.
func NewService(orders domain.OrderRepository, logger *log.Entry, opts ...Option) *Service {
	if logger == nil {
		logger = log.WithField("component", "order-service")
	}
	s := &Service{
		orders: orders,
		logger: logger,
		retry:  NoRetry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder собирает заказ из позиций, подтверждает и сохраняет.
// Любая ошибка валидации прерывает операцию до обращения к хранилищу.
func (s *Service) CreateOrder(ctx context.Context, customerID string, items []ItemRequest) (*domain.Order, error) {
	order, err := domain.NewOrder(customerID)
	if err != nil {
		return nil, s.reject("create_order", err)
	}

	for _, item := range items {
		if err := order.AddLineItem(item.ProductID, item.Quantity, item.UnitPrice); err != nil {
			return nil, s.reject("create_order", err)
		}
	}

	if err := order.Confirm(); err != nil {
		return nil, s.reject("create_order", err)
	}

	if err := s.save(ctx, "create_order", order); err != nil {
		return nil, err
	}

	s.metrics.RecordOrderCreated()
	s.logger.WithFields(log.Fields{
		"order_id":    int64(order.ID()),
		"customer_id": order.CustomerID(),
		"items":       order.ItemCount(),
		"total":       order.TotalAmount().String(),
	}).Info("order created")

	return order, nil
}

// CreateDraft сохраняет пустой черновик, к которому позже добавляются позиции.
func (s *Service) CreateDraft(ctx context.Context, customerID string) (*domain.Order, error) {
	order, err := domain.NewOrder(customerID)
	if err != nil {
		return nil, s.reject("create_draft", err)
	}
	if err := s.save(ctx, "create_draft", order); err != nil {
		return nil, err
	}

	s.logger.WithFields(log.Fields{
		"order_id":    int64(order.ID()),
		"customer_id": order.CustomerID(),
	}).Info("draft order created")
	return order, nil
}

// AddItemToOrder загружает агрегат, добавляет позицию и сохраняет его целиком.
func (s *Service) AddItemToOrder(ctx context.Context, id domain.OrderID, productID string, quantity int, unitPrice decimal.Decimal) (*domain.Order, error) {
	order, err := s.load(ctx, "add_item", id)
	if err != nil {
		return nil, err
	}

	if err := order.AddLineItem(productID, quantity, unitPrice); err != nil {
		return nil, s.reject("add_item", err)
	}
	if err := s.save(ctx, "add_item", order); err != nil {
		return nil, err
	}

	s.metrics.RecordItemAdded()
	s.logger.WithFields(log.Fields{
		"order_id":   int64(order.ID()),
		"product_id": productID,
		"quantity":   quantity,
		"total":      order.TotalAmount().String(),
	}).Info("item added to order")

	return order, nil
}

// ConfirmOrder подтверждает ранее созданный черновик.
func (s *Service) ConfirmOrder(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	order, err := s.load(ctx, "confirm_order", id)
	if err != nil {
		return nil, err
	}

	if err := order.Confirm(); err != nil {
		return nil, s.reject("confirm_order", err)
	}
	if err := s.save(ctx, "confirm_order", order); err != nil {
		return nil, err
	}

	s.logger.WithField("order_id", int64(order.ID())).Info("order confirmed")
	return order, nil
}

// GetOrder возвращает заказ или ErrOrderNotFound.
func (s *Service) GetOrder(ctx context.Context, id domain.OrderID) (*domain.Order, error) {
	return s.load(ctx, "get_order", id)
}

// ListCustomerOrders возвращает заказы клиента по возрастанию времени создания.
func (s *Service) ListCustomerOrders(ctx context.Context, customerID string) ([]*domain.Order, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, s.reject("list_orders", domain.ErrCustomerRequired)
	}

	orders, err := s.orders.FindByCustomer(ctx, customerID)
	if err != nil {
		return nil, s.fail("list_orders", err)
	}
	return orders, nil
}

// RemoveOrder удаляет заказ вместе с позициями.
func (s *Service) RemoveOrder(ctx context.Context, id domain.OrderID) error {
	order, err := s.load(ctx, "remove_order", id)
	if err != nil {
		return err
	}

	if err := s.orders.Remove(ctx, order); err != nil {
		return s.fail("remove_order", err)
	}

	s.logger.WithField("order_id", int64(id)).Info("order removed")
	return nil
}

func (s *Service) load(ctx context.Context, operation string, id domain.OrderID) (*domain.Order, error) {
	if id <= 0 {
		return nil, s.reject(operation, domain.ErrOrderIDInvalid)
	}

	order, found, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, s.fail(operation, err)
	}
	if !found {
		return nil, s.reject(operation, domain.ErrOrderNotFound)
	}
	return order, nil
}

func (s *Service) save(ctx context.Context, operation string, order *domain.Order) error {
	err := saveWithRetry(ctx, s.retry, s.logger, operation, func() error {
		return s.orders.Save(ctx, order)
	})
	if err != nil {
		return s.fail(operation, err)
	}
	return nil
}

func (s *Service) reject(operation string, err error) error {
	s.metrics.RecordRejection(err)
	s.logger.WithFields(log.Fields{
		"operation": operation,
		"error":     err,
	}).Warn("order operation rejected")
	return err
}

func (s *Service) fail(operation string, err error) error {
	if domain.IsDomainRejection(err) {
		return s.reject(operation, err)
	}
	s.metrics.RecordRejection(err)
	s.logger.WithFields(log.Fields{
		"operation": operation,
		"error":     err,
	}).Error("order operation failed")
	return err
}
