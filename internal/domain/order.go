package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderID задаёт суррогатный идентификатор заказа, который выдаётся хранилищем при первой вставке.
// Нулевое значение означает, что заказ ещё не сохранён.
type OrderID int64

// IsZero сообщает, что идентификатор ещё не присвоен.
func (id OrderID) IsZero() bool { return id == 0 }

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusDraft означает, что заказ собирается и позиции можно добавлять.
	OrderStatusDraft OrderStatus = "DRAFT"
	// OrderStatusConfirmed означает, что заказ подтверждён; статус терминальный.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
)

// ParseOrderStatus разбирает сохранённое текстовое представление статуса.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	switch status := OrderStatus(raw); status {
	case OrderStatusDraft, OrderStatusConfirmed:
		return status, nil
	default:
		return "", fmt.Errorf("unknown order status %q", raw)
	}
}

// IsTerminal сообщает, что из статуса нет переходов.
func (s OrderStatus) IsTerminal() bool { return s == OrderStatusConfirmed }

// Order описывает корень агрегата, который владеет упорядоченным набором позиций.
// Все изменения проходят через методы корня, сумма всегда равна сумме subtotal позиций.
type Order struct {
	id          OrderID
	customerID  string
	status      OrderStatus
	items       []LineItem
	totalAmount decimal.Decimal
	createdAt   time.Time
}

// NewOrder создаёт черновик заказа без позиций и с нулевой суммой.
func NewOrder(customerID string) (*Order, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, ErrCustomerRequired
	}

	return &Order{
		customerID:  customerID,
		status:      OrderStatusDraft,
		items:       make([]LineItem, 0),
		totalAmount: decimal.Zero,
		// Хранилища держат время с точностью до микросекунд.
		createdAt: time.Now().UTC().Truncate(time.Microsecond),
	}, nil
}

// RestoreOrder восстанавливает заголовок заказа без позиций.
// Значения считаются уже проверенными; позиции подключаются отдельным шагом.
func RestoreOrder(id OrderID, customerID string, status OrderStatus, totalAmount decimal.Decimal, createdAt time.Time) *Order {
	return &Order{
		id:          id,
		customerID:  customerID,
		status:      status,
		items:       make([]LineItem, 0),
		totalAmount: totalAmount,
		createdAt:   createdAt,
	}
}

// RestoreOrderWithItems восстанавливает агрегат целиком. Срез items копируется.
func RestoreOrderWithItems(
	id OrderID,
	customerID string,
	status OrderStatus,
	totalAmount decimal.Decimal,
	createdAt time.Time,
	items []LineItem,
) *Order {
	order := RestoreOrder(id, customerID, status, totalAmount, createdAt)
	order.items = append(order.items, items...)
	return order
}

// AddLineItem добавляет позицию в черновик и пересчитывает сумму.
func (o *Order) AddLineItem(productID string, quantity int, unitPrice decimal.Decimal) error {
	if o.status != OrderStatusDraft {
		return ErrOrderNotDraft
	}

	item, err := NewLineItem(productID, quantity, unitPrice)
	if err != nil {
		return err
	}

	o.items = append(o.items, item)
	o.recalculateTotal()
	return nil
}

// Confirm переводит черновик с позициями в CONFIRMED. Переход необратим.
func (o *Order) Confirm() error {
	if o.status != OrderStatusDraft {
		return ErrOrderNotDraft
	}
	if len(o.items) == 0 {
		return ErrOrderHasNoItems
	}

	o.status = OrderStatusConfirmed
	return nil
}

func (o *Order) recalculateTotal() {
	total := decimal.Zero
	for _, item := range o.items {
		total = total.Add(item.subtotal)
	}
	o.totalAmount = total
}

func (o *Order) ID() OrderID { return o.id }

func (o *Order) CustomerID() string { return o.customerID }

func (o *Order) Status() OrderStatus { return o.status }

func (o *Order) TotalAmount() decimal.Decimal { return o.totalAmount }

func (o *Order) CreatedAt() time.Time { return o.createdAt }

// IsPersisted сообщает, что заказ уже получил идентификатор от хранилища.
func (o *Order) IsPersisted() bool { return !o.id.IsZero() }

// Items возвращает копию позиций: изменение результата не затрагивает агрегат.
func (o *Order) Items() []LineItem {
	items := make([]LineItem, len(o.items))
	copy(items, o.items)
	return items
}

// ItemCount возвращает количество позиций.
func (o *Order) ItemCount() int { return len(o.items) }

// ItemAt возвращает позицию по индексу.
func (o *Order) ItemAt(idx int) (LineItem, bool) {
	if idx < 0 || idx >= len(o.items) {
		return LineItem{}, false
	}
	return o.items[idx], true
}
