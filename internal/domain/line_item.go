package domain

import "github.com/shopspring/decimal"

// LineItem представляет одну позицию заказа. После создания не изменяется.
type LineItem struct {
	productID string
	quantity  int
	unitPrice decimal.Decimal
	subtotal  decimal.Decimal
}

// NewLineItem создаёт позицию и вычисляет subtotal = unitPrice * quantity.
func NewLineItem(productID string, quantity int, unitPrice decimal.Decimal) (LineItem, error) {
	if quantity <= 0 {
		return LineItem{}, ErrItemQtyInvalid
	}
	if !unitPrice.IsPositive() {
		return LineItem{}, ErrItemPriceInvalid
	}

	return LineItem{
		productID: productID,
		quantity:  quantity,
		unitPrice: unitPrice,
		subtotal:  unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}, nil
}

// RestoreLineItem восстанавливает позицию из сохранённых значений.
// Subtotal берётся как есть: исторические строки могли считаться по другим правилам.
// Используется только адаптерами хранилища.
func RestoreLineItem(productID string, quantity int, unitPrice, subtotal decimal.Decimal) LineItem {
	return LineItem{
		productID: productID,
		quantity:  quantity,
		unitPrice: unitPrice,
		subtotal:  subtotal,
	}
}

func (i LineItem) ProductID() string { return i.productID }

func (i LineItem) Quantity() int { return i.quantity }

func (i LineItem) UnitPrice() decimal.Decimal { return i.unitPrice }

func (i LineItem) Subtotal() decimal.Decimal { return i.subtotal }

// Equal сравнивает позиции по значению (decimal сравниваются численно).
func (i LineItem) Equal(other LineItem) bool {
	return i.productID == other.productID &&
		i.quantity == other.quantity &&
		i.unitPrice.Equal(other.unitPrice) &&
		i.subtotal.Equal(other.subtotal)
}
