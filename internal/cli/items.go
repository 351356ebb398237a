package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// parsedItem описывает позицию из флага вида "product:quantity:price".
type parsedItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

func parseItem(raw string) (parsedItem, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return parsedItem{}, fmt.Errorf("item %q: expected product:quantity:price", raw)
	}

	qty, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return parsedItem{}, fmt.Errorf("item %q: invalid quantity", raw)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
	if err != nil {
		return parsedItem{}, fmt.Errorf("item %q: invalid price", raw)
	}

	// Количество и цену проверяет сервис.
	return parsedItem{ProductID: strings.TrimSpace(parts[0]), Quantity: qty, UnitPrice: price}, nil
}

func parseItems(raw []string) ([]parsedItem, error) {
	items := make([]parsedItem, 0, len(raw))
	for _, r := range raw {
		item, err := parseItem(r)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func parseOrderID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid order id %q", raw)
	}
	return id, nil
}
