package grpcsvc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/ordercore/internal/domain"
	"github.com/vladislavdragonenkov/ordercore/internal/service/orders"
)

func field(req *structpb.Struct, name string) *structpb.Value {
	if req == nil {
		return nil
	}
	return req.GetFields()[name]
}

func stringField(req *structpb.Struct, name string) string {
	return field(req, name).GetStringValue()
}

// intField принимает число или строку с целым числом.
func intField(req *structpb.Struct, name string) (int64, error) {
	v := field(req, name)
	switch kind := v.GetKind().(type) {
	case nil:
		return 0, fmt.Errorf("%s is required", name)
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || math.Abs(n) > 1<<53 {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return int64(n), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(strings.TrimSpace(kind.StringValue), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s must be an integer", name)
	}
}

// decimalField принимает строку (предпочтительно) или число.
func decimalField(req *structpb.Struct, name string) (decimal.Decimal, error) {
	v := field(req, name)
	switch kind := v.GetKind().(type) {
	case nil:
		return decimal.Zero, fmt.Errorf("%s is required", name)
	case *structpb.Value_StringValue:
		d, err := decimal.NewFromString(strings.TrimSpace(kind.StringValue))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s must be a decimal", name)
		}
		return d, nil
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(kind.NumberValue), nil
	default:
		return decimal.Zero, fmt.Errorf("%s must be a decimal", name)
	}
}

func orderIDField(req *structpb.Struct) (domain.OrderID, error) {
	id, err := intField(req, "order_id")
	if err != nil {
		return 0, err
	}
	return domain.OrderID(id), nil
}

func itemRequestFromStruct(item *structpb.Struct) (orders.ItemRequest, error) {
	qty, err := intField(item, "quantity")
	if err != nil {
		return orders.ItemRequest{}, err
	}
	if qty > math.MaxInt32 || qty < math.MinInt32 {
		return orders.ItemRequest{}, fmt.Errorf("quantity is out of range")
	}
	unitPrice, err := decimalField(item, "unit_price")
	if err != nil {
		return orders.ItemRequest{}, err
	}
	return orders.ItemRequest{
		ProductID: stringField(item, "product_id"),
		Quantity:  int(qty),
		UnitPrice: unitPrice,
	}, nil
}

func itemRequestsFromStruct(req *structpb.Struct) ([]orders.ItemRequest, error) {
	values := field(req, "items").GetListValue().GetValues()
	items := make([]orders.ItemRequest, 0, len(values))
	for idx, v := range values {
		itemStruct := v.GetStructValue()
		if itemStruct == nil {
			return nil, fmt.Errorf("items[%d] must be an object", idx)
		}
		item, err := itemRequestFromStruct(itemStruct)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", idx, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func orderToMap(order *domain.Order) map[string]any {
	items := make([]any, 0, order.ItemCount())
	for _, item := range order.Items() {
		items = append(items, map[string]any{
			"product_id": item.ProductID(),
			"quantity":   item.Quantity(),
			"unit_price": item.UnitPrice().String(),
			"subtotal":   item.Subtotal().String(),
		})
	}

	return map[string]any{
		"id":           int64(order.ID()),
		"customer_id":  order.CustomerID(),
		"status":       string(order.Status()),
		"total_amount": order.TotalAmount().String(),
		"created_at":   order.CreatedAt().UTC().Format(time.RFC3339Nano),
		"items":        items,
	}
}

func orderResponse(order *domain.Order) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"order": orderToMap(order)})
}

func ordersResponse(list []*domain.Order) (*structpb.Struct, error) {
	encoded := make([]any, 0, len(list))
	for _, order := range list {
		encoded = append(encoded, orderToMap(order))
	}
	return structpb.NewStruct(map[string]any{"orders": encoded})
}
