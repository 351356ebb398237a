package grpcsvc

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// ItemInput описывает позицию в запросе клиента. Цена передаётся строкой без потери точности.
type ItemInput struct {
	ProductID string
	Quantity  int
	UnitPrice string
}

// ItemView описывает позицию заказа в ответе.
type ItemView struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

// OrderView описывает заказ в ответе сервиса.
type OrderView struct {
	ID          int64      `json:"id"`
	CustomerID  string     `json:"customer_id"`
	Status      string     `json:"status"`
	TotalAmount string     `json:"total_amount"`
	CreatedAt   time.Time  `json:"created_at"`
	Items       []ItemView `json:"items"`
}

// Client реализует типизированный клиент API заказов.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient оборачивает готовое соединение.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Dial открывает соединение без TLS.
func Dial(addr string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	return grpc.NewClient(addr, opts...)
}

func (c *Client) invoke(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invokeOrder(ctx context.Context, method string, req map[string]any) (OrderView, error) {
	out, err := c.invoke(ctx, method, req)
	if err != nil {
		return OrderView{}, err
	}
	return DecodeOrder(field(out, "order").GetStructValue())
}

// CreateOrder создаёт подтверждённый заказ.
func (c *Client) CreateOrder(ctx context.Context, customerID string, items []ItemInput) (OrderView, error) {
	encoded := make([]any, 0, len(items))
	for _, item := range items {
		encoded = append(encoded, map[string]any{
			"product_id": item.ProductID,
			"quantity":   item.Quantity,
			"unit_price": item.UnitPrice,
		})
	}
	return c.invokeOrder(ctx, MethodCreateOrder, map[string]any{
		"customer_id": customerID,
		"items":       encoded,
	})
}

// CreateDraft создаёт пустой черновик.
func (c *Client) CreateDraft(ctx context.Context, customerID string) (OrderView, error) {
	return c.invokeOrder(ctx, MethodCreateDraft, map[string]any{"customer_id": customerID})
}

// AddItem добавляет позицию к заказу.
func (c *Client) AddItem(ctx context.Context, orderID int64, item ItemInput) (OrderView, error) {
	return c.invokeOrder(ctx, MethodAddItem, map[string]any{
		"order_id":   orderID,
		"product_id": item.ProductID,
		"quantity":   item.Quantity,
		"unit_price": item.UnitPrice,
	})
}

// ConfirmOrder подтверждает черновик.
func (c *Client) ConfirmOrder(ctx context.Context, orderID int64) (OrderView, error) {
	return c.invokeOrder(ctx, MethodConfirmOrder, map[string]any{"order_id": orderID})
}

// GetOrder возвращает заказ.
func (c *Client) GetOrder(ctx context.Context, orderID int64) (OrderView, error) {
	return c.invokeOrder(ctx, MethodGetOrder, map[string]any{"order_id": orderID})
}

// ListOrders возвращает заказы клиента.
func (c *Client) ListOrders(ctx context.Context, customerID string) ([]OrderView, error) {
	out, err := c.invoke(ctx, MethodListOrders, map[string]any{"customer_id": customerID})
	if err != nil {
		return nil, err
	}

	values := field(out, "orders").GetListValue().GetValues()
	result := make([]OrderView, 0, len(values))
	for _, v := range values {
		view, err := DecodeOrder(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		result = append(result, view)
	}
	return result, nil
}

// RemoveOrder удаляет заказ.
func (c *Client) RemoveOrder(ctx context.Context, orderID int64) error {
	_, err := c.invoke(ctx, MethodRemoveOrder, map[string]any{"order_id": orderID})
	return err
}

// DecodeOrder разбирает заказ из ответа сервиса.
func DecodeOrder(s *structpb.Struct) (OrderView, error) {
	if s == nil {
		return OrderView{}, fmt.Errorf("order is missing in response")
	}

	id, err := intField(s, "id")
	if err != nil {
		return OrderView{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, stringField(s, "created_at"))
	if err != nil {
		return OrderView{}, fmt.Errorf("parse created_at: %w", err)
	}

	view := OrderView{
		ID:          id,
		CustomerID:  stringField(s, "customer_id"),
		Status:      stringField(s, "status"),
		TotalAmount: stringField(s, "total_amount"),
		CreatedAt:   createdAt,
	}
	for _, v := range field(s, "items").GetListValue().GetValues() {
		item := v.GetStructValue()
		qty, err := intField(item, "quantity")
		if err != nil {
			return OrderView{}, err
		}
		view.Items = append(view.Items, ItemView{
			ProductID: stringField(item, "product_id"),
			Quantity:  int(qty),
			UnitPrice: stringField(item, "unit_price"),
			Subtotal:  stringField(item, "subtotal"),
		})
	}
	return view, nil
}
