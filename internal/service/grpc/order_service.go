package grpcsvc

import (
	"context"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/ordercore/internal/service/orders"
)

// OrderService реализует gRPC API поверх сервиса заказов.
type OrderService struct {
	orders *orders.Service
	logger *log.Entry
}

// NewOrderService конструирует gRPC-обработчик.
func NewOrderService(svc *orders.Service, logger *log.Entry) *OrderService {
	if logger == nil {
		logger = log.New().WithField("component", "order-grpc")
	}
	return &OrderService{orders: svc, logger: logger}
}

// CreateOrder создаёт и подтверждает заказ из переданных позиций.
func (s *OrderService) CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	items, err := itemRequestsFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	order, err := s.orders.CreateOrder(ctx, stringField(req, "customer_id"), items)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.respond(orderResponse(order))
}

// CreateDraft создаёт пустой черновик.
func (s *OrderService) CreateDraft(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	order, err := s.orders.CreateDraft(ctx, stringField(req, "customer_id"))
	if err != nil {
		return nil, toStatus(err)
	}
	return s.respond(orderResponse(order))
}

// AddItem добавляет позицию к существующему заказу.
func (s *OrderService) AddItem(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := orderIDField(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	item, err := itemRequestFromStruct(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	order, err := s.orders.AddItemToOrder(ctx, id, item.ProductID, item.Quantity, item.UnitPrice)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.respond(orderResponse(order))
}

// ConfirmOrder подтверждает черновик.
func (s *OrderService) ConfirmOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := orderIDField(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	order, err := s.orders.ConfirmOrder(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.respond(orderResponse(order))
}

// GetOrder возвращает заказ по идентификатору.
func (s *OrderService) GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := orderIDField(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return s.respond(orderResponse(order))
}

// ListOrders возвращает заказы клиента.
func (s *OrderService) ListOrders(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	list, err := s.orders.ListCustomerOrders(ctx, stringField(req, "customer_id"))
	if err != nil {
		return nil, toStatus(err)
	}
	return s.respond(ordersResponse(list))
}

// RemoveOrder удаляет заказ.
func (s *OrderService) RemoveOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := orderIDField(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if err := s.orders.RemoveOrder(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
}

func (s *OrderService) respond(resp *structpb.Struct, err error) (*structpb.Struct, error) {
	if err != nil {
		s.logger.WithError(err).Error("failed to encode response")
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return resp, nil
}

var _ OrderServiceServer = (*OrderService)(nil)
