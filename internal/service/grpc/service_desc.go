package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName задаёт полное имя gRPC-сервиса заказов.
const ServiceName = "ordercore.v1.OrderService"

const (
	MethodCreateOrder  = "/" + ServiceName + "/CreateOrder"
	MethodCreateDraft  = "/" + ServiceName + "/CreateDraft"
	MethodAddItem      = "/" + ServiceName + "/AddItem"
	MethodConfirmOrder = "/" + ServiceName + "/ConfirmOrder"
	MethodGetOrder     = "/" + ServiceName + "/GetOrder"
	MethodListOrders   = "/" + ServiceName + "/ListOrders"
	MethodRemoveOrder  = "/" + ServiceName + "/RemoveOrder"
)

// OrderServiceServer описывает серверную сторону API заказов.
// Сообщения передаются как google.protobuf.Struct.
type OrderServiceServer interface {
	CreateOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateDraft(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListOrders(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveOrder(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterOrderServiceServer регистрирует реализацию на gRPC-сервере.
func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&orderServiceDesc, srv)
}

type unaryCall func(OrderServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateOrder", Handler: unaryHandler(MethodCreateOrder, OrderServiceServer.CreateOrder)},
		{MethodName: "CreateDraft", Handler: unaryHandler(MethodCreateDraft, OrderServiceServer.CreateDraft)},
		{MethodName: "AddItem", Handler: unaryHandler(MethodAddItem, OrderServiceServer.AddItem)},
		{MethodName: "ConfirmOrder", Handler: unaryHandler(MethodConfirmOrder, OrderServiceServer.ConfirmOrder)},
		{MethodName: "GetOrder", Handler: unaryHandler(MethodGetOrder, OrderServiceServer.GetOrder)},
		{MethodName: "ListOrders", Handler: unaryHandler(MethodListOrders, OrderServiceServer.ListOrders)},
		{MethodName: "RemoveOrder", Handler: unaryHandler(MethodRemoveOrder, OrderServiceServer.RemoveOrder)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ordercore/v1/order_service.proto",
}
