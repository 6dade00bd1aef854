package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "lighter.cpty.v1.Connector"

// ConnectorServer is the server API of the Connector service.
type ConnectorServer interface {
	PlaceOrder(context.Context, *PlaceOrderRequest) (*OrderResponse, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*OrderResponse, error)
	CancelAllOrders(context.Context, *OrderScope) (*CancelAllOrdersResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*OrderResponse, error)
	ListOpenOrders(context.Context, *OrderScope) (*ListOrdersResponse, error)
	GetBookSnapshot(context.Context, *GetBookSnapshotRequest) (*BookSnapshotResponse, error)
	ListMarkets(context.Context, *ListMarketsRequest) (*ListMarketsResponse, error)
	SubscribeOrders(*SubscribeOrdersRequest, grpc.ServerStream) error
	SubscribeBooks(*SubscribeBooksRequest, grpc.ServerStream) error
	SubscribeAccount(*SubscribeAccountRequest, grpc.ServerStream) error
}

func RegisterConnectorServer(s grpc.ServiceRegistrar, srv ConnectorServer) {
	s.RegisterService(&Connector_ServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unary builds a MethodDesc handler for one request type.
func unary[Req any, Resp any](name string, call func(ConnectorServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ConnectorServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(ConnectorServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func serverStream[Req any](name string, call func(ConnectorServer, *Req, grpc.ServerStream) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    name,
		ServerStreams: true,
		Handler: func(srv interface{}, stream grpc.ServerStream) error {
			in := new(Req)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return call(srv.(ConnectorServer), in, stream)
		},
	}
}

var Connector_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ConnectorServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("PlaceOrder", ConnectorServer.PlaceOrder),
		unary("CancelOrder", ConnectorServer.CancelOrder),
		unary("CancelAllOrders", ConnectorServer.CancelAllOrders),
		unary("GetOrder", ConnectorServer.GetOrder),
		unary("ListOpenOrders", ConnectorServer.ListOpenOrders),
		unary("GetBookSnapshot", ConnectorServer.GetBookSnapshot),
		unary("ListMarkets", ConnectorServer.ListMarkets),
	},
	Streams: []grpc.StreamDesc{
		serverStream("SubscribeOrders", ConnectorServer.SubscribeOrders),
		serverStream("SubscribeBooks", ConnectorServer.SubscribeBooks),
		serverStream("SubscribeAccount", ConnectorServer.SubscribeAccount),
	},
	Metadata: "lighter/cpty/v1/connector",
}
