package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/spooky-finn/go-lighter-cpty/domain"
)

// Client calls the Connector service. Every call is sent with the json
// content subtype so the same connection can still speak proto to the
// health service.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Stream is the receiving half of a server stream.
type Stream[T any] struct {
	grpc.ClientStream
}

func (s *Stream[T]) Recv() (*T, error) {
	m := new(T)
	if err := s.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}, opts ...grpc.CallOption) error {
	opts = append(opts, grpc.CallContentSubtype(CodecName))
	return c.conn.Invoke(ctx, fullMethod(method), in, out, opts...)
}

func (c *Client) PlaceOrder(ctx context.Context, in *PlaceOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	return out, c.invoke(ctx, "PlaceOrder", in, out, opts...)
}

func (c *Client) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	return out, c.invoke(ctx, "CancelOrder", in, out, opts...)
}

func (c *Client) CancelAllOrders(ctx context.Context, in *OrderScope, opts ...grpc.CallOption) (*CancelAllOrdersResponse, error) {
	out := new(CancelAllOrdersResponse)
	return out, c.invoke(ctx, "CancelAllOrders", in, out, opts...)
}

func (c *Client) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	return out, c.invoke(ctx, "GetOrder", in, out, opts...)
}

func (c *Client) ListOpenOrders(ctx context.Context, in *OrderScope, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	out := new(ListOrdersResponse)
	return out, c.invoke(ctx, "ListOpenOrders", in, out, opts...)
}

func (c *Client) GetBookSnapshot(ctx context.Context, in *GetBookSnapshotRequest, opts ...grpc.CallOption) (*BookSnapshotResponse, error) {
	out := new(BookSnapshotResponse)
	return out, c.invoke(ctx, "GetBookSnapshot", in, out, opts...)
}

func (c *Client) ListMarkets(ctx context.Context, opts ...grpc.CallOption) (*ListMarketsResponse, error) {
	out := new(ListMarketsResponse)
	return out, c.invoke(ctx, "ListMarkets", &ListMarketsRequest{}, out, opts...)
}

func (c *Client) SubscribeOrders(ctx context.Context, in *SubscribeOrdersRequest, opts ...grpc.CallOption) (*Stream[domain.OrderStatusEvent], error) {
	cs, err := c.openStream(ctx, 0, in, opts...)
	if err != nil {
		return nil, err
	}
	return &Stream[domain.OrderStatusEvent]{cs}, nil
}

func (c *Client) SubscribeBooks(ctx context.Context, in *SubscribeBooksRequest, opts ...grpc.CallOption) (*Stream[domain.BookSnapshot], error) {
	cs, err := c.openStream(ctx, 1, in, opts...)
	if err != nil {
		return nil, err
	}
	return &Stream[domain.BookSnapshot]{cs}, nil
}

func (c *Client) SubscribeAccount(ctx context.Context, opts ...grpc.CallOption) (*Stream[domain.AccountUpdate], error) {
	cs, err := c.openStream(ctx, 2, &SubscribeAccountRequest{}, opts...)
	if err != nil {
		return nil, err
	}
	return &Stream[domain.AccountUpdate]{cs}, nil
}

func (c *Client) openStream(ctx context.Context, idx int, in interface{}, opts ...grpc.CallOption) (grpc.ClientStream, error) {
	desc := &Connector_ServiceDesc.Streams[idx]
	opts = append(opts, grpc.CallContentSubtype(CodecName))
	cs, err := c.conn.NewStream(ctx, desc, fullMethod(desc.StreamName), opts...)
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(in); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return cs, nil
}
