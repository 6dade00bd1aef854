package rpc

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/spooky-finn/go-lighter-cpty/domain"
)

func (s *server) PlaceOrder(ctx context.Context, in *PlaceOrderRequest) (*OrderResponse, error) {
	cmd, err := s.validationService.PlaceOrderCommand(in)
	if err != nil {
		return nil, toStatus(err)
	}
	rec, err := s.connector.PlaceOrder(ctx, cmd)
	if err != nil {
		return nil, toStatus(err)
	}
	return &OrderResponse{Order: rec}, nil
}

func (s *server) CancelOrder(ctx context.Context, in *CancelOrderRequest) (*OrderResponse, error) {
	id, err := s.validationService.ClientOrderID(in.ClientOrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.connector.CancelOrder(ctx, id); err != nil {
		return nil, toStatus(err)
	}
	rec, err := s.connector.Order(id)
	if err != nil {
		return nil, toStatus(err)
	}
	return &OrderResponse{Order: &rec}, nil
}

func (s *server) CancelAllOrders(ctx context.Context, in *OrderScope) (*CancelAllOrdersResponse, error) {
	scope, err := s.validationService.Scope(in)
	if err != nil {
		return nil, toStatus(err)
	}
	n, err := s.connector.CancelAllOrders(ctx, scope)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CancelAllOrdersResponse{Cancelled: n}, nil
}

func (s *server) GetOrder(ctx context.Context, in *GetOrderRequest) (*OrderResponse, error) {
	id, err := s.validationService.ClientOrderID(in.ClientOrderID)
	if err != nil {
		return nil, toStatus(err)
	}
	rec, err := s.connector.Order(id)
	if err != nil {
		return nil, toStatus(err)
	}
	return &OrderResponse{Order: &rec}, nil
}

func (s *server) ListOpenOrders(ctx context.Context, in *OrderScope) (*ListOrdersResponse, error) {
	scope, err := s.validationService.Scope(in)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListOrdersResponse{Orders: s.connector.OpenOrders(scope)}, nil
}

func (s *server) GetBookSnapshot(ctx context.Context, in *GetBookSnapshotRequest) (*BookSnapshotResponse, error) {
	depth, err := s.validationService.Depth(in.Depth)
	if err != nil {
		return nil, toStatus(err)
	}
	snapshot, err := s.connector.BookSnapshot(in.Symbol, depth)
	if err != nil {
		return nil, toStatus(err)
	}
	return &BookSnapshotResponse{Book: snapshot}, nil
}

func (s *server) ListMarkets(ctx context.Context, in *ListMarketsRequest) (*ListMarketsResponse, error) {
	markets := s.connector.Markets()
	out := make([]MarketInfo, 0, len(markets))
	for _, m := range markets {
		out = append(out, MarketInfo{
			ID:            m.ID,
			Symbol:        m.Symbol.String(),
			VenueSymbol:   m.Symbol.VenueSymbol(),
			PriceDecimals: m.PriceDecimals,
			SizeDecimals:  m.SizeDecimals,
			MinBaseAmount: m.MinBaseAmount,
		})
	}
	return &ListMarketsResponse{Markets: out}, nil
}

func (s *server) SubscribeOrders(in *SubscribeOrdersRequest, stream grpc.ServerStream) error {
	wanted := make(map[string]bool, len(in.ClientOrderIDs))
	for _, id := range in.ClientOrderIDs {
		wanted[id] = true
	}

	sub := s.connector.SubscribeOrders(subscriptionBuffer)
	defer sub.Unsubscribe()

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case event, ok := <-sub.Stream:
			if !ok {
				return nil
			}
			if len(wanted) > 0 && !wanted[event.ClientOrderID] {
				continue
			}
			if err := stream.SendMsg(event); err != nil {
				return err
			}
		}
	}
}

func (s *server) SubscribeBooks(in *SubscribeBooksRequest, stream grpc.ServerStream) error {
	wanted := make(map[int]bool, len(in.Symbols))
	for _, symbol := range in.Symbols {
		m, err := s.connector.ResolveMarket(symbol)
		if err != nil {
			return toStatus(err)
		}
		wanted[m.ID] = true
	}

	sub := s.connector.SubscribeBooks(subscriptionBuffer)
	defer sub.Unsubscribe()

	for {
		select {
		case <-stream.Context().Done():
			return nil
		case snapshot, ok := <-sub.Stream:
			if !ok {
				return nil
			}
			if len(wanted) > 0 && !wanted[snapshot.MarketID] {
				continue
			}
			if err := stream.SendMsg(snapshot); err != nil {
				return err
			}
		}
	}
}

func (s *server) SubscribeAccount(in *SubscribeAccountRequest, stream grpc.ServerStream) error {
	sub := s.connector.SubscribeAccount(subscriptionBuffer)
	defer sub.Unsubscribe()

	if current, ok := s.connector.Account(); ok {
		if err := stream.SendMsg(&current); err != nil {
			return err
		}
	}
	for {
		select {
		case <-stream.Context().Done():
			return nil
		case update, ok := <-sub.Stream:
			if !ok {
				return nil
			}
			if err := stream.SendMsg(update); err != nil {
				return err
			}
		}
	}
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case err == nil:
		return nil
	case domain.IsRejection(err):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrOrderNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrSubmissionFailure), errors.Is(err, domain.ErrBookNotReady):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
