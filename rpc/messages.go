package rpc

import (
	"github.com/shopspring/decimal"

	"github.com/spooky-finn/go-lighter-cpty/domain"
)

type PlaceOrderRequest struct {
	ClientOrderID string `json:"client_order_id"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	TimeInForce   string `json:"time_in_force,omitempty"`
	ReduceOnly    bool   `json:"reduce_only,omitempty"`
	PostOnly      bool   `json:"post_only,omitempty"`
	Account       string `json:"account,omitempty"`
	Trader        string `json:"trader,omitempty"`
}

type OrderResponse struct {
	Order *domain.OrderRecord `json:"order"`
}

type CancelOrderRequest struct {
	ClientOrderID string `json:"client_order_id"`
}

// OrderScope selects orders by account, venue and trader; empty matches all.
type OrderScope struct {
	Account string `json:"account,omitempty"`
	Venue   string `json:"venue,omitempty"`
	Trader  string `json:"trader,omitempty"`
}

type CancelAllOrdersResponse struct {
	Cancelled int `json:"cancelled"`
}

type GetOrderRequest struct {
	ClientOrderID string `json:"client_order_id"`
}

type ListOrdersResponse struct {
	Orders []domain.OrderRecord `json:"orders"`
}

type GetBookSnapshotRequest struct {
	Symbol string `json:"symbol"`
	Depth  int    `json:"depth,omitempty"`
}

type BookSnapshotResponse struct {
	Book *domain.BookSnapshot `json:"book"`
}

type ListMarketsRequest struct{}

type MarketInfo struct {
	ID            int             `json:"id"`
	Symbol        string          `json:"symbol"`
	VenueSymbol   string          `json:"venue_symbol"`
	PriceDecimals int32           `json:"price_decimals"`
	SizeDecimals  int32           `json:"size_decimals"`
	MinBaseAmount decimal.Decimal `json:"min_base_amount"`
}

type ListMarketsResponse struct {
	Markets []MarketInfo `json:"markets"`
}

type SubscribeOrdersRequest struct {
	// empty receives every order's events
	ClientOrderIDs []string `json:"client_order_ids,omitempty"`
}

type SubscribeBooksRequest struct {
	// empty receives every market
	Symbols []string `json:"symbols,omitempty"`
}

type SubscribeAccountRequest struct{}
