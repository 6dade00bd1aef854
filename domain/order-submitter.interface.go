package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// OrderSubmission is a limit order already converted to the market's fixed
// point encoding.
type OrderSubmission struct {
	ClientOrderID    string
	ClientOrderIndex int64
	MarketID         int
	IsAsk            bool
	Price            int64
	BaseAmount       int64
	TimeInForce      TimeInForce
	ReduceOnly       bool
	PostOnly         bool
}

type CancelSubmission struct {
	ClientOrderID    string
	ClientOrderIndex int64
	MarketID         int
	TxHash           string
}

// ExchangeOrderState is the exchange's view of one order.
type ExchangeOrderState struct {
	Found          bool
	Status         OrderStatus
	FilledQuantity decimal.Decimal
}

// OrderSubmitter signs and submits transactions to the exchange.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, order *OrderSubmission) (txHash string, err error)
	CancelOrder(ctx context.Context, cancel *CancelSubmission) (txHash string, err error)
	CancelAll(ctx context.Context, scope CancelAllScope) error
	QueryOrder(ctx context.Context, order *OrderRecord) (*ExchangeOrderState, error)
}
