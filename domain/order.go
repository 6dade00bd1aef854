package domain

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type OrderStatus string
type Side string
type TimeInForce string

const (
	OrderStatus_New             OrderStatus = "NEW"
	OrderStatus_Acknowledged    OrderStatus = "ACKNOWLEDGED"
	OrderStatus_PartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatus_Filled          OrderStatus = "FILLED"
	OrderStatus_Cancelled       OrderStatus = "CANCELLED"
	OrderStatus_Rejected        OrderStatus = "REJECTED"

	Side_Buy     Side = "BUY"
	Side_Sell    Side = "SELL"
	Side_Unknown Side = ""

	TimeInForce_GoodTillCancel    TimeInForce = "GTC"
	TimeInForce_ImmediateOrCancel TimeInForce = "IOC"
	TimeInForce_PostOnly          TimeInForce = "POST_ONLY"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatus_Filled || s == OrderStatus_Cancelled || s == OrderStatus_Rejected
}

// IsOpen reports whether an order in this status may still rest on the book.
func (s OrderStatus) IsOpen() bool {
	return s == OrderStatus_New || s == OrderStatus_Acknowledged || s == OrderStatus_PartiallyFilled
}

func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "BID":
		return Side_Buy, nil
	case "SELL", "ASK":
		return Side_Sell, nil
	}
	return Side_Unknown, errors.Wrapf(ErrInvalidOrder, "side %q", s)
}

func ParseTimeInForce(s string) (TimeInForce, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "GTC", "GOOD_TILL_CANCEL":
		return TimeInForce_GoodTillCancel, nil
	case "IOC", "IMMEDIATE_OR_CANCEL":
		return TimeInForce_ImmediateOrCancel, nil
	case "POST_ONLY":
		return TimeInForce_PostOnly, nil
	}
	return "", errors.Wrapf(ErrInvalidOrder, "time in force %q", s)
}

type PlaceOrderCommand struct {
	ClientOrderID string
	Symbol        string
	Side          Side
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	TimeInForce   TimeInForce
	ReduceOnly    bool
	PostOnly      bool
	Account       string
	Trader        string
}

func (c *PlaceOrderCommand) Validate() error {
	if strings.TrimSpace(c.ClientOrderID) == "" {
		return errors.Wrap(ErrInvalidOrder, "client order id is empty")
	}
	if c.Side != Side_Buy && c.Side != Side_Sell {
		return errors.Wrapf(ErrInvalidOrder, "side %q", c.Side)
	}
	if !c.Price.IsPositive() {
		return errors.Wrapf(ErrInvalidOrder, "price %s must be positive", c.Price)
	}
	if !c.Quantity.IsPositive() {
		return errors.Wrapf(ErrInvalidOrder, "quantity %s must be positive", c.Quantity)
	}
	if c.PostOnly && c.TimeInForce == TimeInForce_ImmediateOrCancel {
		return errors.Wrap(ErrInvalidOrder, "post only order cannot be IOC")
	}
	return nil
}

// CancelAllScope filters orders by account, venue and trader. Empty fields match anything.
type CancelAllScope struct {
	Account string
	Venue   string
	Trader  string
}

func (s CancelAllScope) Matches(o *OrderRecord) bool {
	if s.Account != "" && s.Account != o.Account {
		return false
	}
	if s.Venue != "" && !strings.EqualFold(s.Venue, o.Venue) {
		return false
	}
	if s.Trader != "" && s.Trader != o.Trader {
		return false
	}
	return true
}

type OrderRecord struct {
	ClientOrderID    string          `json:"client_order_id"`
	ClientOrderIndex int64           `json:"client_order_index"`
	TxHash           string          `json:"tx_hash,omitempty"`
	MarketID         int             `json:"market_id"`
	Symbol           string          `json:"symbol"`
	Side             Side            `json:"side"`
	LimitPrice       decimal.Decimal `json:"limit_price"`
	Quantity         decimal.Decimal `json:"quantity"`
	FilledQuantity   decimal.Decimal `json:"filled_quantity"`
	AvgFillPrice     decimal.Decimal `json:"avg_fill_price"`
	Status           OrderStatus     `json:"status"`
	TimeInForce      TimeInForce     `json:"time_in_force"`
	ReduceOnly       bool            `json:"reduce_only"`
	PostOnly         bool            `json:"post_only"`
	Account          string          `json:"account,omitempty"`
	Trader           string          `json:"trader,omitempty"`
	Venue            string          `json:"venue"`
	RejectReason     string          `json:"reject_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	// set when the record was cancelled locally by a cancel-all that the
	// exchange has not been seen to honour yet
	CancelAllPending bool `json:"cancel_all_pending,omitempty"`
}

func (o *OrderRecord) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// ApplyFill adds size at price, clamped to the remaining quantity, and
// returns the amount actually applied. FilledQuantity never decreases.
func (o *OrderRecord) ApplyFill(price, size decimal.Decimal) decimal.Decimal {
	if !size.IsPositive() {
		return decimal.Zero
	}
	applied := decimal.Min(size, o.Remaining())
	if !applied.IsPositive() {
		return decimal.Zero
	}

	notional := o.AvgFillPrice.Mul(o.FilledQuantity).Add(price.Mul(applied))
	o.FilledQuantity = o.FilledQuantity.Add(applied)
	o.AvgFillPrice = notional.Div(o.FilledQuantity)
	return applied
}

// RaiseFilled moves FilledQuantity up to filled (clamped), keeping the
// average price when no execution price is known.
func (o *OrderRecord) RaiseFilled(filled decimal.Decimal) bool {
	filled = decimal.Min(filled, o.Quantity)
	if !filled.GreaterThan(o.FilledQuantity) {
		return false
	}
	if o.AvgFillPrice.IsZero() {
		o.AvgFillPrice = o.LimitPrice
	}
	o.FilledQuantity = filled
	return true
}

func (o *OrderRecord) IsFullyFilled() bool {
	return o.FilledQuantity.GreaterThanOrEqual(o.Quantity)
}

// Fill is one execution applied to an order.
type Fill struct {
	TradeID  string          `json:"trade_id"`
	Price    decimal.Decimal `json:"price"`
	Size     decimal.Decimal `json:"size"`
	IsTaker  bool            `json:"is_taker"`
	Fee      decimal.Decimal `json:"fee"`
	FeeAsset string          `json:"fee_asset"`
	Time     time.Time       `json:"time"`
}

// OrderStatusEvent is emitted on every accepted transition or fill.
type OrderStatusEvent struct {
	EventID        string          `json:"event_id"`
	ClientOrderID  string          `json:"client_order_id"`
	TxHash         string          `json:"tx_hash,omitempty"`
	Symbol         string          `json:"symbol"`
	Status         OrderStatus     `json:"status"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	AvgFillPrice   decimal.Decimal `json:"avg_fill_price"`
	Reason         string          `json:"reason,omitempty"`
	Fill           *Fill           `json:"fill,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

type TradeEvent struct {
	TradeID          string
	MarketID         int
	Price            decimal.Decimal
	Size             decimal.Decimal
	TxHash           string
	ClientOrderIndex int64
	// our side of the trade, Side_Unknown when the feed does not say
	Side      Side
	IsTaker   bool
	Timestamp time.Time
}

type Position struct {
	MarketID      int             `json:"market_id"`
	Size          decimal.Decimal `json:"size"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
}

type AccountUpdate struct {
	AccountIndex int64           `json:"account_index"`
	Collateral   decimal.Decimal `json:"collateral"`
	Positions    []Position      `json:"positions"`
	TotalTrades  int64           `json:"total_trades"`
	Timestamp    time.Time       `json:"timestamp"`
}
