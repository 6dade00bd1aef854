package lighter

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/spooky-finn/go-lighter-cpty/domain"
)

const (
	TxType_CreateOrder     = 14
	TxType_CancelOrder     = 15
	TxType_CancelAllOrders = 16

	OrderType_Limit = 0

	TimeInForce_ImmediateOrCancel = 0
	TimeInForce_GoodTillTime      = 1
	TimeInForce_PostOnly          = 2

	// exchange default expiry for good-till-time orders
	DefaultOrderExpiry = -1
	// cancel-all executes immediately
	CancelAllTimeInForce_Immediate = 0

	authTokenLifetime = 10 * time.Minute
	authTokenRefresh  = time.Minute
)

type CreateOrderTx struct {
	MarketIndex      int
	ClientOrderIndex int64
	BaseAmount       int64
	Price            int64
	IsAsk            bool
	OrderType        int
	TimeInForce      int
	ReduceOnly       bool
	TriggerPrice     int64
	OrderExpiry      int64
	Nonce            int64
}

type CancelOrderTx struct {
	MarketIndex int
	OrderIndex  int64
	Nonce       int64
}

type CancelAllOrdersTx struct {
	TimeInForce int
	Time        int64
	Nonce       int64
}

// Signer wraps the exchange signing library. Each method returns the
// serialized tx_info accepted by /api/v1/sendTx.
type Signer interface {
	SignCreateOrder(tx *CreateOrderTx) (string, error)
	SignCancelOrder(tx *CancelOrderTx) (string, error)
	SignCancelAllOrders(tx *CancelAllOrdersTx) (string, error)
	CreateAuthToken(deadline time.Time) (string, error)
}

type TxClientConfig struct {
	AccountIndex int64
	APIKeyIndex  int
}

// TxClient submits signed transactions through the SyncAPI. It implements
// domain.OrderSubmitter.
type TxClient struct {
	logger *zap.Logger
	api    *SyncAPI
	signer Signer
	cfg    TxClientConfig
	now    func() time.Time

	nonceMu   sync.Mutex
	nextNonce int64
	nonceOK   bool

	authMu     sync.Mutex
	authToken  string
	authExpiry time.Time
}

func NewTxClient(logger *zap.Logger, api *SyncAPI, signer Signer, cfg TxClientConfig) *TxClient {
	return &TxClient{
		logger: logger.Named("tx-client"),
		api:    api,
		signer: signer,
		cfg:    cfg,
		now:    time.Now,
	}
}

func (c *TxClient) SubmitOrder(ctx context.Context, order *domain.OrderSubmission) (string, error) {
	tx := &CreateOrderTx{
		MarketIndex:      order.MarketID,
		ClientOrderIndex: order.ClientOrderIndex,
		BaseAmount:       order.BaseAmount,
		Price:            order.Price,
		IsAsk:            order.IsAsk,
		OrderType:        OrderType_Limit,
		TimeInForce:      TimeInForce_GoodTillTime,
		ReduceOnly:       order.ReduceOnly,
		OrderExpiry:      DefaultOrderExpiry,
	}
	switch {
	case order.PostOnly || order.TimeInForce == domain.TimeInForce_PostOnly:
		tx.TimeInForce = TimeInForce_PostOnly
	case order.TimeInForce == domain.TimeInForce_ImmediateOrCancel:
		tx.TimeInForce = TimeInForce_ImmediateOrCancel
		tx.OrderExpiry = 0
	}

	return c.send(ctx, TxType_CreateOrder, func(nonce int64) (string, error) {
		tx.Nonce = nonce
		return c.signer.SignCreateOrder(tx)
	})
}

// CancelOrder cancels by client order index, which the exchange accepts in
// place of its own order index.
func (c *TxClient) CancelOrder(ctx context.Context, cancel *domain.CancelSubmission) (string, error) {
	tx := &CancelOrderTx{
		MarketIndex: cancel.MarketID,
		OrderIndex:  cancel.ClientOrderIndex,
	}
	return c.send(ctx, TxType_CancelOrder, func(nonce int64) (string, error) {
		tx.Nonce = nonce
		return c.signer.SignCancelOrder(tx)
	})
}

// CancelAll cancels every open order of the account; the exchange has no
// narrower cancel-all, so scope only filters local records.
func (c *TxClient) CancelAll(ctx context.Context, scope domain.CancelAllScope) error {
	tx := &CancelAllOrdersTx{TimeInForce: CancelAllTimeInForce_Immediate, Time: 0}
	txHash, err := c.send(ctx, TxType_CancelAllOrders, func(nonce int64) (string, error) {
		tx.Nonce = nonce
		return c.signer.SignCancelAllOrders(tx)
	})
	if err != nil {
		return err
	}
	c.logger.Info("cancel all sent", zap.String("tx_hash", txHash), zap.Any("scope", scope))
	return nil
}

// QueryOrder looks the order up by client order index among active, then
// recently inactive, orders of its market.
func (c *TxClient) QueryOrder(ctx context.Context, rec *domain.OrderRecord) (*domain.ExchangeOrderState, error) {
	auth, err := c.AuthToken()
	if err != nil {
		return nil, err
	}

	active, err := c.api.AccountActiveOrders(ctx, c.cfg.AccountIndex, rec.MarketID, auth)
	if err != nil {
		return nil, errors.Wrap(err, "active orders")
	}
	if o, ok := findOrder(active, rec.ClientOrderIndex); ok {
		return toExchangeState(o), nil
	}

	inactive, err := c.api.AccountInactiveOrders(ctx, c.cfg.AccountIndex, rec.MarketID, auth)
	if err != nil {
		return nil, errors.Wrap(err, "inactive orders")
	}
	if o, ok := findOrder(inactive, rec.ClientOrderIndex); ok {
		return toExchangeState(o), nil
	}
	return &domain.ExchangeOrderState{Found: false}, nil
}

// AuthToken returns a cached token, refreshed shortly before it expires.
func (c *TxClient) AuthToken() (string, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	now := c.now()
	if c.authToken != "" && now.Add(authTokenRefresh).Before(c.authExpiry) {
		return c.authToken, nil
	}

	deadline := now.Add(authTokenLifetime)
	token, err := c.signer.CreateAuthToken(deadline)
	if err != nil {
		return "", errors.Wrap(err, "create auth token")
	}
	c.authToken = token
	c.authExpiry = deadline
	return token, nil
}

// send signs with the next nonce and posts the transaction. A failed send
// drops the cached nonce so the next one is fetched from the exchange.
func (c *TxClient) send(ctx context.Context, txType int, sign func(nonce int64) (string, error)) (string, error) {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	if !c.nonceOK {
		nonce, err := c.api.NextNonce(ctx, c.cfg.AccountIndex, c.cfg.APIKeyIndex)
		if err != nil {
			return "", errors.Wrap(err, "next nonce")
		}
		c.nextNonce = nonce
		c.nonceOK = true
	}

	txInfo, err := sign(c.nextNonce)
	if err != nil {
		return "", errors.Wrap(err, "sign")
	}

	txHash, err := c.api.SendTx(ctx, txType, txInfo)
	if err != nil {
		c.nonceOK = false
		return "", err
	}
	c.nextNonce++
	return txHash, nil
}

func findOrder(orders []OrderModel, clientOrderIndex int64) (OrderModel, bool) {
	for _, o := range orders {
		if o.ClientOrderIndex == clientOrderIndex {
			return o, true
		}
	}
	return OrderModel{}, false
}

func toExchangeState(o OrderModel) *domain.ExchangeOrderState {
	state := &domain.ExchangeOrderState{Found: true, FilledQuantity: o.FilledBaseAmount}

	switch status := strings.ToLower(o.Status); {
	case status == "filled":
		state.Status = domain.OrderStatus_Filled
	case strings.HasPrefix(status, "cancel"):
		state.Status = domain.OrderStatus_Cancelled
	case o.FilledBaseAmount.IsPositive():
		state.Status = domain.OrderStatus_PartiallyFilled
	default:
		state.Status = domain.OrderStatus_Acknowledged
	}
	return state
}
