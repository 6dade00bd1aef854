package lighter

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spooky-finn/go-lighter-cpty/domain"
)

// PaperClient accepts every transaction without touching the exchange.
// Orders rest until cancelled; they are never filled.
type PaperClient struct {
	logger *zap.Logger

	mu     sync.Mutex
	orders map[int64]*domain.ExchangeOrderState // by client order index
}

func NewPaperClient(logger *zap.Logger) *PaperClient {
	return &PaperClient{
		logger: logger.Named("paper-client"),
		orders: make(map[int64]*domain.ExchangeOrderState),
	}
}

func (c *PaperClient) SubmitOrder(ctx context.Context, order *domain.OrderSubmission) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.orders[order.ClientOrderIndex]; ok {
		return "", errors.Errorf("client order index %d already used", order.ClientOrderIndex)
	}
	c.orders[order.ClientOrderIndex] = &domain.ExchangeOrderState{
		Found:          true,
		Status:         domain.OrderStatus_Acknowledged,
		FilledQuantity: decimal.Zero,
	}

	txHash := paperTxHash()
	c.logger.Debug("order accepted",
		zap.String("client_order_id", order.ClientOrderID),
		zap.Int64("client_order_index", order.ClientOrderIndex),
		zap.String("tx_hash", txHash))
	return txHash, nil
}

func (c *PaperClient) CancelOrder(ctx context.Context, cancel *domain.CancelSubmission) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.orders[cancel.ClientOrderIndex]
	if !ok {
		return "", errors.Errorf("client order index %d unknown", cancel.ClientOrderIndex)
	}
	if state.Status.IsOpen() {
		state.Status = domain.OrderStatus_Cancelled
	}
	return paperTxHash(), nil
}

func (c *PaperClient) CancelAll(ctx context.Context, _ domain.CancelAllScope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, state := range c.orders {
		if state.Status.IsOpen() {
			state.Status = domain.OrderStatus_Cancelled
		}
	}
	return nil
}

func (c *PaperClient) QueryOrder(ctx context.Context, rec *domain.OrderRecord) (*domain.ExchangeOrderState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	state, ok := c.orders[rec.ClientOrderIndex]
	if !ok {
		return &domain.ExchangeOrderState{Found: false}, nil
	}
	out := *state
	return &out, nil
}

func paperTxHash() string {
	return "0x" + xid.New().String()
}
