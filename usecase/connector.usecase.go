package usecase

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/spooky-finn/go-lighter-cpty/domain"
	"github.com/spooky-finn/go-lighter-cpty/domain/interfaces"
	"github.com/spooky-finn/go-lighter-cpty/helpers"
)

const DefaultBookDepth = 10

// EventHubs fans engine output out to RPC subscribers. It implements
// domain.OrderEventSink, domain.BookSink and domain.AccountSink.
type EventHubs struct {
	logger   *zap.Logger
	orders   *helpers.Hub[*domain.OrderStatusEvent]
	books    *helpers.Hub[*domain.BookSnapshot]
	accounts *helpers.Hub[*domain.AccountUpdate]
}

func NewEventHubs(logger *zap.Logger) *EventHubs {
	return &EventHubs{
		logger:   logger.Named("event-hubs"),
		orders:   helpers.NewHub[*domain.OrderStatusEvent]("orders"),
		books:    helpers.NewHub[*domain.BookSnapshot]("books"),
		accounts: helpers.NewHub[*domain.AccountUpdate]("account"),
	}
}

func (h *EventHubs) PublishOrderStatus(event *domain.OrderStatusEvent) {
	if dropped := h.orders.Broadcast(event); dropped > 0 {
		h.logger.Warn("slow order subscribers", zap.Int("dropped", dropped), zap.String("client_order_id", event.ClientOrderID))
	}
}

func (h *EventHubs) PublishBook(snapshot *domain.BookSnapshot) {
	h.books.Broadcast(snapshot)
}

func (h *EventHubs) PublishAccount(update *domain.AccountUpdate) {
	h.accounts.Broadcast(update)
}

// Connector is the command and query surface exposed over RPC. It holds no
// state of its own.
type Connector struct {
	logger   *zap.Logger
	registry *domain.MarketRegistry
	books    *BookEngine
	orders   *OrderLifecycleEngine
	hubs     *EventHubs
}

func NewConnector(
	logger *zap.Logger,
	registry *domain.MarketRegistry,
	books *BookEngine,
	orders *OrderLifecycleEngine,
	hubs *EventHubs,
) *Connector {
	return &Connector{
		logger:   logger.Named("connector"),
		registry: registry,
		books:    books,
		orders:   orders,
		hubs:     hubs,
	}
}

// TrackMarkets creates the books of the given symbols (every market when
// symbols is empty) and subscribes to their feeds.
func (c *Connector) TrackMarkets(symbols []string, subscriber domain.MarketSubscriber) error {
	var markets []domain.Market
	if len(symbols) == 0 {
		markets = c.registry.Markets()
	} else {
		for _, symbol := range symbols {
			m, err := c.registry.ResolveSymbol(symbol)
			if err != nil {
				return err
			}
			markets = append(markets, *m)
		}
	}

	for i := range markets {
		market := &markets[i]
		c.books.Track(market)
		if err := subscriber.SubscribeMarket(market.ID); err != nil {
			return errors.Wrapf(err, "subscribe %s", market.Symbol.String())
		}
	}
	c.logger.Info("tracking markets", zap.Int("count", len(markets)))
	return nil
}

func (c *Connector) PlaceOrder(ctx context.Context, cmd *domain.PlaceOrderCommand) (*domain.OrderRecord, error) {
	return c.orders.PlaceOrder(ctx, cmd)
}

func (c *Connector) CancelOrder(ctx context.Context, clientOrderID string) error {
	return c.orders.CancelOrder(ctx, clientOrderID)
}

func (c *Connector) CancelAllOrders(ctx context.Context, scope domain.CancelAllScope) (int, error) {
	return c.orders.CancelAllOrders(ctx, scope)
}

func (c *Connector) Order(clientOrderID string) (domain.OrderRecord, error) {
	return c.orders.Order(clientOrderID)
}

func (c *Connector) OpenOrders(scope domain.CancelAllScope) []domain.OrderRecord {
	return c.orders.Orders(scope, true)
}

func (c *Connector) Account() (domain.AccountUpdate, bool) {
	return c.orders.Account()
}

// BookSnapshot returns the top depth levels of symbol's book, or
// ErrBookNotReady while the book is waiting for a snapshot.
func (c *Connector) BookSnapshot(symbol string, depth int) (*domain.BookSnapshot, error) {
	market, err := c.registry.ResolveSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = DefaultBookDepth
	}
	snapshot, err := c.books.TopLevels(market.ID, depth)
	if err != nil {
		return nil, errors.Wrap(err, market.Symbol.String())
	}
	return snapshot, nil
}

func (c *Connector) ResolveMarket(symbol string) (*domain.Market, error) {
	return c.registry.ResolveSymbol(symbol)
}

func (c *Connector) Markets() []domain.Market {
	return c.registry.Markets()
}

func (c *Connector) SubscribeOrders(buffer int) *interfaces.Subscription[*domain.OrderStatusEvent] {
	return c.hubs.orders.Subscribe(buffer)
}

func (c *Connector) SubscribeBooks(buffer int) *interfaces.Subscription[*domain.BookSnapshot] {
	return c.hubs.books.Subscribe(buffer)
}

func (c *Connector) SubscribeAccount(buffer int) *interfaces.Subscription[*domain.AccountUpdate] {
	return c.hubs.accounts.Subscribe(buffer)
}

// Subscribers is the number of live RPC subscriptions across all topics.
func (h *EventHubs) Subscribers() int {
	return h.orders.Len() + h.books.Len() + h.accounts.Len()
}
