package domain

// BookHandler consumes market data routed by the stream dispatcher. All calls
// for one connection arrive on a single goroutine, in feed order.
type BookHandler interface {
	OnSnapshot(update *BookUpdate)
	OnDelta(update *BookUpdate)
	// OnDisconnect invalidates every book; the dispatcher resubscribes after reconnect.
	OnDisconnect()
}

// AccountHandler consumes trades and account state for our account.
type AccountHandler interface {
	OnTrade(trade *TradeEvent)
	OnAccountUpdate(update *AccountUpdate)
}

// ResyncRequester forces a fresh subscription, and therefore a fresh
// snapshot, for one market.
type ResyncRequester interface {
	Resync(marketID int) error
}

type BookSink interface {
	PublishBook(snapshot *BookSnapshot)
}

type OrderEventSink interface {
	PublishOrderStatus(event *OrderStatusEvent)
}

type AccountSink interface {
	PublishAccount(update *AccountUpdate)
}

// MarketSubscriber opens the order book channel of one market.
type MarketSubscriber interface {
	SubscribeMarket(marketID int) error
}
