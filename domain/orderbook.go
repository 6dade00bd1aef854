package domain

import (
	"sync"
	"time"

	"github.com/huandu/skiplist"
	"github.com/shopspring/decimal"
)

type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// BookUpdate is a snapshot or a delta for one market, as decoded from the feed.
type BookUpdate struct {
	MarketID int
	Sequence int64
	Bids     []PriceLevel
	Asks     []PriceLevel
}

// BookSnapshot is an immutable top-of-book view, safe to publish.
type BookSnapshot struct {
	MarketID  int          `json:"market_id"`
	Symbol    string       `json:"symbol"`
	Sequence  int64        `json:"sequence"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp time.Time    `json:"timestamp"`
}

func (s *BookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

func (s *BookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// OrderBook holds one market's bid and ask levels. Writers are the
// dispatch path only; the mutex lets readers take consistent copies.
type OrderBook struct {
	MarketID int
	Symbol   MarketSymbol

	bids        *skiplist.SkipList
	asks        *skiplist.SkipList
	sequence    int64
	initialized bool
	updatedAt   time.Time

	mu sync.RWMutex
}

func NewOrderBook(marketID int, symbol MarketSymbol) *OrderBook {
	return &OrderBook{
		MarketID: marketID,
		Symbol:   symbol,
		bids:     newSide(true),
		asks:     newSide(false),
	}
}

// newSide orders bids highest-first and asks lowest-first.
func newSide(descending bool) *skiplist.SkipList {
	return skiplist.New(skiplist.GreaterThanFunc(func(lhs, rhs interface{}) int {
		p1 := lhs.(decimal.Decimal)
		p2 := rhs.(decimal.Decimal)

		c := p1.Cmp(p2)
		if descending {
			return -c
		}
		return c
	}))
}

// ApplySnapshot replaces the whole book. Snapshots are self-consistent, so a
// repeated or older sequence is accepted.
func (ob *OrderBook) ApplySnapshot(update *BookUpdate) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.bids.Init()
	ob.asks.Init()

	for _, level := range update.Bids {
		ob.setLevel(ob.bids, ob.asks, level)
	}
	for _, level := range update.Asks {
		ob.setLevel(ob.asks, ob.bids, level)
	}

	ob.sequence = update.Sequence
	ob.initialized = true
	ob.updatedAt = time.Now()
}

// ApplyDelta validates update against the stored sequence and applies it.
// Validation happens before any level is touched, so a rejected delta never
// leaves a partial mutation behind.
func (ob *OrderBook) ApplyDelta(update *BookUpdate, validator DepthUpdateValidator) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if !ob.initialized {
		return ErrBookNotReady
	}
	if err := validator.IsValidUpd(update.Sequence, ob.sequence); err != nil {
		return err
	}

	for _, level := range update.Bids {
		ob.setLevel(ob.bids, ob.asks, level)
	}
	for _, level := range update.Asks {
		ob.setLevel(ob.asks, ob.bids, level)
	}

	ob.sequence = update.Sequence
	ob.updatedAt = time.Now()
	return nil
}

// setLevel upserts or removes a level on side. A price never rests on both
// sides, so an upsert evicts the same price from the opposite side.
func (ob *OrderBook) setLevel(side, opposite *skiplist.SkipList, level PriceLevel) {
	if level.Size.IsZero() {
		side.Remove(level.Price)
		return
	}
	side.Set(level.Price, level.Size)
	opposite.Remove(level.Price)
}

// Reset clears the book and marks it uninitialized until the next snapshot.
func (ob *OrderBook) Reset() {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.bids.Init()
	ob.asks.Init()
	ob.sequence = 0
	ob.initialized = false
}

func (ob *OrderBook) Initialized() bool {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.initialized
}

func (ob *OrderBook) Sequence() int64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.sequence
}

// TopLevels copies up to depth best levels per side. depth <= 0 copies all.
func (ob *OrderBook) TopLevels(depth int) (*BookSnapshot, error) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	if !ob.initialized {
		return nil, ErrBookNotReady
	}

	return &BookSnapshot{
		MarketID:  ob.MarketID,
		Symbol:    ob.Symbol.String(),
		Sequence:  ob.sequence,
		Bids:      limitDepth(ob.bids, depth),
		Asks:      limitDepth(ob.asks, depth),
		Timestamp: ob.updatedAt,
	}, nil
}

func (ob *OrderBook) Depth() (bids int, asks int) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.bids.Len(), ob.asks.Len()
}

func limitDepth(side *skiplist.SkipList, depth int) []PriceLevel {
	n := side.Len()
	if depth > 0 && n > depth {
		n = depth
	}

	levels := make([]PriceLevel, 0, n)
	for elem := side.Front(); elem != nil && len(levels) < n; elem = elem.Next() {
		levels = append(levels, PriceLevel{
			Price: elem.Key().(decimal.Decimal),
			Size:  elem.Value.(decimal.Decimal),
		})
	}
	return levels
}
