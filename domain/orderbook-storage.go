package domain

import (
	"sort"
	"sync"
)

// OrderBookStorage keeps one OrderBook per subscribed market id.
type OrderBookStorage struct {
	storage map[int]*OrderBook
	mu      sync.RWMutex
}

func NewOrderBookStorage() *OrderBookStorage {
	return &OrderBookStorage{
		storage: make(map[int]*OrderBook),
	}
}

// GetOrCreate returns the book for market, creating an empty uninitialized one.
func (o *OrderBookStorage) GetOrCreate(market *Market) *OrderBook {
	o.mu.Lock()
	defer o.mu.Unlock()

	ob, ok := o.storage[market.ID]
	if !ok {
		ob = NewOrderBook(market.ID, market.Symbol)
		o.storage[market.ID] = ob
	}
	return ob
}

func (o *OrderBookStorage) Get(marketID int) (*OrderBook, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	ob, ok := o.storage[marketID]
	if !ok {
		return nil, ErrBookNotReady
	}
	return ob, nil
}

// All returns the stored books ordered by market id.
func (o *OrderBookStorage) All() []*OrderBook {
	o.mu.RLock()
	defer o.mu.RUnlock()

	books := make([]*OrderBook, 0, len(o.storage))
	for _, ob := range o.storage {
		books = append(books, ob)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].MarketID < books[j].MarketID })
	return books
}

// OrderBookCount returns how many books are stored and how many of them are live.
func (o *OrderBookStorage) OrderBookCount() (total int, initialized int) {
	for _, ob := range o.All() {
		total++
		if ob.Initialized() {
			initialized++
		}
	}
	return total, initialized
}
