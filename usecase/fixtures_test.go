package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spooky-finn/go-lighter-cpty/domain"
)

var testMarkets = []domain.MarketDescriptor{
	{ID: 0, Symbol: "ETH", PriceDecimals: 2, SizeDecimals: 4, MinBaseAmount: decimal.RequireFromString("0.005")},
	{ID: 1, Symbol: "BTC", PriceDecimals: 1, SizeDecimals: 5, MinBaseAmount: decimal.RequireFromString("0.0002")},
}

func newTestRegistry(t *testing.T) *domain.MarketRegistry {
	t.Helper()
	r := domain.NewMarketRegistry(zap.NewNop(), domain.RegistryConfig{})
	require.NoError(t, r.Load(context.Background(), nil, testMarkets))
	return r
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func lvl(price, size string) domain.PriceLevel {
	return domain.PriceLevel{Price: dec(price), Size: dec(size)}
}

type fakeResync struct {
	mu      sync.Mutex
	markets []int
	err     error
}

func (f *fakeResync) Resync(marketID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markets = append(f.markets, marketID)
	return f.err
}

func (f *fakeResync) calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.markets...)
}

type fakeBookSink struct {
	mu        sync.Mutex
	snapshots []*domain.BookSnapshot
}

func (f *fakeBookSink) PublishBook(snapshot *domain.BookSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snapshot)
}

func (f *fakeBookSink) published() []*domain.BookSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.BookSnapshot(nil), f.snapshots...)
}

type fakeEventSink struct {
	mu     sync.Mutex
	events []*domain.OrderStatusEvent
}

func (f *fakeEventSink) PublishOrderStatus(event *domain.OrderStatusEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeEventSink) statuses(clientOrderID string) []domain.OrderStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.OrderStatus{}
	for _, e := range f.events {
		if e.ClientOrderID == clientOrderID {
			out = append(out, e.Status)
		}
	}
	return out
}

type fakeAccountSink struct {
	mu      sync.Mutex
	updates []*domain.AccountUpdate
}

func (f *fakeAccountSink) PublishAccount(update *domain.AccountUpdate) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, update)
}

// fakeSubmitter hands out tx hashes from a list and records every call.
type fakeSubmitter struct {
	mu          sync.Mutex
	hashes      []string
	submitErr   error
	cancelErr   error
	cancelAll   int
	submissions []*domain.OrderSubmission
	cancels     []*domain.CancelSubmission
	states      map[string]*domain.ExchangeOrderState
	queried     []string
	// called before SubmitOrder returns, outside the lock
	inFlight func(s *domain.OrderSubmission)
}

func (f *fakeSubmitter) SubmitOrder(_ context.Context, s *domain.OrderSubmission) (string, error) {
	if f.inFlight != nil {
		f.inFlight(s)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, s)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	if len(f.hashes) == 0 {
		return "", nil
	}
	h := f.hashes[0]
	f.hashes = f.hashes[1:]
	return h, nil
}

func (f *fakeSubmitter) CancelOrder(_ context.Context, s *domain.CancelSubmission) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, s)
	if f.cancelErr != nil {
		return "", f.cancelErr
	}
	return "0xcancel", nil
}

func (f *fakeSubmitter) CancelAll(_ context.Context, _ domain.CancelAllScope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelAll++
	return nil
}

func (f *fakeSubmitter) QueryOrder(_ context.Context, rec *domain.OrderRecord) (*domain.ExchangeOrderState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, rec.ClientOrderID)
	if s, ok := f.states[rec.ClientOrderID]; ok {
		return s, nil
	}
	return &domain.ExchangeOrderState{Found: false}, nil
}
