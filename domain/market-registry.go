package domain

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MarketSource fetches the exchange's market metadata.
type MarketSource interface {
	FetchMarkets(ctx context.Context) ([]MarketDescriptor, error)
}

type RegistryConfig struct {
	FetchAttempts int
	RetryMin      time.Duration
	RetryMax      time.Duration
}

// MarketRegistry is the table of tradable markets. It is written once by
// Load and read-only afterwards.
type MarketRegistry struct {
	logger *zap.Logger
	cfg    RegistryConfig

	once     sync.Once
	loaded   bool
	byID     map[int]*Market
	bySymbol map[string]*Market
}

func NewMarketRegistry(logger *zap.Logger, cfg RegistryConfig) *MarketRegistry {
	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = 1
	}
	if cfg.RetryMin <= 0 {
		cfg.RetryMin = 500 * time.Millisecond
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 5 * time.Second
	}
	return &MarketRegistry{
		logger:   logger.Named("market-registry"),
		cfg:      cfg,
		byID:     make(map[int]*Market),
		bySymbol: make(map[string]*Market),
	}
}

// Load populates the registry from source, falling back to the given table
// when the source stays unreachable. It succeeds at most once.
func (r *MarketRegistry) Load(ctx context.Context, source MarketSource, fallback []MarketDescriptor) error {
	err := errors.New("market registry is already loaded")
	r.once.Do(func() {
		descriptors := r.fetch(ctx, source)
		if len(descriptors) == 0 {
			r.logger.Warn("market metadata unavailable, using built-in table", zap.Int("markets", len(fallback)))
			descriptors = fallback
		}
		err = r.populate(descriptors)
	})
	return err
}

func (r *MarketRegistry) fetch(ctx context.Context, source MarketSource) []MarketDescriptor {
	if source == nil {
		return nil
	}

	b := &backoff.Backoff{Min: r.cfg.RetryMin, Max: r.cfg.RetryMax, Factor: 2, Jitter: true}
	for attempt := 1; attempt <= r.cfg.FetchAttempts; attempt++ {
		descriptors, err := source.FetchMarkets(ctx)
		if err == nil && len(descriptors) > 0 {
			return descriptors
		}
		r.logger.Warn("fetch markets failed", zap.Int("attempt", attempt), zap.Error(err))

		if attempt == r.cfg.FetchAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(b.Duration()):
		}
	}
	return nil
}

func (r *MarketRegistry) populate(descriptors []MarketDescriptor) error {
	for _, d := range descriptors {
		m, err := NewMarket(d)
		if err != nil {
			r.logger.Warn("skipping market", zap.Int("id", d.ID), zap.String("symbol", d.Symbol), zap.Error(err))
			continue
		}
		if _, ok := r.byID[m.ID]; ok {
			r.logger.Warn("duplicate market id", zap.Int("id", m.ID))
			continue
		}
		r.byID[m.ID] = m
		r.bySymbol[m.Symbol.String()] = m
	}
	if len(r.byID) == 0 {
		return errors.New("no markets loaded")
	}
	r.loaded = true
	r.logger.Info("markets loaded", zap.Int("count", len(r.byID)))
	return nil
}

func (r *MarketRegistry) ResolveSymbol(symbol string) (*Market, error) {
	ms, err := NewMarketSymbolFromString(symbol)
	if err != nil {
		// bare base asset, quote defaults to USDC
		ms, err = NewMarketSymbol(strings.TrimSpace(symbol), DefaultQuoteAsset)
		if err != nil {
			return nil, errors.Wrapf(ErrUnknownMarket, "symbol %q", symbol)
		}
	}
	m, ok := r.bySymbol[ms.String()]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMarket, "symbol %q", symbol)
	}
	return m, nil
}

func (r *MarketRegistry) ResolveID(id int) (*Market, error) {
	m, ok := r.byID[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMarket, "market id %d", id)
	}
	return m, nil
}

// Markets returns the loaded markets ordered by id.
func (r *MarketRegistry) Markets() []Market {
	out := make([]Market, 0, len(r.byID))
	for _, m := range r.byID {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *MarketRegistry) Loaded() bool {
	return r.loaded
}
