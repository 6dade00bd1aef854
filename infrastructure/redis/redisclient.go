package redisclient

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spooky-finn/go-lighter-cpty/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	L1KeyPrefix = "l1_book:"
	L2KeyPrefix = "l2_book:"
	defaultTTL  = 300 * time.Second
)

type Config struct {
	Addr         string
	DB           int
	TTL          time.Duration
	WriteTimeout time.Duration
}

type l1Book struct {
	MarketID  int              `json:"market_id"`
	Symbol    string           `json:"symbol"`
	Sequence  int64            `json:"sequence"`
	BidPrice  *decimal.Decimal `json:"bid_price"`
	BidSize   *decimal.Decimal `json:"bid_size"`
	AskPrice  *decimal.Decimal `json:"ask_price"`
	AskSize   *decimal.Decimal `json:"ask_size"`
	Timestamp int64            `json:"timestamp"`
}

type l2Book struct {
	MarketID  int                 `json:"market_id"`
	Symbol    string              `json:"symbol"`
	Sequence  int64               `json:"sequence"`
	Bids      []domain.PriceLevel `json:"bids"`
	Asks      []domain.PriceLevel `json:"asks"`
	Timestamp int64               `json:"timestamp"`
}

// BookSink writes the top of every published book to redis under
// l1_book:{venue symbol} and l2_book:{venue symbol}, expiring after TTL so
// consumers can tell a dead feed from a quiet one.
type BookSink struct {
	logger *zap.Logger
	client redis.UniversalClient
	cfg    Config
}

func NewBookSink(logger *zap.Logger, client redis.UniversalClient, cfg Config) *BookSink {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = time.Second
	}
	return &BookSink{
		logger: logger.Named("redis-book-sink"),
		client: client,
		cfg:    cfg,
	}
}

func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.Addr, DB: cfg.DB})
}

func (s *BookSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// PublishBook implements domain.BookSink. Failures are logged; the next
// publish overwrites the keys anyway.
func (s *BookSink) PublishBook(snapshot *domain.BookSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.WriteTimeout)
	defer cancel()

	if err := s.write(ctx, snapshot); err != nil {
		s.logger.Warn("write book", zap.Int("market_id", snapshot.MarketID), zap.Error(err))
	}
}

func (s *BookSink) write(ctx context.Context, snapshot *domain.BookSnapshot) error {
	key := snapshot.Symbol
	if ms, err := domain.NewMarketSymbolFromString(snapshot.Symbol); err == nil {
		key = ms.VenueSymbol()
	}
	ts := snapshot.Timestamp.UnixMilli()

	l1 := l1Book{MarketID: snapshot.MarketID, Symbol: snapshot.Symbol, Sequence: snapshot.Sequence, Timestamp: ts}
	if bid, ok := snapshot.BestBid(); ok {
		l1.BidPrice, l1.BidSize = &bid.Price, &bid.Size
	}
	if ask, ok := snapshot.BestAsk(); ok {
		l1.AskPrice, l1.AskSize = &ask.Price, &ask.Size
	}
	l1Payload, err := json.Marshal(l1)
	if err != nil {
		return err
	}

	l2Payload, err := json.Marshal(l2Book{
		MarketID:  snapshot.MarketID,
		Symbol:    snapshot.Symbol,
		Sequence:  snapshot.Sequence,
		Bids:      snapshot.Bids,
		Asks:      snapshot.Asks,
		Timestamp: ts,
	})
	if err != nil {
		return err
	}

	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, L1KeyPrefix+key, l1Payload, s.cfg.TTL)
		pipe.Set(ctx, L2KeyPrefix+key, l2Payload, s.cfg.TTL)
		return nil
	})
	return err
}
