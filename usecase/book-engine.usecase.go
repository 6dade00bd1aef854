package usecase

import (
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/spooky-finn/go-lighter-cpty/domain"
	promclient "github.com/spooky-finn/go-lighter-cpty/infrastructure/prometheus"
)

// BookEngine owns every market's OrderBook. It is driven by the stream
// dispatcher and read by the connector and the publisher.
type BookEngine struct {
	logger    *zap.Logger
	registry  *domain.MarketRegistry
	storage   *domain.OrderBookStorage
	validator domain.DepthUpdateValidator
	publisher *BookPublisher

	resyncMu sync.RWMutex
	resync   domain.ResyncRequester
}

func NewBookEngine(
	logger *zap.Logger,
	registry *domain.MarketRegistry,
	validator domain.DepthUpdateValidator,
	publisher *BookPublisher,
) *BookEngine {
	e := &BookEngine{
		logger:    logger.Named("book-engine"),
		registry:  registry,
		storage:   domain.NewOrderBookStorage(),
		validator: validator,
		publisher: publisher,
	}
	if publisher != nil {
		publisher.setSource(e.TopLevels)
	}
	return e
}

// SetResyncRequester wires the dispatcher used for gap recovery.
func (e *BookEngine) SetResyncRequester(r domain.ResyncRequester) {
	e.resyncMu.Lock()
	e.resync = r
	e.resyncMu.Unlock()
}

// Track registers an empty, uninitialized book for market.
func (e *BookEngine) Track(market *domain.Market) {
	e.storage.GetOrCreate(market)
}

func (e *BookEngine) OnSnapshot(update *domain.BookUpdate) {
	market, err := e.registry.ResolveID(update.MarketID)
	if err != nil {
		e.logger.Warn("snapshot for unknown market", zap.Int("market", update.MarketID))
		return
	}

	ob := e.storage.GetOrCreate(market)
	ob.ApplySnapshot(update)
	e.logger.Debug("snapshot applied",
		zap.String("market", market.Symbol.String()),
		zap.Int64("sequence", update.Sequence),
		zap.Int("bids", len(update.Bids)),
		zap.Int("asks", len(update.Asks)),
	)

	e.updateLiveGauge()
	e.markDirty(update.MarketID)
}

func (e *BookEngine) OnDelta(update *domain.BookUpdate) {
	ob, err := e.storage.Get(update.MarketID)
	if err != nil {
		e.logger.Debug("delta for untracked market", zap.Int("market", update.MarketID))
		return
	}

	err = ob.ApplyDelta(update, e.validator)
	switch {
	case err == nil:
		e.markDirty(update.MarketID)
	case errors.Is(err, domain.ErrBookNotReady):
		e.logger.Debug("delta before snapshot dropped", zap.Int("market", update.MarketID), zap.Int64("sequence", update.Sequence))
	case e.validator.IsErrOutdated(err):
		promclient.OutdatedDeltaCounter.WithLabelValues(marketLabel(update.MarketID)).Inc()
	case e.validator.IsErrOutOfSequence(err):
		promclient.SequenceGapCounter.WithLabelValues(marketLabel(update.MarketID)).Inc()
		e.logger.Warn("sequence gap, resubscribing",
			zap.Int("market", update.MarketID),
			zap.Int64("last", ob.Sequence()),
			zap.Int64("received", update.Sequence),
		)
		ob.Reset()
		e.updateLiveGauge()
		e.requestResync(update.MarketID)
	default:
		e.logger.Error("apply delta", zap.Int("market", update.MarketID), zap.Error(err))
	}
}

func (e *BookEngine) OnDisconnect() {
	for _, ob := range e.storage.All() {
		ob.Reset()
	}
	e.updateLiveGauge()
	e.logger.Info("stream disconnected, all books invalidated")
}

// TopLevels returns a copy of the best depth levels of an initialized book.
func (e *BookEngine) TopLevels(marketID int, depth int) (*domain.BookSnapshot, error) {
	ob, err := e.storage.Get(marketID)
	if err != nil {
		return nil, errors.Wrapf(err, "market %d", marketID)
	}
	return ob.TopLevels(depth)
}

func (e *BookEngine) Initialized(marketID int) bool {
	ob, err := e.storage.Get(marketID)
	if err != nil {
		return false
	}
	return ob.Initialized()
}

func (e *BookEngine) requestResync(marketID int) {
	e.resyncMu.RLock()
	r := e.resync
	e.resyncMu.RUnlock()

	if r == nil {
		e.logger.Warn("no resync requester wired", zap.Int("market", marketID))
		return
	}
	if err := r.Resync(marketID); err != nil {
		// the reconnect path resubscribes everything anyway
		e.logger.Error("resync request failed", zap.Int("market", marketID), zap.Error(err))
	}
}

func (e *BookEngine) markDirty(marketID int) {
	if e.publisher != nil {
		e.publisher.MarkDirty(marketID)
	}
}

func (e *BookEngine) updateLiveGauge() {
	_, live := e.storage.OrderBookCount()
	promclient.LiveOrderBookGauge.Set(float64(live))
}

func marketLabel(marketID int) string {
	return strconv.Itoa(marketID)
}
