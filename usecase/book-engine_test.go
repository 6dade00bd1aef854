package usecase

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spooky-finn/go-lighter-cpty/domain"
)

func newTestBookEngine(t *testing.T, sinks ...domain.BookSink) (*BookEngine, *BookPublisher, *fakeResync) {
	t.Helper()
	validator, err := domain.NewDepthUpdateValidator(domain.SequencePolicy_Contiguous)
	require.NoError(t, err)

	publisher := NewBookPublisher(zap.NewNop(), BookPublisherConfig{MaxBatch: 1, Depth: 2}, sinks...)
	engine := NewBookEngine(zap.NewNop(), newTestRegistry(t), validator, publisher)
	resync := &fakeResync{}
	engine.SetResyncRequester(resync)
	return engine, publisher, resync
}

func TestBookEngine_SnapshotAndDelta(t *testing.T) {
	engine, _, resync := newTestBookEngine(t)

	engine.OnSnapshot(&domain.BookUpdate{MarketID: 1, Sequence: 100, Bids: []domain.PriceLevel{lvl("100", "5")}, Asks: []domain.PriceLevel{lvl("101", "3")}})
	top, err := engine.TopLevels(1, 10)
	require.NoError(t, err)
	bid, _ := top.BestBid()
	ask, _ := top.BestAsk()
	assert.Equal(t, "100", bid.Price.String())
	assert.Equal(t, "5", bid.Size.String())
	assert.Equal(t, "101", ask.Price.String())
	assert.Equal(t, "3", ask.Size.String())

	engine.OnDelta(&domain.BookUpdate{MarketID: 1, Sequence: 101, Bids: []domain.PriceLevel{lvl("100", "0")}})
	top, err = engine.TopLevels(1, 10)
	require.NoError(t, err)
	assert.Empty(t, top.Bids)
	assert.Empty(t, resync.calls())
}

func TestBookEngine_GapResetsAndResyncs(t *testing.T) {
	engine, _, resync := newTestBookEngine(t)

	engine.OnSnapshot(&domain.BookUpdate{MarketID: 1, Sequence: 100, Bids: []domain.PriceLevel{lvl("100", "5")}})
	engine.OnDelta(&domain.BookUpdate{MarketID: 1, Sequence: 103, Bids: []domain.PriceLevel{lvl("99", "1")}})

	assert.False(t, engine.Initialized(1), "book must be invalidated on a gap")
	assert.Equal(t, []int{1}, resync.calls())
	_, err := engine.TopLevels(1, 10)
	assert.True(t, errors.Is(err, domain.ErrBookNotReady))

	// deltas are dropped until the next snapshot
	engine.OnDelta(&domain.BookUpdate{MarketID: 1, Sequence: 104, Bids: []domain.PriceLevel{lvl("98", "1")}})
	assert.False(t, engine.Initialized(1))

	engine.OnSnapshot(&domain.BookUpdate{MarketID: 1, Sequence: 200, Bids: []domain.PriceLevel{lvl("97", "2")}})
	top, err := engine.TopLevels(1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(200), top.Sequence)
	assert.Len(t, top.Bids, 1)
}

func TestBookEngine_DuplicateDeltaIgnored(t *testing.T) {
	engine, _, resync := newTestBookEngine(t)

	engine.OnSnapshot(&domain.BookUpdate{MarketID: 1, Sequence: 100, Bids: []domain.PriceLevel{lvl("100", "5")}})
	engine.OnDelta(&domain.BookUpdate{MarketID: 1, Sequence: 100, Bids: []domain.PriceLevel{lvl("100", "0")}})

	top, err := engine.TopLevels(1, 10)
	require.NoError(t, err)
	assert.Len(t, top.Bids, 1)
	assert.True(t, engine.Initialized(1))
	assert.Empty(t, resync.calls())
}

func TestBookEngine_UnknownMarketIgnored(t *testing.T) {
	engine, _, _ := newTestBookEngine(t)

	engine.OnSnapshot(&domain.BookUpdate{MarketID: 99, Sequence: 1, Bids: []domain.PriceLevel{lvl("1", "1")}})
	engine.OnDelta(&domain.BookUpdate{MarketID: 99, Sequence: 2})

	assert.False(t, engine.Initialized(99))
}

func TestBookEngine_DisconnectInvalidatesAll(t *testing.T) {
	engine, _, _ := newTestBookEngine(t)

	engine.OnSnapshot(&domain.BookUpdate{MarketID: 0, Sequence: 1, Bids: []domain.PriceLevel{lvl("2000", "1")}})
	engine.OnSnapshot(&domain.BookUpdate{MarketID: 1, Sequence: 1, Bids: []domain.PriceLevel{lvl("60000", "1")}})
	require.True(t, engine.Initialized(0))
	require.True(t, engine.Initialized(1))

	engine.OnDisconnect()

	assert.False(t, engine.Initialized(0))
	assert.False(t, engine.Initialized(1))
}

func TestBookPublisher_CoalescesAndLimitsBatch(t *testing.T) {
	sink := &fakeBookSink{}
	engine, publisher, _ := newTestBookEngine(t, sink)

	engine.OnSnapshot(&domain.BookUpdate{MarketID: 1, Sequence: 1, Bids: []domain.PriceLevel{lvl("100", "1"), lvl("99", "1"), lvl("98", "1")}})
	for seq := int64(2); seq <= 5; seq++ {
		engine.OnDelta(&domain.BookUpdate{MarketID: 1, Sequence: seq, Asks: []domain.PriceLevel{lvl("101", "1")}})
	}
	engine.OnSnapshot(&domain.BookUpdate{MarketID: 0, Sequence: 1, Asks: []domain.PriceLevel{lvl("2000", "1")}})

	assert.Equal(t, 2, publisher.Pending(), "each market is queued once")

	assert.Equal(t, 1, publisher.Flush(), "batch is limited to one market")
	assert.Equal(t, 1, publisher.Flush())
	assert.Equal(t, 0, publisher.Flush())

	published := sink.published()
	require.Len(t, published, 2)
	assert.Equal(t, 1, published[0].MarketID, "markets publish in the order they became dirty")
	assert.Equal(t, int64(5), published[0].Sequence, "latest state is published")
	assert.Len(t, published[0].Bids, 2, "depth is capped")
	assert.Equal(t, 0, published[1].MarketID)
}

func TestBookPublisher_SkipsResetBooks(t *testing.T) {
	sink := &fakeBookSink{}
	engine, publisher, _ := newTestBookEngine(t, sink)

	engine.OnSnapshot(&domain.BookUpdate{MarketID: 1, Sequence: 1, Bids: []domain.PriceLevel{lvl("100", "1")}})
	engine.OnDisconnect()

	assert.Equal(t, 0, publisher.Flush())
	assert.Empty(t, sink.published())
}
