package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"go.uber.org/zap"

	"github.com/spooky-finn/go-lighter-cpty/domain"
	promclient "github.com/spooky-finn/go-lighter-cpty/infrastructure/prometheus"
)

type BookPublisherConfig struct {
	Interval time.Duration
	MaxBatch int
	Depth    int
}

type snapshotSource func(marketID int, depth int) (*domain.BookSnapshot, error)

// BookPublisher coalesces book mutations. Markets are queued once per
// interval no matter how many deltas touched them, and each tick publishes
// the latest state of at most MaxBatch markets.
type BookPublisher struct {
	logger *zap.Logger
	cfg    BookPublisherConfig
	source snapshotSource
	sinks  []domain.BookSink

	dirtyQueue deque.Deque[int]
	dirty      map[int]struct{}
	mu         sync.Mutex
}

func NewBookPublisher(logger *zap.Logger, cfg BookPublisherConfig, sinks ...domain.BookSink) *BookPublisher {
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 50
	}
	if cfg.Depth <= 0 {
		cfg.Depth = 10
	}
	return &BookPublisher{
		logger:     logger.Named("book-publisher"),
		cfg:        cfg,
		sinks:      sinks,
		dirtyQueue: deque.Deque[int]{},
		dirty:      make(map[int]struct{}),
	}
}

func (p *BookPublisher) setSource(source snapshotSource) {
	p.source = source
}

func (p *BookPublisher) MarkDirty(marketID int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.dirty[marketID]; ok {
		return
	}
	p.dirty[marketID] = struct{}{}
	p.dirtyQueue.PushBack(marketID)
}

func (p *BookPublisher) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirtyQueue.Len()
}

func (p *BookPublisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Flush()
		}
	}
}

// Flush publishes one batch and returns how many snapshots went out.
func (p *BookPublisher) Flush() int {
	batch := p.takeBatch()
	if len(batch) == 0 || p.source == nil {
		return 0
	}

	published := 0
	for _, marketID := range batch {
		snapshot, err := p.source(marketID, p.cfg.Depth)
		if err != nil {
			// book was reset after it was marked; its next snapshot marks it again
			p.logger.Debug("skip publish", zap.Int("market", marketID), zap.Error(err))
			continue
		}
		for _, sink := range p.sinks {
			sink.PublishBook(snapshot)
		}
		published++
	}
	promclient.BookPublishCounter.Add(float64(published))
	return published
}

func (p *BookPublisher) takeBatch() []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.dirtyQueue.Len()
	if n > p.cfg.MaxBatch {
		n = p.cfg.MaxBatch
	}
	batch := make([]int, 0, n)
	for i := 0; i < n; i++ {
		marketID := p.dirtyQueue.PopFront()
		delete(p.dirty, marketID)
		batch = append(batch, marketID)
	}
	return batch
}
