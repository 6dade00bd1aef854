package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"github.com/rs/xid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spooky-finn/go-lighter-cpty/domain"
	promclient "github.com/spooky-finn/go-lighter-cpty/infrastructure/prometheus"
)

const clientOrderIndexSpace = 100_000_000

type OrderEngineConfig struct {
	SubmitTimeout     time.Duration
	StaleAfter        time.Duration
	ReconcileInterval time.Duration
	Retention         time.Duration
	FallbackWindow    time.Duration
	TakerFeeRate      decimal.Decimal
	MakerFeeRate      decimal.Decimal
}

func (c *OrderEngineConfig) setDefaults() {
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 10 * time.Second
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 30 * time.Second
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = 15 * time.Second
	}
	if c.Retention <= 0 {
		c.Retention = 10 * time.Minute
	}
	if c.FallbackWindow <= 0 {
		c.FallbackWindow = 10 * time.Second
	}
	if c.TakerFeeRate.IsZero() {
		c.TakerFeeRate = decimal.RequireFromString("0.001")
	}
	if c.MakerFeeRate.IsZero() {
		c.MakerFeeRate = decimal.RequireFromString("0.0005")
	}
}

// OrderLifecycleEngine owns every OrderRecord placed by this process and the
// identity mappings derived from them. The mutex is never held across a
// submitter call; sinks must not block.
type OrderLifecycleEngine struct {
	logger      *zap.Logger
	registry    *domain.MarketRegistry
	submitter   domain.OrderSubmitter
	sink        domain.OrderEventSink
	accountSink domain.AccountSink
	cfg         OrderEngineConfig
	now         func() time.Time

	mu              sync.Mutex
	orders          map[string]*domain.OrderRecord
	byTxHash        map[string]string
	byClientIndex   map[int64]string
	processedTrades map[string]time.Time
	account         *domain.AccountUpdate
}

func NewOrderLifecycleEngine(
	logger *zap.Logger,
	registry *domain.MarketRegistry,
	submitter domain.OrderSubmitter,
	sink domain.OrderEventSink,
	accountSink domain.AccountSink,
	cfg OrderEngineConfig,
) *OrderLifecycleEngine {
	cfg.setDefaults()
	return &OrderLifecycleEngine{
		logger:          logger.Named("order-engine"),
		registry:        registry,
		submitter:       submitter,
		sink:            sink,
		accountSink:     accountSink,
		cfg:             cfg,
		now:             time.Now,
		orders:          make(map[string]*domain.OrderRecord),
		byTxHash:        make(map[string]string),
		byClientIndex:   make(map[int64]string),
		processedTrades: make(map[string]time.Time),
	}
}

// PlaceOrder records the order as NEW, submits it and settles it as
// ACKNOWLEDGED or REJECTED. Validation failures return an error without
// creating a record.
func (e *OrderLifecycleEngine) PlaceOrder(ctx context.Context, cmd *domain.PlaceOrderCommand) (*domain.OrderRecord, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	market, err := e.registry.ResolveSymbol(cmd.Symbol)
	if err != nil {
		return nil, err
	}
	if cmd.Quantity.LessThan(market.MinBaseAmount) {
		return nil, errors.Wrapf(domain.ErrInvalidOrder, "quantity %s below minimum %s", cmd.Quantity, market.MinBaseAmount)
	}
	price, err := market.PriceToFixed(cmd.Price)
	if err != nil {
		return nil, err
	}
	size, err := market.SizeToFixed(cmd.Quantity)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if _, ok := e.orders[cmd.ClientOrderID]; ok {
		e.mu.Unlock()
		return nil, errors.Wrapf(domain.ErrDuplicateClientOrderID, "%q", cmd.ClientOrderID)
	}
	now := e.now()
	rec := &domain.OrderRecord{
		ClientOrderID:    cmd.ClientOrderID,
		ClientOrderIndex: e.allocateClientIndex(cmd.ClientOrderID),
		MarketID:         market.ID,
		Symbol:           market.Symbol.String(),
		Side:             cmd.Side,
		LimitPrice:       cmd.Price,
		Quantity:         cmd.Quantity,
		FilledQuantity:   decimal.Zero,
		AvgFillPrice:     decimal.Zero,
		Status:           domain.OrderStatus_New,
		TimeInForce:      cmd.TimeInForce,
		ReduceOnly:       cmd.ReduceOnly,
		PostOnly:         cmd.PostOnly,
		Account:          cmd.Account,
		Trader:           cmd.Trader,
		Venue:            domain.VenueName,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if rec.TimeInForce == "" {
		rec.TimeInForce = domain.TimeInForce_GoodTillCancel
	}
	e.orders[rec.ClientOrderID] = rec
	e.byClientIndex[rec.ClientOrderIndex] = rec.ClientOrderID
	promclient.OrderTransitionCounter.WithLabelValues(string(domain.OrderStatus_New)).Inc()
	e.emit(rec, "", nil)
	submission := &domain.OrderSubmission{
		ClientOrderID:    rec.ClientOrderID,
		ClientOrderIndex: rec.ClientOrderIndex,
		MarketID:         market.ID,
		IsAsk:            rec.Side == domain.Side_Sell,
		Price:            price,
		BaseAmount:       size,
		TimeInForce:      rec.TimeInForce,
		ReduceOnly:       rec.ReduceOnly,
		PostOnly:         rec.PostOnly,
	}
	e.mu.Unlock()

	submitCtx, cancel := context.WithTimeout(ctx, e.cfg.SubmitTimeout)
	started := time.Now()
	txHash, submitErr := e.submitter.SubmitOrder(submitCtx, submission)
	cancel()
	observeSubmission("place", started, submitErr)

	e.mu.Lock()
	defer e.mu.Unlock()

	if submitErr != nil {
		// a fill or cancel seen while the submission was in flight proves
		// the order reached the exchange
		if rec.Status != domain.OrderStatus_New {
			e.logger.Warn("submission reported an error but the order is live",
				zap.String("client_order_id", rec.ClientOrderID),
				zap.String("status", string(rec.Status)),
				zap.Error(submitErr),
			)
			cp := *rec
			return &cp, nil
		}
		rec.RejectReason = submitErr.Error()
		e.transition(rec, domain.OrderStatus_Rejected)
		e.emit(rec, rec.RejectReason, nil)
		e.logger.Warn("order rejected", zap.String("client_order_id", rec.ClientOrderID), zap.Error(submitErr))
		cp := *rec
		return &cp, errors.Wrapf(domain.ErrSubmissionFailure, "place %q: %v", rec.ClientOrderID, submitErr)
	}

	rec.TxHash = txHash
	if txHash != "" {
		e.byTxHash[txHash] = rec.ClientOrderID
	}
	// a cancel may have landed while the submission was in flight
	if rec.Status == domain.OrderStatus_New {
		e.transition(rec, domain.OrderStatus_Acknowledged)
		e.emit(rec, "", nil)
	}
	e.logger.Info("order acknowledged",
		zap.String("client_order_id", rec.ClientOrderID),
		zap.String("tx_hash", txHash),
		zap.Int64("client_order_index", rec.ClientOrderIndex),
	)

	cp := *rec
	return &cp, nil
}

// CancelOrder is a no-op on terminal orders. Otherwise the order becomes
// CANCELLED as soon as the submitter accepts the cancel.
func (e *OrderLifecycleEngine) CancelOrder(ctx context.Context, clientOrderID string) error {
	e.mu.Lock()
	rec, ok := e.orders[clientOrderID]
	if !ok {
		e.mu.Unlock()
		return errors.Wrapf(domain.ErrOrderNotFound, "%q", clientOrderID)
	}
	if rec.Status.IsTerminal() {
		e.mu.Unlock()
		return nil
	}
	submission := &domain.CancelSubmission{
		ClientOrderID:    rec.ClientOrderID,
		ClientOrderIndex: rec.ClientOrderIndex,
		MarketID:         rec.MarketID,
		TxHash:           rec.TxHash,
	}
	e.mu.Unlock()

	submitCtx, cancel := context.WithTimeout(ctx, e.cfg.SubmitTimeout)
	started := time.Now()
	_, err := e.submitter.CancelOrder(submitCtx, submission)
	cancel()
	observeSubmission("cancel", started, err)
	if err != nil {
		return errors.Wrapf(domain.ErrSubmissionFailure, "cancel %q: %v", clientOrderID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !rec.Status.IsTerminal() {
		e.transition(rec, domain.OrderStatus_Cancelled)
		e.emit(rec, "cancelled", nil)
	}
	return nil
}

// CancelAllOrders sends one exchange-level cancel-all and then marks every
// tracked open order in scope CANCELLED. It returns how many were marked.
func (e *OrderLifecycleEngine) CancelAllOrders(ctx context.Context, scope domain.CancelAllScope) (int, error) {
	submitCtx, cancel := context.WithTimeout(ctx, e.cfg.SubmitTimeout)
	started := time.Now()
	err := e.submitter.CancelAll(submitCtx, scope)
	cancel()
	observeSubmission("cancel_all", started, err)
	if err != nil {
		return 0, errors.Wrapf(domain.ErrSubmissionFailure, "cancel all: %v", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	count := 0
	for _, rec := range e.orders {
		if rec.Status.IsTerminal() || !scope.Matches(rec) {
			continue
		}
		rec.CancelAllPending = true
		e.transition(rec, domain.OrderStatus_Cancelled)
		e.emit(rec, "cancel all", nil)
		count++
	}
	e.logger.Info("cancel all", zap.Int("cancelled", count), zap.Any("scope", scope))
	return count, nil
}

// OnTrade applies a trade to the order it belongs to. Unmatched trades are
// logged and dropped.
func (e *OrderLifecycleEngine) OnTrade(trade *domain.TradeEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if trade.TradeID != "" {
		if _, ok := e.processedTrades[trade.TradeID]; ok {
			return
		}
		e.processedTrades[trade.TradeID] = e.now()
	}

	id, via := e.match(trade)
	if id == "" {
		promclient.UnmatchedTradeCounter.Inc()
		e.logger.Warn("unresolved trade",
			zap.Error(domain.ErrUnmatchedTrade),
			zap.String("trade_id", trade.TradeID),
			zap.Int("market", trade.MarketID),
			zap.String("tx_hash", trade.TxHash),
			zap.String("size", trade.Size.String()),
		)
		return
	}

	rec := e.orders[id]
	if rec.Status == domain.OrderStatus_Rejected {
		e.logger.Warn("trade for rejected order ignored", zap.String("trade_id", trade.TradeID), zap.String("client_order_id", id))
		return
	}

	applied := rec.ApplyFill(trade.Price, trade.Size)
	if applied.IsZero() {
		e.logger.Debug("trade over fills order, nothing applied", zap.String("trade_id", trade.TradeID), zap.String("client_order_id", id))
		return
	}

	switch {
	case rec.IsFullyFilled():
		e.transition(rec, domain.OrderStatus_Filled)
	case rec.Status.IsOpen():
		e.transition(rec, domain.OrderStatus_PartiallyFilled)
	default:
		// late fill on a cancelled order keeps the terminal status
		rec.UpdatedAt = e.now()
	}

	feeRate := e.cfg.MakerFeeRate
	if trade.IsTaker {
		feeRate = e.cfg.TakerFeeRate
	}
	fill := &domain.Fill{
		TradeID:  trade.TradeID,
		Price:    trade.Price,
		Size:     applied,
		IsTaker:  trade.IsTaker,
		Fee:      trade.Price.Mul(applied).Mul(feeRate),
		FeeAsset: domain.DefaultQuoteAsset,
		Time:     trade.Timestamp,
	}
	e.emit(rec, "", fill)
	e.logger.Info("fill applied",
		zap.String("client_order_id", id),
		zap.String("trade_id", trade.TradeID),
		zap.String("matched_by", via),
		zap.String("size", applied.String()),
		zap.String("filled", rec.FilledQuantity.String()),
		zap.String("status", string(rec.Status)),
	)
}

// match resolves a trade by tx hash, then by client order index, then by
// the most recent plausible open order on the same market.
func (e *OrderLifecycleEngine) match(trade *domain.TradeEvent) (string, string) {
	if trade.TxHash != "" {
		if id, ok := e.byTxHash[trade.TxHash]; ok {
			return id, "tx_hash"
		}
	}
	if trade.ClientOrderIndex > 0 {
		if id, ok := e.byClientIndex[trade.ClientOrderIndex]; ok && e.orders[id].MarketID == trade.MarketID {
			return id, "client_order_index"
		}
	}

	ref := trade.Timestamp
	if ref.IsZero() {
		ref = e.now()
	}

	var best *domain.OrderRecord
	for _, rec := range e.orders {
		if !rec.Status.IsOpen() || rec.MarketID != trade.MarketID {
			continue
		}
		if trade.Side != domain.Side_Unknown && trade.Side != rec.Side {
			continue
		}
		if age := ref.Sub(rec.CreatedAt); age > e.cfg.FallbackWindow || age < -e.cfg.FallbackWindow {
			continue
		}
		if !priceCompatible(rec, trade.Price) {
			continue
		}
		if best == nil || rec.CreatedAt.After(best.CreatedAt) ||
			(rec.CreatedAt.Equal(best.CreatedAt) && rec.ClientOrderID > best.ClientOrderID) {
			best = rec
		}
	}
	if best == nil {
		return "", ""
	}
	return best.ClientOrderID, "fallback"
}

// priceCompatible reports whether a limit order could have traded at price.
func priceCompatible(rec *domain.OrderRecord, price decimal.Decimal) bool {
	if price.IsZero() {
		return true
	}
	if rec.Side == domain.Side_Buy {
		return price.LessThanOrEqual(rec.LimitPrice)
	}
	return price.GreaterThanOrEqual(rec.LimitPrice)
}

func (e *OrderLifecycleEngine) OnAccountUpdate(update *domain.AccountUpdate) {
	cp := *update
	cp.Positions = append([]domain.Position(nil), update.Positions...)

	e.mu.Lock()
	e.account = &cp
	e.mu.Unlock()

	if e.accountSink != nil {
		e.accountSink.PublishAccount(&cp)
	}
}

// Reconcile re-queries stale open orders and orders cancelled by cancel-all
// through the submitter. It returns how many records changed.
func (e *OrderLifecycleEngine) Reconcile(ctx context.Context) int {
	e.mu.Lock()
	now := e.now()
	candidates := make([]domain.OrderRecord, 0)
	for _, rec := range e.orders {
		stale := rec.Status.IsOpen() && now.Sub(rec.UpdatedAt) >= e.cfg.StaleAfter
		if stale || rec.CancelAllPending {
			candidates = append(candidates, *rec)
		}
	}
	e.mu.Unlock()

	changed := 0
	for i := range candidates {
		queryCtx, cancel := context.WithTimeout(ctx, e.cfg.SubmitTimeout)
		state, err := e.submitter.QueryOrder(queryCtx, &candidates[i])
		cancel()
		if err != nil {
			e.logger.Warn("reconcile query failed", zap.String("client_order_id", candidates[i].ClientOrderID), zap.Error(err))
			continue
		}
		if e.applyExchangeState(candidates[i].ClientOrderID, state) {
			changed++
		}
	}
	return changed
}

func (e *OrderLifecycleEngine) applyExchangeState(clientOrderID string, state *domain.ExchangeOrderState) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.orders[clientOrderID]
	if !ok {
		return false
	}
	rec.UpdatedAt = e.now()

	if rec.CancelAllPending {
		rec.CancelAllPending = false
		if state.Found && state.Status.IsOpen() {
			promclient.CancelAllDivergenceCounter.Inc()
			e.logger.Warn("order cancelled by cancel-all is still open on the exchange",
				zap.String("client_order_id", rec.ClientOrderID),
				zap.String("tx_hash", rec.TxHash),
			)
		}
	}
	if !state.Found {
		return false
	}

	raised := rec.RaiseFilled(state.FilledQuantity)
	before := rec.Status
	switch {
	case state.Status == domain.OrderStatus_Filled || rec.IsFullyFilled():
		rec.RaiseFilled(rec.Quantity)
		if rec.Status != domain.OrderStatus_Filled {
			e.transition(rec, domain.OrderStatus_Filled)
		}
	case rec.Status.IsTerminal():
	case state.Status == domain.OrderStatus_Cancelled || state.Status == domain.OrderStatus_Rejected:
		e.transition(rec, domain.OrderStatus_Cancelled)
	case raised && rec.Status != domain.OrderStatus_New:
		e.transition(rec, domain.OrderStatus_PartiallyFilled)
	}

	if !raised && before == rec.Status {
		return false
	}
	e.emit(rec, "reconciled", nil)
	return true
}

// Prune drops terminal records and processed trade ids older than the
// retention window.
func (e *OrderLifecycleEngine) Prune(now time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	pruned := 0
	for id, rec := range e.orders {
		if !rec.Status.IsTerminal() || rec.CancelAllPending || now.Sub(rec.UpdatedAt) < e.cfg.Retention {
			continue
		}
		delete(e.orders, id)
		if rec.TxHash != "" {
			delete(e.byTxHash, rec.TxHash)
		}
		delete(e.byClientIndex, rec.ClientOrderIndex)
		pruned++
	}
	for tradeID, seen := range e.processedTrades {
		if now.Sub(seen) >= e.cfg.Retention {
			delete(e.processedTrades, tradeID)
		}
	}
	return pruned
}

func (e *OrderLifecycleEngine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.Reconcile(ctx); n > 0 {
				e.logger.Info("reconciled orders", zap.Int("changed", n))
			}
			if n := e.Prune(e.now()); n > 0 {
				e.logger.Debug("pruned orders", zap.Int("count", n))
			}
		}
	}
}

func (e *OrderLifecycleEngine) Order(clientOrderID string) (domain.OrderRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.orders[clientOrderID]
	if !ok {
		return domain.OrderRecord{}, errors.Wrapf(domain.ErrOrderNotFound, "%q", clientOrderID)
	}
	return *rec, nil
}

// Orders returns copies of the records in scope, oldest first.
func (e *OrderLifecycleEngine) Orders(scope domain.CancelAllScope, openOnly bool) []domain.OrderRecord {
	e.mu.Lock()
	out := make([]domain.OrderRecord, 0, len(e.orders))
	for _, rec := range e.orders {
		if openOnly && !rec.Status.IsOpen() {
			continue
		}
		if scope.Matches(rec) {
			out = append(out, *rec)
		}
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ClientOrderID < out[j].ClientOrderID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (e *OrderLifecycleEngine) Account() (domain.AccountUpdate, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.account == nil {
		return domain.AccountUpdate{}, false
	}
	return *e.account, true
}

// allocateClientIndex derives the exchange client order index from the
// client order id, probing past indexes held by tracked orders.
func (e *OrderLifecycleEngine) allocateClientIndex(clientOrderID string) int64 {
	idx := int64(xxhash.Sum64String(clientOrderID) % clientOrderIndexSpace)
	for {
		if idx == 0 {
			idx = 1
		}
		if _, taken := e.byClientIndex[idx]; !taken {
			return idx
		}
		idx = (idx + 1) % clientOrderIndexSpace
	}
}

func (e *OrderLifecycleEngine) transition(rec *domain.OrderRecord, status domain.OrderStatus) {
	rec.Status = status
	rec.UpdatedAt = e.now()
	promclient.OrderTransitionCounter.WithLabelValues(string(status)).Inc()
}

func (e *OrderLifecycleEngine) emit(rec *domain.OrderRecord, reason string, fill *domain.Fill) {
	if e.sink == nil {
		return
	}
	e.sink.PublishOrderStatus(&domain.OrderStatusEvent{
		EventID:        xid.New().String(),
		ClientOrderID:  rec.ClientOrderID,
		TxHash:         rec.TxHash,
		Symbol:         rec.Symbol,
		Status:         rec.Status,
		FilledQuantity: rec.FilledQuantity,
		AvgFillPrice:   rec.AvgFillPrice,
		Reason:         reason,
		Fill:           fill,
		Timestamp:      e.now(),
	})
}

func observeSubmission(op string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	promclient.SubmissionLatency.WithLabelValues(op, result).Observe(time.Since(started).Seconds())
}
