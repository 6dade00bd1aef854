package lighter

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/recws-org/recws"
	"go.uber.org/zap"

	"github.com/spooky-finn/go-lighter-cpty/domain"
	promclient "github.com/spooky-finn/go-lighter-cpty/infrastructure/prometheus"
)

// wireWriter is the outbound half of the stream connection.
type wireWriter interface {
	WriteJSON(v interface{}) error
}

// AuthTokenSource returns a fresh token for private channels.
type AuthTokenSource func() (string, error)

type DispatcherConfig struct {
	// AccountIndex < 0 disables the account channel and trade attribution.
	AccountIndex int64
	Auth         AuthTokenSource
}

// Dispatcher routes inbound stream messages to the book and account
// handlers and owns the set of subscribed channels. HandleMessage must be
// called from a single goroutine.
type Dispatcher struct {
	logger  *zap.Logger
	books   domain.BookHandler
	account domain.AccountHandler
	cfg     DispatcherConfig

	mu       sync.Mutex
	writer   wireWriter
	channels map[string]bool // channel -> needs auth
}

func NewDispatcher(logger *zap.Logger, books domain.BookHandler, account domain.AccountHandler, cfg DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		logger:   logger.Named("dispatcher"),
		books:    books,
		account:  account,
		cfg:      cfg,
		channels: make(map[string]bool),
	}
}

// Attach sets the connection used for subscription requests.
func (d *Dispatcher) Attach(w wireWriter) {
	d.mu.Lock()
	d.writer = w
	d.mu.Unlock()
}

func (d *Dispatcher) SubscribeMarket(marketID int) error {
	return d.subscribe(orderBookChannel(marketID), false)
}

func (d *Dispatcher) UnsubscribeMarket(marketID int) error {
	channel := orderBookChannel(marketID)

	d.mu.Lock()
	delete(d.channels, channel)
	d.mu.Unlock()

	return d.write(unsubscribeRequest(channel))
}

func (d *Dispatcher) SubscribeAccount() error {
	if d.cfg.AccountIndex < 0 {
		return errors.New("no account configured")
	}
	return d.subscribe(accountChannel(d.cfg.AccountIndex), true)
}

// Resync drops and re-adds the market's subscription so the exchange
// sends a fresh snapshot.
func (d *Dispatcher) Resync(marketID int) error {
	promclient.StreamResyncCounter.Inc()
	channel := orderBookChannel(marketID)

	if err := d.write(unsubscribeRequest(channel)); err != nil {
		return errors.Wrapf(err, "resync market %d", marketID)
	}
	return errors.Wrapf(d.subscribe(channel, false), "resync market %d", marketID)
}

// Resubscribe sends a subscribe request for every known channel. It is run
// on every (re)connect.
func (d *Dispatcher) Resubscribe() error {
	d.mu.Lock()
	auth := make(map[string]bool, len(d.channels))
	for channel, needsAuth := range d.channels {
		auth[channel] = needsAuth
	}
	d.mu.Unlock()

	channels := make([]string, 0, len(auth))
	for channel := range auth {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	var firstErr error
	for _, channel := range channels {
		if err := d.sendSubscribe(channel, auth[channel]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.logger.Info("resubscribed", zap.Int("channels", len(channels)), zap.Error(firstErr))
	return firstErr
}

// Channels returns the subscribed channels, sorted.
func (d *Dispatcher) Channels() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]string, 0, len(d.channels))
	for channel := range d.channels {
		out = append(out, channel)
	}
	sort.Strings(out)
	return out
}

func (d *Dispatcher) subscribe(channel string, needsAuth bool) error {
	d.mu.Lock()
	d.channels[channel] = needsAuth
	d.mu.Unlock()

	return d.sendSubscribe(channel, needsAuth)
}

func (d *Dispatcher) sendSubscribe(channel string, needsAuth bool) error {
	auth := ""
	if needsAuth && d.cfg.Auth != nil {
		token, err := d.cfg.Auth()
		if err != nil {
			return errors.Wrapf(err, "auth token for %s", channel)
		}
		auth = token
	}
	return d.write(subscribeRequest(channel, auth))
}

// write tolerates a missing connection: the channel is kept and sent again
// by Resubscribe once connected.
func (d *Dispatcher) write(req interface{}) error {
	d.mu.Lock()
	w := d.writer
	d.mu.Unlock()

	if w == nil {
		return nil
	}
	err := w.WriteJSON(req)
	if errors.Is(err, recws.ErrNotConnected) {
		return nil
	}
	return err
}

func (d *Dispatcher) HandleMessage(raw []byte) {
	if len(raw) == 0 {
		return
	}
	var head messageHeader
	if err := json.Unmarshal(raw, &head); err != nil {
		d.logger.Warn("undecodable message", zap.Error(err), zap.ByteString("raw", truncate(raw)))
		return
	}
	if head.Type == "" && head.Error != nil {
		head.Type = MsgType_Error
	}
	promclient.StreamMessageCounter.WithLabelValues(head.Type).Inc()

	switch head.Type {
	case MsgType_OrderBookSnapshot, MsgType_OrderBookUpdate:
		d.handleOrderBook(head.Type == MsgType_OrderBookSnapshot, raw)
	case MsgType_AccountSnapshot, MsgType_AccountUpdate:
		d.handleAccount(raw)
	case MsgType_TradeSnapshot, MsgType_TradeUpdate:
		d.handleTrades(raw)
	case MsgType_Ping:
		if err := d.write(WebSocketRequestModel{Type: MsgType_Pong}); err != nil {
			d.logger.Warn("pong", zap.Error(err))
		}
	case MsgType_Connected:
		d.logger.Info("stream connected")
	case MsgType_Subscribed, MsgType_Unsubscribed, MsgType_Pong:
		d.logger.Debug(head.Type, zap.String("channel", head.Channel))
	case MsgType_Error:
		fields := []zap.Field{zap.String("channel", head.Channel)}
		if head.Error != nil {
			fields = append(fields, zap.Int("code", head.Error.Code), zap.String("message", head.Error.Message))
		}
		d.logger.Warn("stream error", fields...)
	default:
		d.logger.Debug("unhandled message", zap.String("type", head.Type), zap.String("channel", head.Channel))
	}
}

func (d *Dispatcher) handleOrderBook(snapshot bool, raw []byte) {
	update, err := ParseOrderBook(raw)
	if err != nil {
		d.logger.Warn("bad order book message", zap.Error(err))
		return
	}
	if snapshot {
		d.books.OnSnapshot(update)
		return
	}
	d.books.OnDelta(update)
}

func (d *Dispatcher) handleAccount(raw []byte) {
	update, trades, err := ParseAccount(raw)
	if err != nil {
		d.logger.Warn("bad account message", zap.Error(err))
		return
	}
	if d.account == nil {
		return
	}
	for _, trade := range ToTradeEvents(trades, d.cfg.AccountIndex) {
		d.account.OnTrade(trade)
	}
	d.account.OnAccountUpdate(update)
}

func (d *Dispatcher) handleTrades(raw []byte) {
	var msg TradeMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		d.logger.Warn("bad trade message", zap.Error(err))
		return
	}
	// public trade channels only matter when they carry our account
	if d.account == nil || d.cfg.AccountIndex < 0 {
		return
	}
	for _, trade := range ToTradeEvents(msg.Trades, d.cfg.AccountIndex) {
		d.account.OnTrade(trade)
	}
}

// OnDisconnect invalidates every book; channels are kept for Resubscribe.
func (d *Dispatcher) OnDisconnect() {
	d.books.OnDisconnect()
}

func truncate(raw []byte) []byte {
	if len(raw) > 256 {
		return raw[:256]
	}
	return raw
}
