package lighter

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/recws-org/recws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spooky-finn/go-lighter-cpty/domain"
)

type fakeWriter struct {
	mu   sync.Mutex
	sent []WebSocketRequestModel
	err  error
}

func (w *fakeWriter) WriteJSON(v interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.sent = append(w.sent, v.(WebSocketRequestModel))
	return nil
}

func (w *fakeWriter) requests() []WebSocketRequestModel {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]WebSocketRequestModel(nil), w.sent...)
}

type fakeBooks struct {
	snapshots    []*domain.BookUpdate
	deltas       []*domain.BookUpdate
	disconnected int
}

func (b *fakeBooks) OnSnapshot(u *domain.BookUpdate) { b.snapshots = append(b.snapshots, u) }
func (b *fakeBooks) OnDelta(u *domain.BookUpdate)    { b.deltas = append(b.deltas, u) }
func (b *fakeBooks) OnDisconnect()                   { b.disconnected++ }

type fakeAccount struct {
	trades  []*domain.TradeEvent
	updates []*domain.AccountUpdate
}

func (a *fakeAccount) OnTrade(t *domain.TradeEvent)            { a.trades = append(a.trades, t) }
func (a *fakeAccount) OnAccountUpdate(u *domain.AccountUpdate) { a.updates = append(a.updates, u) }

func newTestDispatcher(t *testing.T, account int64) (*Dispatcher, *fakeWriter, *fakeBooks, *fakeAccount) {
	books := &fakeBooks{}
	acc := &fakeAccount{}
	w := &fakeWriter{}
	d := NewDispatcher(zaptest.NewLogger(t), books, acc, DispatcherConfig{
		AccountIndex: account,
		Auth:         func() (string, error) { return "token", nil },
	})
	d.Attach(w)
	return d, w, books, acc
}

func TestDispatcherSubscriptions(t *testing.T) {
	d, w, _, _ := newTestDispatcher(t, 12)

	require.NoError(t, d.SubscribeMarket(1))
	require.NoError(t, d.SubscribeMarket(0))
	require.NoError(t, d.SubscribeAccount())

	assert.Equal(t, []string{"account_all/12", "order_book/0", "order_book/1"}, d.Channels())

	sent := w.requests()
	require.Len(t, sent, 3)
	assert.Equal(t, WebSocketRequestModel{Type: "subscribe", Channel: "order_book/1"}, sent[0])
	assert.Equal(t, WebSocketRequestModel{Type: "subscribe", Channel: "account_all/12", Auth: "token"}, sent[2])

	require.NoError(t, d.UnsubscribeMarket(1))
	assert.Equal(t, []string{"account_all/12", "order_book/0"}, d.Channels())
	assert.Equal(t, "unsubscribe", w.requests()[3].Type)
}

func TestDispatcherSubscribeAccountDisabled(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t, -1)
	assert.Error(t, d.SubscribeAccount())
}

func TestDispatcherResyncAndResubscribe(t *testing.T) {
	d, w, _, _ := newTestDispatcher(t, 12)
	require.NoError(t, d.SubscribeMarket(2))
	require.NoError(t, d.SubscribeAccount())

	require.NoError(t, d.Resync(2))
	sent := w.requests()
	require.Len(t, sent, 4)
	assert.Equal(t, WebSocketRequestModel{Type: "unsubscribe", Channel: "order_book/2"}, sent[2])
	assert.Equal(t, WebSocketRequestModel{Type: "subscribe", Channel: "order_book/2"}, sent[3])

	require.NoError(t, d.Resubscribe())
	sent = w.requests()
	require.Len(t, sent, 6)
	assert.Equal(t, "account_all/12", sent[4].Channel)
	assert.Equal(t, "token", sent[4].Auth)
	assert.Equal(t, "order_book/2", sent[5].Channel)
}

func TestDispatcherToleratesMissingConnection(t *testing.T) {
	d := NewDispatcher(zaptest.NewLogger(t), &fakeBooks{}, nil, DispatcherConfig{AccountIndex: -1})
	require.NoError(t, d.SubscribeMarket(0))

	w := &fakeWriter{err: recws.ErrNotConnected}
	d.Attach(w)
	require.NoError(t, d.SubscribeMarket(1))
	assert.Equal(t, []string{"order_book/0", "order_book/1"}, d.Channels())

	w.err = errors.New("broken pipe")
	assert.Error(t, d.Resubscribe())
}

func TestDispatcherRoutesMessages(t *testing.T) {
	d, w, books, acc := newTestDispatcher(t, 12)

	d.HandleMessage([]byte(`{"type":"subscribed/order_book","channel":"order_book:0","order_book":{"offset":1,"bids":[{"price":"10","size":"1"}],"asks":[]}}`))
	d.HandleMessage([]byte(`{"type":"update/order_book","channel":"order_book:0","order_book":{"offset":2,"bids":[],"asks":[{"price":"11","size":"1"}]}}`))
	d.HandleMessage([]byte(`{"type":"update/account_all","channel":"account_all:12","trades":{"0":[{"trade_id":"t1","price":"10","size":"1","bid_account_id":12,"bid_client_id":3}]}}`))
	d.HandleMessage([]byte(`{"type":"update/trade","channel":"trade:0","trades":[{"trade_id":"t2","market_id":0,"price":"10","size":"1","ask_account_id":12,"ask_client_id":4}]}`))
	d.HandleMessage([]byte(`{"type":"ping"}`))
	d.HandleMessage([]byte(`{"error":{"code":30003,"message":"invalid channel"}}`))
	d.HandleMessage([]byte(`not json`))
	d.HandleMessage([]byte(`{"type":"update/order_book","channel":"order_book"}`))

	require.Len(t, books.snapshots, 1)
	assert.Equal(t, int64(1), books.snapshots[0].Sequence)
	require.Len(t, books.deltas, 1)
	assert.Equal(t, int64(2), books.deltas[0].Sequence)

	require.Len(t, acc.trades, 2)
	assert.Equal(t, "t1", acc.trades[0].TradeID)
	assert.Equal(t, domain.Side_Buy, acc.trades[0].Side)
	assert.Equal(t, "t2", acc.trades[1].TradeID)
	assert.Equal(t, domain.Side_Sell, acc.trades[1].Side)
	require.Len(t, acc.updates, 1)

	sent := w.requests()
	require.Len(t, sent, 1)
	assert.Equal(t, "pong", sent[0].Type)

	d.OnDisconnect()
	assert.Equal(t, 1, books.disconnected)
}

func TestDispatcherIgnoresEmptyFrames(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	books := &fakeBooks{}
	acc := &fakeAccount{}
	w := &fakeWriter{}
	d := NewDispatcher(zap.New(core), books, acc, DispatcherConfig{AccountIndex: 12})
	d.Attach(w)

	d.HandleMessage(nil)
	d.HandleMessage([]byte{})

	assert.Zero(t, logs.Len())
	assert.Empty(t, books.snapshots)
	assert.Empty(t, books.deltas)
	assert.Empty(t, acc.trades)
	assert.Empty(t, w.requests())

	d.HandleMessage([]byte(`not json`))
	assert.Equal(t, 1, logs.FilterMessage("undecodable message").Len())
}
