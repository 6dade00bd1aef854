package lighter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/spooky-finn/go-lighter-cpty/domain"
)

type fakeSigner struct {
	mu      sync.Mutex
	creates []CreateOrderTx
	cancels []CancelOrderTx
	all     []CancelAllOrdersTx
	tokens  int
}

func (s *fakeSigner) SignCreateOrder(tx *CreateOrderTx) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates = append(s.creates, *tx)
	return fmt.Sprintf("create-%d", tx.Nonce), nil
}

func (s *fakeSigner) SignCancelOrder(tx *CancelOrderTx) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels = append(s.cancels, *tx)
	return fmt.Sprintf("cancel-%d", tx.Nonce), nil
}

func (s *fakeSigner) SignCancelAllOrders(tx *CancelAllOrdersTx) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, *tx)
	return fmt.Sprintf("cancel-all-%d", tx.Nonce), nil
}

func (s *fakeSigner) CreateAuthToken(deadline time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens++
	return fmt.Sprintf("auth-%d", s.tokens), nil
}

// fakeExchange serves the REST endpoints the tx client uses.
type fakeExchange struct {
	mu          sync.Mutex
	nonce       int64
	nonceCalls  int
	failSend    bool
	sentTypes   []string
	sentInfos   []string
	activeJSON  string
	historyJSON string
}

func (f *fakeExchange) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/nextNonce", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		assert.Equal(t, "12", r.URL.Query().Get("account_index"))
		assert.Equal(t, "3", r.URL.Query().Get("api_key_index"))
		f.nonceCalls++
		fmt.Fprintf(w, `{"code":200,"nonce":%d}`, f.nonce)
	})
	mux.HandleFunc("/api/v1/sendTx", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		require.NoError(t, r.ParseForm())
		if f.failSend {
			fmt.Fprint(w, `{"code":21104,"message":"invalid nonce"}`)
			return
		}
		f.sentTypes = append(f.sentTypes, r.PostForm.Get("tx_type"))
		f.sentInfos = append(f.sentInfos, r.PostForm.Get("tx_info"))
		fmt.Fprintf(w, `{"code":200,"tx_hash":"0xhash%d"}`, len(f.sentInfos))
	})
	mux.HandleFunc("/api/v1/accountActiveOrders", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("auth"))
		fmt.Fprint(w, f.activeJSON)
	})
	mux.HandleFunc("/api/v1/accountInactiveOrders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		fmt.Fprint(w, f.historyJSON)
	})
	return mux
}

func newTestTxClient(t *testing.T, exchange *fakeExchange) (*TxClient, *fakeSigner) {
	srv := httptest.NewServer(exchange.handler(t))
	t.Cleanup(srv.Close)

	logger := zaptest.NewLogger(t)
	api := NewSyncAPI(logger, SyncAPIConfig{BaseURL: srv.URL})
	signer := &fakeSigner{}
	return NewTxClient(logger, api, signer, TxClientConfig{AccountIndex: 12, APIKeyIndex: 3}), signer
}

func TestTxClientSubmitOrder(t *testing.T) {
	exchange := &fakeExchange{nonce: 40}
	client, signer := newTestTxClient(t, exchange)
	ctx := context.Background()

	hash, err := client.SubmitOrder(ctx, &domain.OrderSubmission{
		ClientOrderIndex: 77, MarketID: 1, Price: 650001, BaseAmount: 20, TimeInForce: domain.TimeInForce_GoodTillCancel,
	})
	require.NoError(t, err)
	assert.Equal(t, "0xhash1", hash)

	_, err = client.SubmitOrder(ctx, &domain.OrderSubmission{
		ClientOrderIndex: 78, MarketID: 1, IsAsk: true, Price: 650001, BaseAmount: 20, TimeInForce: domain.TimeInForce_ImmediateOrCancel,
	})
	require.NoError(t, err)

	_, err = client.SubmitOrder(ctx, &domain.OrderSubmission{
		ClientOrderIndex: 79, MarketID: 1, Price: 650001, BaseAmount: 20, PostOnly: true,
	})
	require.NoError(t, err)

	require.Len(t, signer.creates, 3)
	assert.Equal(t, int64(40), signer.creates[0].Nonce)
	assert.Equal(t, TimeInForce_GoodTillTime, signer.creates[0].TimeInForce)
	assert.Equal(t, int64(DefaultOrderExpiry), signer.creates[0].OrderExpiry)
	assert.Equal(t, int64(41), signer.creates[1].Nonce)
	assert.Equal(t, TimeInForce_ImmediateOrCancel, signer.creates[1].TimeInForce)
	assert.Equal(t, int64(0), signer.creates[1].OrderExpiry)
	assert.True(t, signer.creates[1].IsAsk)
	assert.Equal(t, TimeInForce_PostOnly, signer.creates[2].TimeInForce)

	assert.Equal(t, 1, exchange.nonceCalls)
	assert.Equal(t, []string{"14", "14", "14"}, exchange.sentTypes)
	assert.Equal(t, "create-42", exchange.sentInfos[2])
}

func TestTxClientRefetchesNonceAfterFailure(t *testing.T) {
	exchange := &fakeExchange{nonce: 5, failSend: true}
	client, _ := newTestTxClient(t, exchange)
	ctx := context.Background()

	_, err := client.CancelOrder(ctx, &domain.CancelSubmission{ClientOrderIndex: 9, MarketID: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid nonce")

	exchange.mu.Lock()
	exchange.failSend = false
	exchange.nonce = 6
	exchange.mu.Unlock()

	_, err = client.CancelOrder(ctx, &domain.CancelSubmission{ClientOrderIndex: 9, MarketID: 0})
	require.NoError(t, err)
	assert.Equal(t, 2, exchange.nonceCalls)
	assert.Equal(t, []string{"cancel-6"}, exchange.sentInfos)
	assert.Equal(t, []string{"15"}, exchange.sentTypes)
}

func TestTxClientCancelAll(t *testing.T) {
	exchange := &fakeExchange{}
	client, signer := newTestTxClient(t, exchange)

	require.NoError(t, client.CancelAll(context.Background(), domain.CancelAllScope{Account: "main"}))
	require.Len(t, signer.all, 1)
	assert.Equal(t, CancelAllTimeInForce_Immediate, signer.all[0].TimeInForce)
	assert.Equal(t, []string{"16"}, exchange.sentTypes)
}

func TestTxClientQueryOrder(t *testing.T) {
	exchange := &fakeExchange{
		activeJSON: `{"code":200,"orders":[
			{"client_order_index":1,"filled_base_amount":"0","status":"open"},
			{"client_order_index":2,"filled_base_amount":"0.5","status":"open"}]}`,
		historyJSON: `{"code":200,"orders":[
			{"client_order_index":3,"filled_base_amount":"1","status":"filled"},
			{"client_order_index":4,"filled_base_amount":"0","status":"canceled-post-only"}]}`,
	}
	client, signer := newTestTxClient(t, exchange)

	tests := []struct {
		index  int64
		found  bool
		status domain.OrderStatus
		filled string
	}{
		{1, true, domain.OrderStatus_Acknowledged, "0"},
		{2, true, domain.OrderStatus_PartiallyFilled, "0.5"},
		{3, true, domain.OrderStatus_Filled, "1"},
		{4, true, domain.OrderStatus_Cancelled, "0"},
		{5, false, "", "0"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.index), func(t *testing.T) {
			state, err := client.QueryOrder(context.Background(), &domain.OrderRecord{ClientOrderIndex: tt.index})
			require.NoError(t, err)
			assert.Equal(t, tt.found, state.Found)
			if tt.found {
				assert.Equal(t, tt.status, state.Status)
				assert.True(t, state.FilledQuantity.Equal(decimal.RequireFromString(tt.filled)))
			}
		})
	}

	assert.Equal(t, 1, signer.tokens, "auth token is cached")
}

func TestTxClientAuthTokenRefresh(t *testing.T) {
	client, signer := newTestTxClient(t, &fakeExchange{})
	now := time.Unix(1700000000, 0)
	client.now = func() time.Time { return now }

	first, err := client.AuthToken()
	require.NoError(t, err)
	now = now.Add(5 * time.Minute)
	second, err := client.AuthToken()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	now = now.Add(authTokenLifetime)
	third, err := client.AuthToken()
	require.NoError(t, err)
	assert.NotEqual(t, first, third)
	assert.Equal(t, 2, signer.tokens)
}
