package lighter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSyncAPIFetchMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/orderBooks", r.URL.Path)
		fmt.Fprint(w, `{"code":200,"order_books":[
			{"market_id":0,"symbol":"ETH","status":"active","min_base_amount":"0.0050","supported_size_decimals":4,"supported_price_decimals":2},
			{"market_id":1,"symbol":"BTC","status":"active","min_base_amount":"0.00020","supported_size_decimals":5,"supported_price_decimals":1},
			{"market_id":9,"symbol":"OLD","status":"inactive","supported_size_decimals":1,"supported_price_decimals":1}]}`)
	}))
	defer srv.Close()

	api := NewSyncAPI(zaptest.NewLogger(t), SyncAPIConfig{BaseURL: srv.URL + "/"})
	markets, err := api.FetchMarkets(context.Background())
	require.NoError(t, err)
	require.Len(t, markets, 2)

	btc := markets[1]
	assert.Equal(t, 1, btc.ID)
	assert.Equal(t, "BTC", btc.Symbol)
	assert.Equal(t, int32(1), btc.PriceDecimals)
	assert.Equal(t, int32(5), btc.SizeDecimals)
	assert.True(t, btc.MinBaseAmount.Equal(decimal.RequireFromString("0.0002")))
}

func TestSyncAPIErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		message string
	}{
		{
			name: "http status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "maintenance", http.StatusServiceUnavailable)
			},
			message: "http 503",
		},
		{
			name: "exchange code",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"code":29500,"message":"internal server error"}`)
			},
			message: "code 29500",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `<html>`)
			},
			message: "decode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			api := NewSyncAPI(zaptest.NewLogger(t), SyncAPIConfig{BaseURL: srv.URL})
			_, err := api.NextNonce(context.Background(), 1, 0)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
			assert.Contains(t, err.Error(), "/api/v1/nextNonce")
		})
	}
}

func TestSyncAPIRateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":200,"orders":[]}`)
	}))
	defer srv.Close()

	// a budget of 10 per minute admits one inactive-orders call, then waits a minute
	api := NewSyncAPI(zaptest.NewLogger(t), SyncAPIConfig{BaseURL: srv.URL, WeightPerMinute: 10})

	_, err := api.AccountInactiveOrders(context.Background(), 1, 0, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = api.AccountInactiveOrders(ctx, 1, 0, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestFallbackMarkets(t *testing.T) {
	markets := FallbackMarkets()
	require.Len(t, markets, len(fallbackBases))

	assert.Equal(t, "ETH", markets[0].Symbol)
	assert.Equal(t, int32(4), markets[0].SizeDecimals)
	assert.True(t, markets[0].MinBaseAmount.Equal(decimal.RequireFromString("0.005")))
	assert.Equal(t, "SOL", markets[2].Symbol)
	assert.Equal(t, int32(defaultPriceDecimals), markets[2].PriceDecimals)

	for i, m := range markets {
		assert.Equal(t, i, m.ID)
	}
}
