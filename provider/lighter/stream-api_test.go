package lighter

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spooky-finn/go-lighter-cpty/domain"
)

func TestParseOrderBook(t *testing.T) {
	raw := []byte(`{
		"channel": "order_book:1",
		"offset": 7,
		"type": "update/order_book",
		"order_book": {
			"offset": 42,
			"bids": [{"price": "100.5", "size": "2"}],
			"asks": [{"price": 101, "size": 0.5}, {"price": "102", "size": "0"}]
		}
	}`)

	update, err := ParseOrderBook(raw)
	require.NoError(t, err)

	assert.Equal(t, 1, update.MarketID)
	assert.Equal(t, int64(42), update.Sequence)
	require.Len(t, update.Bids, 1)
	assert.True(t, update.Bids[0].Price.Equal(decimal.RequireFromString("100.5")))
	require.Len(t, update.Asks, 2)
	assert.True(t, update.Asks[0].Size.Equal(decimal.RequireFromString("0.5")))
	assert.True(t, update.Asks[1].Size.IsZero())
}

func TestParseOrderBookFallsBackToMessageOffset(t *testing.T) {
	update, err := ParseOrderBook([]byte(`{"channel":"order_book/3","offset":9,"order_book":{"bids":[],"asks":[]}}`))
	require.NoError(t, err)
	assert.Equal(t, 3, update.MarketID)
	assert.Equal(t, int64(9), update.Sequence)
}

func TestParseOrderBookErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"channel without id", `{"channel":"order_book","order_book":{}}`},
		{"non numeric id", `{"channel":"order_book:eth","order_book":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOrderBook([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestParseAccount(t *testing.T) {
	raw := []byte(`{
		"type": "update/account_all",
		"channel": "account_all:12",
		"collateral": "1500.25",
		"total_trades_count": 3,
		"positions": {
			"1": {"market_id": 1, "position": "0.2", "avg_entry_price": "60000", "sign": -1},
			"0": {"position": "1.5", "avg_entry_price": "3000", "sign": 1}
		},
		"trades": {
			"0": [{"trade_id": 555, "tx_hash": "0xabc", "price": "3000", "size": "1",
				"ask_account_id": 99, "bid_account_id": 12, "bid_client_id": 7, "is_maker_ask": true, "timestamp": 1700000000000}]
		}
	}`)

	update, trades, err := ParseAccount(raw)
	require.NoError(t, err)

	assert.Equal(t, int64(12), update.AccountIndex)
	assert.True(t, update.Collateral.Equal(decimal.RequireFromString("1500.25")))
	assert.Equal(t, int64(3), update.TotalTrades)
	require.Len(t, update.Positions, 2)
	assert.Equal(t, 0, update.Positions[0].MarketID)
	assert.True(t, update.Positions[0].Size.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, 1, update.Positions[1].MarketID)
	assert.True(t, update.Positions[1].Size.Equal(decimal.RequireFromString("-0.2")))

	require.Len(t, trades, 1)
	assert.Equal(t, "555", string(trades[0].TradeID))
	assert.Equal(t, 0, trades[0].MarketID)
}

func TestParseAccountPositionList(t *testing.T) {
	update, trades, err := ParseAccount([]byte(`{"account":5,"positions":[{"market_id":2,"position":"3","sign":1}],"trades":[]}`))
	require.NoError(t, err)
	assert.Equal(t, int64(5), update.AccountIndex)
	require.Len(t, update.Positions, 1)
	assert.Equal(t, 2, update.Positions[0].MarketID)
	assert.Empty(t, trades)
}

func TestToTradeEvents(t *testing.T) {
	trades := []TradeModel{
		{TradeID: "1", MarketID: 0, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1),
			AskAccountID: 12, BidAccountID: 99, AskClientID: 4, IsMakerAsk: true, Timestamp: 1700000000},
		{TradeID: "2", MarketID: 0, Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(1),
			AskAccountID: 98, BidAccountID: 99},
		{TradeID: "3", MarketID: 1, Price: decimal.NewFromInt(50), Size: decimal.NewFromInt(2),
			AskAccountID: 12, BidAccountID: 12, AskClientID: 5, BidClientID: 6},
	}

	events := ToTradeEvents(trades, 12)
	require.Len(t, events, 3)

	assert.Equal(t, "1", events[0].TradeID)
	assert.Equal(t, domain.Side_Sell, events[0].Side)
	assert.Equal(t, int64(4), events[0].ClientOrderIndex)
	assert.False(t, events[0].IsTaker)
	assert.Equal(t, time.Unix(1700000000, 0), events[0].Timestamp)

	assert.Equal(t, "3:ask", events[1].TradeID)
	assert.Equal(t, int64(5), events[1].ClientOrderIndex)
	assert.Equal(t, "3:bid", events[2].TradeID)
	assert.Equal(t, domain.Side_Buy, events[2].Side)
	assert.Equal(t, int64(6), events[2].ClientOrderIndex)
}

func TestToTradeEventsWithoutAccount(t *testing.T) {
	events := ToTradeEvents([]TradeModel{{TradeID: "1", AskAccountID: 1, BidAccountID: 2}}, -1)
	require.Len(t, events, 1)
	assert.Equal(t, domain.Side_Unknown, events[0].Side)
}

func TestTradeTime(t *testing.T) {
	assert.True(t, tradeTime(0).IsZero())
	assert.Equal(t, time.Unix(1700000000, 0), tradeTime(1700000000))
	assert.Equal(t, time.UnixMilli(1700000000123), tradeTime(1700000000123))
	assert.Equal(t, time.UnixMicro(1700000000123456), tradeTime(1700000000123456))
}
