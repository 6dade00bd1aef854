package lighter

import (
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/spooky-finn/go-lighter-cpty/domain"
	"github.com/spooky-finn/go-lighter-cpty/helpers"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	MsgType_Connected         = "connected"
	MsgType_Subscribed        = "subscribed"
	MsgType_Unsubscribed      = "unsubscribed"
	MsgType_Ping              = "ping"
	MsgType_Pong              = "pong"
	MsgType_Error             = "error"
	MsgType_OrderBookSnapshot = "subscribed/order_book"
	MsgType_OrderBookUpdate   = "update/order_book"
	MsgType_AccountSnapshot   = "subscribed/account_all"
	MsgType_AccountUpdate     = "update/account_all"
	MsgType_TradeSnapshot     = "subscribed/trade"
	MsgType_TradeUpdate       = "update/trade"
)

const (
	orderBookChannelPrefix = "order_book"
	accountChannelPrefix   = "account_all"
	subscribeRequestType   = "subscribe"
	unsubscribeRequestType = "unsubscribe"
)

type WebSocketRequestModel struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Auth    string `json:"auth,omitempty"`
}

type messageHeader struct {
	Type    string      `json:"type"`
	Channel string      `json:"channel"`
	Error   *ErrorModel `json:"error"`
}

type ErrorModel struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type LevelModel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

type OrderBookMessage struct {
	Channel   string `json:"channel"`
	Offset    int64  `json:"offset"`
	OrderBook struct {
		Offset int64        `json:"offset"`
		Bids   []LevelModel `json:"bids"`
		Asks   []LevelModel `json:"asks"`
	} `json:"order_book"`
}

// flexString accepts both JSON strings and numbers.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	str := strings.Trim(string(data), `"`)
	if str == "null" {
		str = ""
	}
	*s = flexString(str)
	return nil
}

type TradeModel struct {
	TradeID      flexString      `json:"trade_id"`
	TxHash       string          `json:"tx_hash"`
	MarketID     int             `json:"market_id"`
	Price        decimal.Decimal `json:"price"`
	Size         decimal.Decimal `json:"size"`
	AskAccountID int64           `json:"ask_account_id"`
	BidAccountID int64           `json:"bid_account_id"`
	AskID        int64           `json:"ask_id"`
	BidID        int64           `json:"bid_id"`
	AskClientID  int64           `json:"ask_client_id"`
	BidClientID  int64           `json:"bid_client_id"`
	IsMakerAsk   bool            `json:"is_maker_ask"`
	Timestamp    int64           `json:"timestamp"`
}

type PositionModel struct {
	MarketID      int             `json:"market_id"`
	Position      decimal.Decimal `json:"position"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	Sign          int             `json:"sign"`
}

type AccountMessage struct {
	Channel          string              `json:"channel"`
	Account          int64               `json:"account"`
	Collateral       decimal.Decimal     `json:"collateral"`
	Positions        jsoniter.RawMessage `json:"positions"`
	Trades           jsoniter.RawMessage `json:"trades"`
	TotalTradesCount int64               `json:"total_trades_count"`
}

type TradeMessage struct {
	Channel string       `json:"channel"`
	Trades  []TradeModel `json:"trades"`
}

func subscribeRequest(channel, auth string) WebSocketRequestModel {
	return WebSocketRequestModel{Type: subscribeRequestType, Channel: channel, Auth: auth}
}

func unsubscribeRequest(channel string) WebSocketRequestModel {
	return WebSocketRequestModel{Type: unsubscribeRequestType, Channel: channel}
}

func orderBookChannel(marketID int) string {
	return orderBookChannelPrefix + "/" + strconv.Itoa(marketID)
}

func accountChannel(accountIndex int64) string {
	return accountChannelPrefix + "/" + helpers.IntToString(accountIndex)
}

// channelID extracts the trailing numeric id of "order_book:1" or "order_book/1".
func channelID(channel string) (int64, error) {
	parts := helpers.SplitChannel(channel)
	if len(parts) < 2 {
		return 0, errors.Errorf("channel %q has no id", channel)
	}
	id, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	return id, errors.Wrapf(err, "channel %q", channel)
}

// ParseOrderBook decodes a snapshot or delta into a domain update. The
// sequence is the book's offset, falling back to the message offset.
func ParseOrderBook(raw []byte) (*domain.BookUpdate, error) {
	var msg OrderBookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, errors.Wrap(err, "decode order book")
	}
	marketID, err := channelID(msg.Channel)
	if err != nil {
		return nil, err
	}

	sequence := msg.OrderBook.Offset
	if sequence == 0 {
		sequence = msg.Offset
	}

	return &domain.BookUpdate{
		MarketID: int(marketID),
		Sequence: sequence,
		Bids:     toLevels(msg.OrderBook.Bids),
		Asks:     toLevels(msg.OrderBook.Asks),
	}, nil
}

func toLevels(models []LevelModel) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(models))
	for _, m := range models {
		levels = append(levels, domain.PriceLevel{Price: m.Price, Size: m.Size})
	}
	return levels
}

// ParseAccount decodes an account_all message. Trades arrive keyed by
// market id; positions arrive either keyed by market id or as a list.
func ParseAccount(raw []byte) (*domain.AccountUpdate, []TradeModel, error) {
	var msg AccountMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "decode account")
	}

	account := msg.Account
	if account == 0 && msg.Channel != "" {
		if id, err := channelID(msg.Channel); err == nil {
			account = id
		}
	}

	positions, err := parsePositions(msg.Positions)
	if err != nil {
		return nil, nil, err
	}
	trades, err := parseTradeMap(msg.Trades)
	if err != nil {
		return nil, nil, err
	}

	update := &domain.AccountUpdate{
		AccountIndex: account,
		Collateral:   msg.Collateral,
		Positions:    positions,
		TotalTrades:  msg.TotalTradesCount,
		Timestamp:    time.Now(),
	}
	return update, trades, nil
}

func parsePositions(raw jsoniter.RawMessage) ([]domain.Position, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var models []PositionModel
	if raw[0] == '{' {
		byMarket := map[string]PositionModel{}
		if err := json.Unmarshal(raw, &byMarket); err != nil {
			return nil, errors.Wrap(err, "decode positions")
		}
		for key, m := range byMarket {
			if m.MarketID == 0 {
				if id, err := strconv.Atoi(key); err == nil {
					m.MarketID = id
				}
			}
			models = append(models, m)
		}
	} else if err := json.Unmarshal(raw, &models); err != nil {
		return nil, errors.Wrap(err, "decode positions")
	}

	positions := make([]domain.Position, 0, len(models))
	for _, m := range models {
		size := m.Position
		if m.Sign < 0 {
			size = size.Neg()
		}
		positions = append(positions, domain.Position{MarketID: m.MarketID, Size: size, AvgEntryPrice: m.AvgEntryPrice})
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].MarketID < positions[j].MarketID })
	return positions, nil
}

func parseTradeMap(raw jsoniter.RawMessage) ([]TradeModel, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var trades []TradeModel
		err := json.Unmarshal(raw, &trades)
		return trades, errors.Wrap(err, "decode trades")
	}

	byMarket := map[string][]TradeModel{}
	if err := json.Unmarshal(raw, &byMarket); err != nil {
		return nil, errors.Wrap(err, "decode trades")
	}
	var trades []TradeModel
	for key, list := range byMarket {
		marketID, _ := strconv.Atoi(key)
		for _, t := range list {
			if t.MarketID == 0 {
				t.MarketID = marketID
			}
			trades = append(trades, t)
		}
	}
	return trades, nil
}

// ToTradeEvents attributes trades to our account. With account < 0 every
// trade is kept with an unknown side. A self trade yields one event per side.
func ToTradeEvents(trades []TradeModel, account int64) []*domain.TradeEvent {
	events := make([]*domain.TradeEvent, 0, len(trades))
	for _, t := range trades {
		base := domain.TradeEvent{
			TradeID:   string(t.TradeID),
			MarketID:  t.MarketID,
			Price:     t.Price,
			Size:      t.Size,
			TxHash:    t.TxHash,
			Side:      domain.Side_Unknown,
			Timestamp: tradeTime(t.Timestamp),
		}

		if account < 0 {
			e := base
			events = append(events, &e)
			continue
		}

		ours := 0
		if t.AskAccountID == account {
			ours++
		}
		if t.BidAccountID == account {
			ours++
		}
		if t.AskAccountID == account {
			e := base
			e.Side = domain.Side_Sell
			e.ClientOrderIndex = t.AskClientID
			e.IsTaker = !t.IsMakerAsk
			if ours > 1 {
				e.TradeID += ":ask"
			}
			events = append(events, &e)
		}
		if t.BidAccountID == account {
			e := base
			e.Side = domain.Side_Buy
			e.ClientOrderIndex = t.BidClientID
			e.IsTaker = t.IsMakerAsk
			if ours > 1 {
				e.TradeID += ":bid"
			}
			events = append(events, &e)
		}
	}
	return events
}

func tradeTime(ts int64) time.Time {
	switch {
	case ts <= 0:
		return time.Time{}
	case ts > 1e15:
		return time.UnixMicro(ts)
	case ts > 1e12:
		return time.UnixMilli(ts)
	}
	return time.Unix(ts, 0)
}
