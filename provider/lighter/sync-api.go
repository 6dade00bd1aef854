package lighter

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spooky-finn/go-lighter-cpty/domain"
	"github.com/spooky-finn/go-lighter-cpty/helpers"
)

const (
	DefaultBaseURL          = "https://mainnet.zklighter.elliot.ai"
	defaultWeightPerMinute  = 2400
	defaultEndpointWeight   = 30
	maxResponseBytes        = 8 << 20
	inactiveOrdersPageLimit = 100
)

// endpoint weights of the exchange's per-account REST budget
var endpointWeights = map[string]int{
	"/api/v1/sendTx":                1,
	"/api/v1/nextNonce":             1,
	"/api/v1/orderBooks":            1,
	"/api/v1/accountActiveOrders":   1,
	"/api/v1/accountInactiveOrders": 10,
}

type SyncAPIConfig struct {
	BaseURL         string
	Timeout         time.Duration
	WeightPerMinute int
}

// SyncAPI is the exchange's request/response API: market metadata, nonces,
// transaction submission and order queries.
type SyncAPI struct {
	logger  *zap.Logger
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

func NewSyncAPI(logger *zap.Logger, cfg SyncAPIConfig) *SyncAPI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.WeightPerMinute <= 0 {
		cfg.WeightPerMinute = defaultWeightPerMinute
	}
	perSecond := rate.Limit(float64(cfg.WeightPerMinute) / 60)

	return &SyncAPI{
		logger:  logger.Named("sync-api"),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(perSecond, cfg.WeightPerMinute),
	}
}

type responseStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type OrderBookDetailModel struct {
	MarketID               int             `json:"market_id"`
	Symbol                 string          `json:"symbol"`
	Status                 string          `json:"status"`
	MinBaseAmount          decimal.Decimal `json:"min_base_amount"`
	SupportedSizeDecimals  int32           `json:"supported_size_decimals"`
	SupportedPriceDecimals int32           `json:"supported_price_decimals"`
}

type orderBooksResponse struct {
	responseStatus
	OrderBooks []OrderBookDetailModel `json:"order_books"`
}

type nonceResponse struct {
	responseStatus
	Nonce int64 `json:"nonce"`
}

type sendTxResponse struct {
	responseStatus
	TxHash string `json:"tx_hash"`
}

type OrderModel struct {
	OrderIndex          int64           `json:"order_index"`
	ClientOrderIndex    int64           `json:"client_order_index"`
	MarketIndex         int             `json:"market_index"`
	InitialBaseAmount   decimal.Decimal `json:"initial_base_amount"`
	RemainingBaseAmount decimal.Decimal `json:"remaining_base_amount"`
	FilledBaseAmount    decimal.Decimal `json:"filled_base_amount"`
	Price               decimal.Decimal `json:"price"`
	IsAsk               bool            `json:"is_ask"`
	Status              string          `json:"status"`
}

type ordersResponse struct {
	responseStatus
	Orders []OrderModel `json:"orders"`
}

// FetchMarkets implements domain.MarketSource.
func (api *SyncAPI) FetchMarkets(ctx context.Context) ([]domain.MarketDescriptor, error) {
	var resp orderBooksResponse
	if err := api.get(ctx, "/api/v1/orderBooks", nil, &resp); err != nil {
		return nil, err
	}

	out := make([]domain.MarketDescriptor, 0, len(resp.OrderBooks))
	for _, ob := range resp.OrderBooks {
		if ob.Status != "" && ob.Status != "active" {
			continue
		}
		out = append(out, domain.MarketDescriptor{
			ID:            ob.MarketID,
			Symbol:        ob.Symbol,
			PriceDecimals: ob.SupportedPriceDecimals,
			SizeDecimals:  ob.SupportedSizeDecimals,
			MinBaseAmount: ob.MinBaseAmount,
		})
	}
	return out, nil
}

func (api *SyncAPI) NextNonce(ctx context.Context, accountIndex int64, apiKeyIndex int) (int64, error) {
	query := url.Values{}
	query.Set("account_index", helpers.IntToString(accountIndex))
	query.Set("api_key_index", strconv.Itoa(apiKeyIndex))

	var resp nonceResponse
	if err := api.get(ctx, "/api/v1/nextNonce", query, &resp); err != nil {
		return 0, err
	}
	return resp.Nonce, nil
}

// SendTx submits a signed transaction and returns its hash.
func (api *SyncAPI) SendTx(ctx context.Context, txType int, txInfo string) (string, error) {
	form := url.Values{}
	form.Set("tx_type", strconv.Itoa(txType))
	form.Set("tx_info", txInfo)

	var resp sendTxResponse
	if err := api.postForm(ctx, "/api/v1/sendTx", form, &resp); err != nil {
		return "", err
	}
	return resp.TxHash, nil
}

func (api *SyncAPI) AccountActiveOrders(ctx context.Context, accountIndex int64, marketID int, auth string) ([]OrderModel, error) {
	query := url.Values{}
	query.Set("account_index", helpers.IntToString(accountIndex))
	query.Set("market_id", strconv.Itoa(marketID))
	if auth != "" {
		query.Set("auth", auth)
	}

	var resp ordersResponse
	if err := api.get(ctx, "/api/v1/accountActiveOrders", query, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

func (api *SyncAPI) AccountInactiveOrders(ctx context.Context, accountIndex int64, marketID int, auth string) ([]OrderModel, error) {
	query := url.Values{}
	query.Set("account_index", helpers.IntToString(accountIndex))
	query.Set("market_id", strconv.Itoa(marketID))
	query.Set("limit", strconv.Itoa(inactiveOrdersPageLimit))
	if auth != "" {
		query.Set("auth", auth)
	}

	var resp ordersResponse
	if err := api.get(ctx, "/api/v1/accountInactiveOrders", query, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

func (api *SyncAPI) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	endpoint := api.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, path)
	}
	return api.do(ctx, path, req, out)
}

func (api *SyncAPI) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, api.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, path)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return api.do(ctx, path, req, out)
}

func (api *SyncAPI) do(ctx context.Context, path string, req *http.Request, out interface{}) error {
	weight, ok := endpointWeights[path]
	if !ok {
		weight = defaultEndpointWeight
	}
	if err := api.limiter.WaitN(ctx, weight); err != nil {
		return errors.Wrapf(err, "%s: rate limit", path)
	}

	resp, err := api.client.Do(req)
	if err != nil {
		return errors.Wrap(err, path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return errors.Wrapf(err, "%s: read body", path)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("%s: http %d: %s", path, resp.StatusCode, truncate(body))
	}

	var status responseStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return errors.Wrapf(err, "%s: decode", path)
	}
	if status.Code != 0 && status.Code != http.StatusOK {
		return errors.Errorf("%s: code %d: %s", path, status.Code, status.Message)
	}

	return errors.Wrapf(json.Unmarshal(body, out), "%s: decode", path)
}
