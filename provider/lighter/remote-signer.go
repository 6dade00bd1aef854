package lighter

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type RemoteSignerConfig struct {
	URL          string
	AccountIndex int64
	APIKeyIndex  int
	Timeout      time.Duration
}

// RemoteSigner delegates signing to a sidecar that holds the API private
// key. Every endpoint takes a JSON body and answers {"tx_info"} or {"token"},
// with {"error"} on failure.
type RemoteSigner struct {
	cfg    RemoteSignerConfig
	client *http.Client
}

func NewRemoteSigner(cfg RemoteSignerConfig) *RemoteSigner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &RemoteSigner{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type signRequest struct {
	AccountIndex int64       `json:"account_index"`
	APIKeyIndex  int         `json:"api_key_index"`
	Tx           interface{} `json:"tx,omitempty"`
	Deadline     int64       `json:"deadline,omitempty"`
}

type signResponse struct {
	TxInfo string `json:"tx_info"`
	Token  string `json:"token"`
	Error  string `json:"error"`
}

type createOrderPayload struct {
	MarketIndex      int   `json:"market_index"`
	ClientOrderIndex int64 `json:"client_order_index"`
	BaseAmount       int64 `json:"base_amount"`
	Price            int64 `json:"price"`
	IsAsk            bool  `json:"is_ask"`
	OrderType        int   `json:"order_type"`
	TimeInForce      int   `json:"time_in_force"`
	ReduceOnly       bool  `json:"reduce_only"`
	TriggerPrice     int64 `json:"trigger_price"`
	OrderExpiry      int64 `json:"order_expiry"`
	Nonce            int64 `json:"nonce"`
}

func (s *RemoteSigner) SignCreateOrder(tx *CreateOrderTx) (string, error) {
	resp, err := s.call("/sign/create_order", createOrderPayload(*tx), 0)
	return resp.TxInfo, err
}

func (s *RemoteSigner) SignCancelOrder(tx *CancelOrderTx) (string, error) {
	resp, err := s.call("/sign/cancel_order", map[string]int64{
		"market_index": int64(tx.MarketIndex),
		"order_index":  tx.OrderIndex,
		"nonce":        tx.Nonce,
	}, 0)
	return resp.TxInfo, err
}

func (s *RemoteSigner) SignCancelAllOrders(tx *CancelAllOrdersTx) (string, error) {
	resp, err := s.call("/sign/cancel_all_orders", map[string]int64{
		"time_in_force": int64(tx.TimeInForce),
		"time":          tx.Time,
		"nonce":         tx.Nonce,
	}, 0)
	return resp.TxInfo, err
}

func (s *RemoteSigner) CreateAuthToken(deadline time.Time) (string, error) {
	resp, err := s.call("/auth_token", nil, deadline.Unix())
	return resp.Token, err
}

func (s *RemoteSigner) call(path string, tx interface{}, deadline int64) (signResponse, error) {
	var out signResponse

	body, err := json.Marshal(signRequest{
		AccountIndex: s.cfg.AccountIndex,
		APIKeyIndex:  s.cfg.APIKeyIndex,
		Tx:           tx,
		Deadline:     deadline,
	})
	if err != nil {
		return out, errors.Wrap(err, path)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL+path, bytes.NewReader(body))
	if err != nil {
		return out, errors.Wrap(err, path)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return out, errors.Wrap(err, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return out, errors.Wrap(err, path)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, errors.Wrapf(err, "%s: http %d", path, resp.StatusCode)
	}
	if out.Error != "" {
		return out, errors.Errorf("%s: %s", path, out.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return out, errors.Errorf("%s: http %d", path, resp.StatusCode)
	}
	return out, nil
}
