// Package blowfin implements the Blowfin perpetual-futures exchange
// adapter: a go-resty REST client for order placement and balance reads,
// and a gorilla/websocket client for the private order-book stream. The
// public kline stream is consumed by internal/feed, not by this package.
//
// Grounded on 0xtitan6-polymarket-mm's internal/exchange/client.go
// (resty.Client construction, retry policy, header-building-then-R()
// call shape) and original_source/services/trading_engine.rs /
// services/blowfin/auth.rs for the endpoint paths and response shape.
package blowfin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/mkwiatkowski/tradebot/internal/domain"
	"github.com/mkwiatkowski/tradebot/internal/signer"
)

// PlaceOrderWithCredentials is the entry point internal/trading uses: it
// builds a fresh Signer and header set from creds and places the order.
// Credentials never outlive this call.
func (c *Client) PlaceOrderWithCredentials(ctx context.Context, intent domain.TradeIntent, creds domain.Credentials) (domain.OrderResult, error) {
	s := signer.New(creds.APISecret)
	headers := NewSignedHeaders(creds.APIKey, creds.Passphrase, s)
	return c.PlaceOrder(ctx, intent, headers)
}

const (
	orderPath   = "/api/v1/trade/order"
	balancePath = "/api/v1/asset/balances"
)

// envelope is Blowfin's uniform REST response shape: code=="0" is success,
// anything else is an exchange-declared failure (not a transport error).
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Client is the Blowfin REST API client.
type Client struct {
	http *resty.Client
}

// NewClient returns a Client pointed at baseURL with the teacher's retry
// policy (up to 3 retries after the first attempt, 500ms-5s backoff, retry
// only on 5xx/transport error).
func NewClient(baseURL string) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{http: http}
}

// orderRequest is the wire payload for POST /api/v1/trade/order.
type orderRequest struct {
	Symbol string `json:"instId"`
	Side   string `json:"side"`
	Type   string `json:"orderType"`
	Price  string `json:"price,omitempty"`
	Size   string `json:"size"`
}

// orderData is the "data" payload of a successful order response.
type orderData struct {
	OrderID string `json:"orderId"`
	Price   string `json:"price"`
	Size    string `json:"size"`
}

// PlaceOrder submits intent with the given request signature headers and
// normalizes the exchange's response. A non-"0" code is a normal
// (non-error) declared failure — the engine inspects Success, it does not
// inspect an error return for that case.
func (c *Client) PlaceOrder(ctx context.Context, intent domain.TradeIntent, creds signedHeaders) (domain.OrderResult, error) {
	req := orderRequest{
		Symbol: intent.Symbol,
		Side:   string(intent.Side),
		Type:   string(intent.Type),
		Size:   intent.Size.String(),
	}
	if intent.Type == domain.OrderTypeLimit {
		req.Price = intent.Price.String()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("blowfin: marshaling order request: %w", err)
	}

	var env envelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(creds.headers(http.MethodPost, orderPath, string(body))).
		SetBody(json.RawMessage(body)).
		SetResult(&env).
		Post(orderPath)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("blowfin: placing order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return domain.OrderResult{}, fmt.Errorf("blowfin: placing order: http status %d: %s", resp.StatusCode(), resp.String())
	}

	return normalizeOrderResponse(intent, env)
}

func normalizeOrderResponse(intent domain.TradeIntent, env envelope) (domain.OrderResult, error) {
	result := domain.OrderResult{
		Success: env.Code == "0",
		Symbol:  intent.Symbol,
		Side:    intent.Side,
		Type:    intent.Type,
		Message: env.Msg,
		RawData: env.Data,
	}
	if !result.Success {
		return result, nil
	}

	var data orderData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return domain.OrderResult{}, fmt.Errorf("blowfin: parsing order response data: %w", err)
	}
	result.OrderID = data.OrderID

	if data.Price != "" {
		price, err := decimal.NewFromString(data.Price)
		if err != nil {
			return domain.OrderResult{}, fmt.Errorf("blowfin: parsing order price: %w", err)
		}
		result.Price = price
	} else {
		result.Price = intent.Price
	}

	size, err := decimal.NewFromString(data.Size)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("blowfin: parsing order size: %w", err)
	}
	result.Size = size

	return result, nil
}

// balanceEntry is one row of GET /api/v1/asset/balances?accountType=futures.
type balanceEntry struct {
	Currency  string `json:"currency"`
	Available string `json:"available"`
}

// GetFuturesBalances fetches the futures account balances.
func (c *Client) GetFuturesBalances(ctx context.Context, creds signedHeaders) (map[string]decimal.Decimal, error) {
	var env envelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(creds.headers(http.MethodGet, balancePath+"?accountType=futures", "")).
		SetQueryParam("accountType", "futures").
		SetResult(&env).
		Get(balancePath)
	if err != nil {
		return nil, fmt.Errorf("blowfin: fetching balances: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("blowfin: fetching balances: http status %d: %s", resp.StatusCode(), resp.String())
	}
	if env.Code != "0" {
		return nil, fmt.Errorf("blowfin: fetching balances: exchange declared failure: %s", env.Msg)
	}

	var entries []balanceEntry
	if err := json.Unmarshal(env.Data, &entries); err != nil {
		return nil, fmt.Errorf("blowfin: parsing balances response: %w", err)
	}

	balances := make(map[string]decimal.Decimal, len(entries))
	for _, e := range entries {
		amount, err := decimal.NewFromString(e.Available)
		if err != nil {
			return nil, fmt.Errorf("blowfin: parsing balance amount for %s: %w", e.Currency, err)
		}
		balances[e.Currency] = amount
	}
	return balances, nil
}

// signedHeaders builds the per-request auth headers using the exact
// prehash signer.Signer implements.
type signedHeaders struct {
	apiKey     string
	passphrase string
	signer     *signer.Signer
}

// NewSignedHeaders binds one call's credentials to s for header
// construction. Build a fresh value per call; do not retain it.
func NewSignedHeaders(apiKey, passphrase string, s *signer.Signer) signedHeaders {
	return signedHeaders{apiKey: apiKey, passphrase: passphrase, signer: s}
}

func (h signedHeaders) headers(method, path, body string) map[string]string {
	sig, ts, nonce := h.signer.SignRESTNow(method, path, body)
	return map[string]string{
		"ACCESS-KEY":        h.apiKey,
		"ACCESS-PASSPHRASE": h.passphrase,
		"ACCESS-TIMESTAMP":  ts,
		"ACCESS-NONCE":      nonce,
		"ACCESS-SIGN":       sig,
	}
}
