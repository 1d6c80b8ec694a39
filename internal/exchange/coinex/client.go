package coinex

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"coinex-trade-bot-go/internal/config"
)

const (
	baseURL = "https://api.coinex.com/v2/"

	spotMarketType = "SPOT"

	// Application-level error codes carried in the response envelope.
	codeInsufficientBalance = 3109
)

// APIError is an application-level error from the exchange: the envelope
// came back with a non-zero code.
type APIError struct {
	Code    int
	Message string
	Path    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coinex error(%d)=%s path=%s", e.Code, e.Message, e.Path)
}

// InsufficientBalanceError is the exchange rejecting an order for lack of
// funds (code 3109). A domain error, never retried.
type InsufficientBalanceError struct {
	APIError
}

// newAPIError dispatches an envelope code to its error class.
func newAPIError(code int, message, path string) error {
	apiErr := APIError{Code: code, Message: message, Path: path}
	switch code {
	case codeInsufficientBalance:
		return &InsufficientBalanceError{APIError: apiErr}
	default:
		return &apiErr
	}
}

// envelope is the wire frame every v2 response arrives in.
type envelope struct {
	Code       int             `json:"code"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Pagination pagination      `json:"pagination"`
}

type pagination struct {
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

// MarketDeal is one public trade on a market.
type MarketDeal struct {
	DealID    int64  `json:"deal_id"`
	CreatedAt int64  `json:"created_at"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
}

// BalanceData is one currency's balance as reported by the exchange.
type BalanceData struct {
	Ccy       string `json:"ccy"`
	Available string `json:"available"`
	Frozen    string `json:"frozen"`
}

// OrderData is an order as reported by the exchange.
type OrderData struct {
	OrderID   json.Number `json:"order_id"`
	Market    string      `json:"market"`
	Side      string      `json:"side"`
	Type      string      `json:"type"`
	Amount    string      `json:"amount"`
	Price     string      `json:"price"`
	CreatedAt int64       `json:"created_at"`
}

// DealData is one of the account's own fills.
type DealData struct {
	DealID    json.Number `json:"deal_id"`
	OrderID   json.Number `json:"order_id"`
	Side      string      `json:"side"`
	Price     string      `json:"price"`
	Amount    string      `json:"amount"`
	CreatedAt int64       `json:"created_at"`
}

// Client is a signed CoinEx v2 REST client.
type Client struct {
	client   *resty.Client
	accessID string
	secret   string
	logger   *zap.Logger
	limiter  *rate.Limiter
}

// NewClient creates a CoinEx v2 client with the given credentials and
// client-side rate limit.
func NewClient(creds config.ClientCredentials, rateLimit float64, burst int, logger *zap.Logger) *Client {
	return &Client{
		client:   resty.New().SetBaseURL(baseURL),
		accessID: creds.Key,
		secret:   creds.Secret,
		logger:   logger,
		limiter:  rate.NewLimiter(rate.Limit(rateLimit), burst),
	}
}

// sign computes the HMAC-SHA256 request signature over
// METHOD/v2/path?sorted-query{json-body}{timestamp}.
func (c *Client) sign(method, path, query, body string, timestamp int64) string {
	prepared := fmt.Sprintf("%s/v2/%s%s%s%d", method, path, query, body, timestamp)
	h := hmac.New(sha256.New, []byte(c.secret))
	h.Write([]byte(prepared))
	return strings.ToLower(hex.EncodeToString(h.Sum(nil)))
}

// sortedQuery renders params as "?k1=v1&k2=v2" with keys sorted, or ""
// when empty. Sorting keeps the signed string deterministic.
func sortedQuery(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params[k])
	}
	return "?" + strings.Join(parts, "&")
}

// request performs one signed API call, unwraps the envelope and decodes
// data into out.
func (c *Client) request(ctx context.Context, method, path string, params map[string]string, body any, auth bool, out any) (*envelope, error) {
	query := sortedQuery(params)

	req := c.client.R().SetContext(ctx).
		SetHeader("Accept", "application/json")

	var bodyJSON string
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body for %s: %w", path, err)
		}
		bodyJSON = string(raw)
		req.SetHeader("Content-Type", "application/json; charset=utf-8").
			SetBody(bodyJSON)
	}

	if auth {
		timestamp := time.Now().UnixMilli()
		req.SetHeaders(map[string]string{
			"X-COINEX-KEY":       c.accessID,
			"X-COINEX-SIGN":      c.sign(method, path, query, bodyJSON, timestamp),
			"X-COINEX-TIMESTAMP": strconv.FormatInt(timestamp, 10),
		})
	}

	resp, err := c.doRequest(ctx, method, path+query, req)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("malformed response for %s: %w", path, err)
	}
	if env.Code != 0 {
		return nil, newAPIError(env.Code, env.Message, path)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("malformed response data for %s: %w", path, err)
		}
	}
	return &env, nil
}

// doRequest executes the request with rate limiting and bounded retries.
// Network failures, 429s and server errors are retried with exponential
// backoff; exhausting the budget is fatal for the operation.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, aerr := strconv.Atoi(resp.Header().Get("Retry-After")); aerr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
		} else {
			// Network or other client-side error.
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		if retryAfter == 0 {
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}

// MarketDeals fetches the latest public trades for a market.
func (c *Client) MarketDeals(ctx context.Context, market string, limit int) ([]MarketDeal, error) {
	var deals []MarketDeal
	params := map[string]string{
		"market": market,
		"limit":  strconv.Itoa(limit),
	}
	if _, err := c.request(ctx, http.MethodGet, "spot/deals", params, nil, false, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}

// BalanceInfo fetches the account's spot balances, keyed by currency.
func (c *Client) BalanceInfo(ctx context.Context) (map[string]BalanceData, error) {
	var balances []BalanceData
	if _, err := c.request(ctx, http.MethodGet, "assets/spot/balance", nil, nil, true, &balances); err != nil {
		return nil, err
	}
	out := make(map[string]BalanceData, len(balances))
	for _, b := range balances {
		out[b.Ccy] = b
	}
	return out, nil
}

// OrderPending lists the account's open orders on a market.
func (c *Client) OrderPending(ctx context.Context, market string) ([]OrderData, error) {
	var orders []OrderData
	params := map[string]string{
		"market":      market,
		"market_type": spotMarketType,
		"page":        "1",
		"limit":       "100",
	}
	if _, err := c.request(ctx, http.MethodGet, "spot/pending-order", params, nil, true, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// PutLimitOrder places a limit order.
func (c *Client) PutLimitOrder(ctx context.Context, market, side, amount, price string) (*OrderData, error) {
	var order OrderData
	body := map[string]string{
		"market":      market,
		"market_type": spotMarketType,
		"side":        side,
		"type":        "limit",
		"amount":      amount,
		"price":       price,
	}
	if _, err := c.request(ctx, http.MethodPost, "spot/order", nil, body, true, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// PutMarketOrder places a market order.
func (c *Client) PutMarketOrder(ctx context.Context, market, side, amount string) (*OrderData, error) {
	var order OrderData
	body := map[string]string{
		"market":      market,
		"market_type": spotMarketType,
		"side":        side,
		"type":        "market",
		"amount":      amount,
	}
	if _, err := c.request(ctx, http.MethodPost, "spot/order", nil, body, true, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder cancels a pending order. A cancellation the exchange rejects
// comes back as an APIError.
func (c *Client) CancelOrder(ctx context.Context, market, orderID string) (*OrderData, error) {
	var order OrderData
	body := map[string]string{
		"market":      market,
		"market_type": spotMarketType,
		"order_id":    orderID,
	}
	if _, err := c.request(ctx, http.MethodPost, "spot/cancel-order", nil, body, true, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// UserDeals retrieves the account's fills on a market since startTime
// (milliseconds), following pagination until exhausted.
func (c *Client) UserDeals(ctx context.Context, market string, startTime int64) ([]DealData, error) {
	var all []DealData
	page := 1
	for {
		params := map[string]string{
			"market":      market,
			"market_type": spotMarketType,
			"start_time":  strconv.FormatInt(startTime, 10),
			"page":        strconv.Itoa(page),
			"limit":       "1000",
		}
		var deals []DealData
		env, err := c.request(ctx, http.MethodGet, "spot/user-deals", params, nil, true, &deals)
		if err != nil {
			return nil, err
		}
		all = append(all, deals...)
		if !env.Pagination.HasNext {
			return all, nil
		}
		page++
	}
}
