package coinex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func testClient(url string) *Client {
	return &Client{
		client:   resty.New().SetBaseURL(url + "/"),
		accessID: "test-key",
		secret:   "test-secret",
		logger:   zap.NewNop(),
		limiter:  rate.NewLimiter(rate.Inf, 1),
	}
}

func TestMarketDeals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/spot/deals", r.URL.Path)
		assert.Equal(t, "ADAUSDT", r.URL.Query().Get("market"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		// Public endpoint, no auth headers.
		assert.Empty(t, r.Header.Get("X-COINEX-KEY"))

		_, _ = w.Write([]byte(`{"code":0,"data":[{"deal_id":1,"created_at":1717200000000,"price":"0.45","amount":"10"}],"message":"OK"}`))
	}))
	defer srv.Close()

	deals, err := testClient(srv.URL).MarketDeals(context.Background(), "ADAUSDT", 1)
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, "0.45", deals[0].Price)
}

func TestBalanceInfo_SignsRequest(t *testing.T) {
	signature := regexp.MustCompile(`^[0-9a-f]{64}$`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/assets/spot/balance", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-COINEX-KEY"))
		assert.Regexp(t, signature, r.Header.Get("X-COINEX-SIGN"))
		assert.NotEmpty(t, r.Header.Get("X-COINEX-TIMESTAMP"))

		_, _ = w.Write([]byte(`{"code":0,"data":[{"ccy":"ADA","available":"100","frozen":"5"},{"ccy":"USDT","available":"50","frozen":"0"}],"message":"OK"}`))
	}))
	defer srv.Close()

	balances, err := testClient(srv.URL).BalanceInfo(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "100", balances["ADA"].Available)
	assert.Equal(t, "5", balances["ADA"].Frozen)
}

func TestRequest_EnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":4001,"data":{},"message":"service unavailable"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).MarketDeals(context.Background(), "ADAUSDT", 1)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 4001, apiErr.Code)
	assert.Equal(t, "service unavailable", apiErr.Message)
}

func TestPutLimitOrder_InsufficientBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "limit", body["type"])
		assert.Equal(t, "SPOT", body["market_type"])

		_, _ = w.Write([]byte(`{"code":3109,"data":{},"message":"balance not enough"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).PutLimitOrder(context.Background(), "ADAUSDT", "buy", "400", "0.5")
	var balErr *InsufficientBalanceError
	require.ErrorAs(t, err, &balErr)
	assert.Equal(t, 3109, balErr.Code)
	assert.Contains(t, balErr.Error(), "balance not enough")
}

func TestDoRequest_RetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"data":[],"message":"OK"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).MarketDeals(context.Background(), "ADAUSDT", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoRequest_NoRetryOnClientError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).MarketDeals(context.Background(), "ADAUSDT", 1)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestUserDeals_FollowsPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1704067200000", r.URL.Query().Get("start_time"))
		switch r.URL.Query().Get("page") {
		case "1":
			_, _ = w.Write([]byte(`{"code":0,"data":[{"deal_id":1,"order_id":10,"side":"buy","price":"0.5","amount":"100","created_at":1704067200000}],"message":"OK","pagination":{"has_next":true}}`))
		default:
			_, _ = w.Write([]byte(`{"code":0,"data":[{"deal_id":2,"order_id":10,"side":"buy","price":"0.5","amount":"300","created_at":1704067260000}],"message":"OK","pagination":{"has_next":false}}`))
		}
	}))
	defer srv.Close()

	deals, err := testClient(srv.URL).UserDeals(context.Background(), "ADAUSDT", 1704067200000)
	require.NoError(t, err)
	require.Len(t, deals, 2)
	assert.Equal(t, "1", deals[0].DealID.String())
	assert.Equal(t, "2", deals[1].DealID.String())
}

func TestSortedQuery(t *testing.T) {
	assert.Equal(t, "", sortedQuery(nil))
	assert.Equal(t, "?a=1&b=2&c=3", sortedQuery(map[string]string{"c": "3", "a": "1", "b": "2"}))
}

func TestSign_Deterministic(t *testing.T) {
	c := testClient("http://unused")
	first := c.sign(http.MethodGet, "spot/deals", "?limit=1&market=ADAUSDT", "", 1704067200000)
	second := c.sign(http.MethodGet, "spot/deals", "?limit=1&market=ADAUSDT", "", 1704067200000)
	assert.Equal(t, first, second)
	assert.Regexp(t, `^[0-9a-f]{64}$`, first)

	// Any component change yields a different signature.
	assert.NotEqual(t, first, c.sign(http.MethodPost, "spot/deals", "?limit=1&market=ADAUSDT", "", 1704067200000))
	assert.NotEqual(t, first, c.sign(http.MethodGet, "spot/deals", "?limit=1&market=ADAUSDT", "", 1704067200001))
}
