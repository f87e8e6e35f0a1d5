package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_signal_trader/internal/domain"
	"go.uber.org/zap"
)

func newTestBinance(t *testing.T, handler http.HandlerFunc) *BinanceFutures {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	// The ws URL is invalid on purpose; the stream is best-effort and
	// must not affect REST behavior.
	return NewBinanceFutures("test-key", "test-secret", srv.URL, "ws://invalid", zap.NewNop())
}

func TestBinanceFutures_FetchBalance(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v2/balance", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))
		assert.NotEmpty(t, r.URL.Query().Get("timestamp"))
		assert.NotEmpty(t, r.URL.Query().Get("signature"))
		w.Write([]byte(`[
			{"asset":"USDT","availableBalance":"1234.56"},
			{"asset":"BNB","availableBalance":"0.5"}
		]`))
	})

	balances, err := b.FetchBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1234.56, balances["USDT"])
	assert.Equal(t, 0.5, balances["BNB"])
}

func TestBinanceFutures_GetPositions(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v2/positionRisk", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`[
			{"symbol":"BTCUSDT","positionAmt":"0.400","positionSide":"LONG","entryPrice":"50000","unRealizedProfit":"12.5","leverage":"10"},
			{"symbol":"BTCUSDT","positionAmt":"-0.200","positionSide":"BOTH","entryPrice":"51000","unRealizedProfit":"-3.1","leverage":"5"},
			{"symbol":"BTCUSDT","positionAmt":"0.000","positionSide":"SHORT","entryPrice":"0","unRealizedProfit":"0","leverage":"10"}
		]`))
	})

	positions, err := b.GetPositions(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, positions, 2, "zero-size entries are dropped")

	assert.Equal(t, domain.SideLong, positions[0].Side)
	assert.Equal(t, 0.4, positions[0].Size)
	assert.Equal(t, 10, positions[0].Leverage)

	// One-way mode: side comes from the sign of positionAmt.
	assert.Equal(t, domain.SideShort, positions[1].Side)
	assert.Equal(t, 0.2, positions[1].Size)
}

func TestBinanceFutures_LoadMarketsCachesAndUnifies(t *testing.T) {
	var calls atomic.Int32
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"symbols":[
			{"symbol":"GASUSDT","status":"TRADING","contractType":"PERPETUAL","baseAsset":"GAS","quoteAsset":"USDT"},
			{"symbol":"OLDUSDT","status":"DELISTED","contractType":"PERPETUAL","baseAsset":"OLD","quoteAsset":"USDT"}
		]}`))
	})

	markets, err := b.LoadMarkets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "GASUSDT", markets["GASUSDT"])
	assert.Equal(t, "GASUSDT", markets["GAS/USDT:USDT"])
	assert.NotContains(t, markets, "OLDUSDT")

	_, err = b.LoadMarkets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "second call must be served from cache")
}

func TestBinanceFutures_MarketSellReduceOnly(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/fapi/v1/order", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "SELL", r.PostForm.Get("side"))
		assert.Equal(t, "MARKET", r.PostForm.Get("type"))
		assert.Equal(t, "0.5", r.PostForm.Get("quantity"))
		assert.Equal(t, "true", r.PostForm.Get("reduceOnly"))
		assert.NotEmpty(t, r.PostForm.Get("signature"))
		w.Write([]byte(`{"orderId":123456,"symbol":"BTCUSDT","side":"SELL","origQty":"0.5","status":"NEW"}`))
	})

	receipt, err := b.MarketSell(context.Background(), "BTCUSDT", 0.5, domain.OrderOptions{ReduceOnly: true})
	require.NoError(t, err)
	assert.Equal(t, "123456", receipt.OrderID)
	assert.Equal(t, 0.5, receipt.Quantity)
	assert.Equal(t, "NEW", receipt.Status)
}

func TestBinanceFutures_APIErrorSurfaces(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2019,"msg":"Margin is insufficient."}`))
	})

	_, err := b.MarketBuy(context.Background(), "BTCUSDT", 1, domain.OrderOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-2019")
	assert.Contains(t, err.Error(), "Margin is insufficient")
}

func TestBinanceFutures_GetLastPrice(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/ticker/price", r.URL.Path)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"symbol":"ETHUSDT","price":"3000.10"}`))
	})

	price, err := b.GetLastPrice(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 3000.10, price)
}
