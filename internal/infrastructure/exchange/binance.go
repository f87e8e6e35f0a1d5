package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_signal_trader/internal/domain"
	"go.uber.org/zap"
)

const (
	BinanceFuturesBaseURL = "https://fapi.binance.com"
	BinanceFuturesWSURL   = "wss://fstream.binance.com/ws"

	// marketsTTL bounds how long the exchangeInfo table is served from
	// cache before a refetch.
	marketsTTL = 10 * time.Minute
	// priceTickTTL is how long a websocket tick is considered fresh
	// enough to answer GetLastPrice without a REST round trip.
	priceTickTTL = 5 * time.Second
)

type priceTick struct {
	price float64
	at    time.Time
}

// BinanceFutures talks to the Binance USDT-M futures REST API and keeps
// a best-effort bookTicker websocket cache of last prices for markets
// it has been asked about.
type BinanceFutures struct {
	apiKey    string
	apiSecret string
	baseURL   string
	wsURL     string
	client    *http.Client
	logger    *zap.Logger

	marketsMu sync.Mutex
	markets   map[string]string
	marketsAt time.Time

	wsMu       sync.Mutex
	wsConn     *websocket.Conn
	wsSubs     map[string]bool
	wsReqID    int
	pricesMu   sync.RWMutex
	prices     map[string]priceTick
}

func NewBinanceFutures(apiKey, apiSecret, baseURL, wsURL string, logger *zap.Logger) *BinanceFutures {
	return &BinanceFutures{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		wsURL:     wsURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
		wsSubs:    make(map[string]bool),
		prices:    make(map[string]priceTick),
	}
}

func (b *BinanceFutures) Name() string       { return "binance" }
func (b *BinanceFutures) QuoteAsset() string { return "USDT" }

// --- REST ---

func (b *BinanceFutures) sign(payload string) string {
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

type binanceError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *binanceError) Error() string {
	return fmt.Sprintf("binance error %d: %s", e.Code, e.Msg)
}

func (b *BinanceFutures) sendRequest(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}

	var encoded string
	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("recvWindow", "5000")
		payload := params.Encode()
		encoded = payload + "&signature=" + b.sign(payload)
	} else {
		encoded = params.Encode()
	}

	var req *http.Request
	var err error
	if method == http.MethodGet {
		reqURL := b.baseURL + path
		if encoded != "" {
			reqURL += "?" + encoded
		}
		req, err = http.NewRequestWithContext(ctx, method, reqURL, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, b.baseURL+path, strings.NewReader(encoded))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", b.apiKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// Binance reports failures as {"code":-xxxx,"msg":...} with or
	// without a 4xx status.
	var apiErr binanceError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != 0 {
		return body, &apiErr
	}
	if resp.StatusCode != http.StatusOK {
		return body, fmt.Errorf("binance request failed: status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (b *BinanceFutures) FetchBalance(ctx context.Context) (map[string]float64, error) {
	body, err := b.sendRequest(ctx, http.MethodGet, "/fapi/v2/balance", nil, true)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Asset            string `json:"asset"`
		AvailableBalance string `json:"availableBalance"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse balance response: %w", err)
	}

	balances := make(map[string]float64, len(raw))
	for _, entry := range raw {
		free, err := strconv.ParseFloat(entry.AvailableBalance, 64)
		if err != nil {
			continue
		}
		balances[entry.Asset] = free
	}
	return balances, nil
}

func (b *BinanceFutures) GetLastPrice(ctx context.Context, marketID string) (float64, error) {
	if price, ok := b.cachedPrice(marketID); ok {
		return price, nil
	}

	params := url.Values{}
	params.Set("symbol", marketID)
	body, err := b.sendRequest(ctx, http.MethodGet, "/fapi/v1/ticker/price", params, false)
	if err != nil {
		return 0, err
	}

	var ticker struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return 0, fmt.Errorf("parse ticker response: %w", err)
	}
	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ticker price %q: %w", ticker.Price, err)
	}

	// Subscribe so the next lookup for this market can be answered from
	// the stream.
	b.ensureStream(marketID)
	return price, nil
}

// GetPositions reports the open positions for one market, or for the
// whole account when marketID is empty.
func (b *BinanceFutures) GetPositions(ctx context.Context, marketID string) ([]domain.Position, error) {
	params := url.Values{}
	if marketID != "" {
		params.Set("symbol", marketID)
	}
	body, err := b.sendRequest(ctx, http.MethodGet, "/fapi/v2/positionRisk", params, true)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		PositionSide     string `json:"positionSide"`
		EntryPrice       string `json:"entryPrice"`
		UnRealizedProfit string `json:"unRealizedProfit"`
		Leverage         string `json:"leverage"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse positionRisk response: %w", err)
	}

	var positions []domain.Position
	for _, p := range raw {
		amt, _ := strconv.ParseFloat(p.PositionAmt, 64)
		if amt == 0 {
			continue
		}

		// Hedge mode reports LONG/SHORT explicitly; one-way mode
		// reports BOTH and the sign of positionAmt carries the side.
		side := domain.SideLong
		switch p.PositionSide {
		case "LONG":
			side = domain.SideLong
		case "SHORT":
			side = domain.SideShort
		default:
			if amt < 0 {
				side = domain.SideShort
			}
		}

		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		pnl, _ := strconv.ParseFloat(p.UnRealizedProfit, 64)
		lev, _ := strconv.Atoi(p.Leverage)
		size := amt
		if size < 0 {
			size = -size
		}

		positions = append(positions, domain.Position{
			Exchange:      "binance",
			Symbol:        p.Symbol,
			Side:          side,
			Size:          size,
			EntryPrice:    entry,
			UnrealizedPnL: pnl,
			Leverage:      lev,
		})
	}
	return positions, nil
}

func (b *BinanceFutures) SetLeverage(ctx context.Context, marketID string, leverage int) error {
	params := url.Values{}
	params.Set("symbol", marketID)
	params.Set("leverage", strconv.Itoa(leverage))
	_, err := b.sendRequest(ctx, http.MethodPost, "/fapi/v1/leverage", params, true)
	return err
}

func (b *BinanceFutures) MarketBuy(ctx context.Context, marketID string, qty float64, opts domain.OrderOptions) (*domain.OrderReceipt, error) {
	return b.placeMarketOrder(ctx, marketID, "BUY", qty, opts)
}

func (b *BinanceFutures) MarketSell(ctx context.Context, marketID string, qty float64, opts domain.OrderOptions) (*domain.OrderReceipt, error) {
	return b.placeMarketOrder(ctx, marketID, "SELL", qty, opts)
}

func (b *BinanceFutures) placeMarketOrder(ctx context.Context, marketID, side string, qty float64, opts domain.OrderOptions) (*domain.OrderReceipt, error) {
	params := url.Values{}
	params.Set("symbol", marketID)
	params.Set("side", side)
	params.Set("type", "MARKET")
	params.Set("quantity", formatQty(qty))
	if opts.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	body, err := b.sendRequest(ctx, http.MethodPost, "/fapi/v1/order", params, true)
	if err != nil {
		b.logger.Error("binance order rejected",
			zap.String("symbol", marketID),
			zap.String("side", side),
			zap.String("response", string(body)),
			zap.Error(err))
		return nil, err
	}

	var raw struct {
		OrderID int64  `json:"orderId"`
		Symbol  string `json:"symbol"`
		Side    string `json:"side"`
		OrigQty string `json:"origQty"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse order response: %w", err)
	}
	filled, _ := strconv.ParseFloat(raw.OrigQty, 64)

	return &domain.OrderReceipt{
		OrderID:  strconv.FormatInt(raw.OrderID, 10),
		Symbol:   raw.Symbol,
		Side:     raw.Side,
		Quantity: filled,
		Status:   raw.Status,
	}, nil
}

// LoadMarkets returns the tradable perpetual markets keyed by both the
// raw symbol ("GASUSDT") and the unified spelling ("GAS/USDT:USDT"),
// refreshed at most every marketsTTL.
func (b *BinanceFutures) LoadMarkets(ctx context.Context) (map[string]string, error) {
	b.marketsMu.Lock()
	defer b.marketsMu.Unlock()

	if b.markets != nil && time.Since(b.marketsAt) < marketsTTL {
		return b.markets, nil
	}

	body, err := b.sendRequest(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", nil, false)
	if err != nil {
		if b.markets != nil {
			// Serve the stale table rather than blocking trading.
			b.logger.Warn("exchangeInfo refresh failed, serving cached markets", zap.Error(err))
			return b.markets, nil
		}
		return nil, err
	}

	var info struct {
		Symbols []struct {
			Symbol       string `json:"symbol"`
			Status       string `json:"status"`
			ContractType string `json:"contractType"`
			BaseAsset    string `json:"baseAsset"`
			QuoteAsset   string `json:"quoteAsset"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("parse exchangeInfo response: %w", err)
	}

	markets := make(map[string]string, 2*len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		markets[s.Symbol] = s.Symbol
		if s.ContractType == "PERPETUAL" {
			unified := s.BaseAsset + "/" + s.QuoteAsset + ":" + s.QuoteAsset
			markets[unified] = s.Symbol
		}
	}
	b.markets = markets
	b.marketsAt = time.Now()
	return markets, nil
}

// formatQty prints a quantity without scientific notation and without
// trailing zeros, which the order endpoint rejects less often than the
// default %f rendering.
func formatQty(qty float64) string {
	return strconv.FormatFloat(qty, 'f', -1, 64)
}

// --- websocket price stream ---

func (b *BinanceFutures) cachedPrice(marketID string) (float64, bool) {
	b.pricesMu.RLock()
	tick, ok := b.prices[marketID]
	b.pricesMu.RUnlock()
	if !ok || time.Since(tick.at) > priceTickTTL {
		return 0, false
	}
	return tick.price, true
}

// ensureStream subscribes the market's bookTicker stream, dialing the
// websocket on first use. Failures are logged and dropped: the stream
// is an optimization, REST remains the source of truth.
func (b *BinanceFutures) ensureStream(marketID string) {
	b.wsMu.Lock()
	defer b.wsMu.Unlock()

	if b.wsSubs[marketID] {
		return
	}

	if b.wsConn == nil {
		conn, _, err := websocket.DefaultDialer.Dial(b.wsURL, nil)
		if err != nil {
			b.logger.Warn("price stream dial failed", zap.Error(err))
			return
		}
		b.wsConn = conn
		go b.readLoop(conn)
	}

	b.wsReqID++
	sub := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": []string{strings.ToLower(marketID) + "@bookTicker"},
		"id":     b.wsReqID,
	}
	if err := b.wsConn.WriteJSON(sub); err != nil {
		b.logger.Warn("price stream subscribe failed", zap.String("symbol", marketID), zap.Error(err))
		return
	}
	b.wsSubs[marketID] = true
}

func (b *BinanceFutures) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		b.wsMu.Lock()
		if b.wsConn == conn {
			b.wsConn = nil
			b.wsSubs = make(map[string]bool)
		}
		b.wsMu.Unlock()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			b.logger.Warn("price stream closed", zap.Error(err))
			return
		}

		var event struct {
			Symbol string `json:"s"`
			Bid    string `json:"b"`
			Ask    string `json:"a"`
		}
		if err := json.Unmarshal(message, &event); err != nil || event.Symbol == "" {
			continue
		}

		bid, err1 := strconv.ParseFloat(event.Bid, 64)
		ask, err2 := strconv.ParseFloat(event.Ask, 64)
		if err1 != nil || err2 != nil || bid <= 0 || ask <= 0 {
			continue
		}

		b.pricesMu.Lock()
		b.prices[event.Symbol] = priceTick{price: (bid + ask) / 2, at: time.Now()}
		b.pricesMu.Unlock()
	}
}
