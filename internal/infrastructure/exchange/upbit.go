package exchange

import (
	"context"
	"crypto/sha512"
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

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/vitos/crypto_signal_trader/internal/domain"
	"go.uber.org/zap"
)

const UpbitBaseURL = "https://api.upbit.com"

// Upbit talks to the Upbit spot REST API. It is a spot venue: leverage
// is a no-op and there are no derivatives positions to report, so the
// dispatcher's position pre-checks always see a flat book here.
type Upbit struct {
	accessKey string
	secretKey string
	baseURL   string
	client    *http.Client
	logger    *zap.Logger

	marketsMu sync.Mutex
	markets   map[string]string
	marketsAt time.Time
}

func NewUpbit(accessKey, secretKey, baseURL string, logger *zap.Logger) *Upbit {
	return &Upbit{
		accessKey: accessKey,
		secretKey: secretKey,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logger,
	}
}

func (u *Upbit) Name() string       { return "upbit" }
func (u *Upbit) QuoteAsset() string { return "KRW" }

// authToken builds the JWT Upbit expects: HS256 over the access key, a
// uuid nonce, and a SHA512 hash of the query string when there is one.
func (u *Upbit) authToken(query string) (string, error) {
	claims := jwt.MapClaims{
		"access_key": u.accessKey,
		"nonce":      uuid.NewString(),
	}
	if query != "" {
		sum := sha512.Sum512([]byte(query))
		claims["query_hash"] = hex.EncodeToString(sum[:])
		claims["query_hash_alg"] = "SHA512"
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(u.secretKey))
}

func (u *Upbit) sendRequest(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	query := ""
	if params != nil {
		query = params.Encode()
	}

	var req *http.Request
	var err error
	if method == http.MethodGet {
		reqURL := u.baseURL + path
		if query != "" {
			reqURL += "?" + query
		}
		req, err = http.NewRequestWithContext(ctx, method, reqURL, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u.baseURL+path, strings.NewReader(query))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}

	if signed {
		token, err := u.authToken(query)
		if err != nil {
			return nil, fmt.Errorf("sign upbit request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return body, fmt.Errorf("upbit request failed: status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (u *Upbit) FetchBalance(ctx context.Context) (map[string]float64, error) {
	body, err := u.sendRequest(ctx, http.MethodGet, "/v1/accounts", nil, true)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Currency string `json:"currency"`
		Balance  string `json:"balance"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse accounts response: %w", err)
	}

	balances := make(map[string]float64, len(raw))
	for _, acc := range raw {
		free, err := strconv.ParseFloat(acc.Balance, 64)
		if err != nil {
			continue
		}
		balances[acc.Currency] = free
	}
	return balances, nil
}

func (u *Upbit) GetLastPrice(ctx context.Context, marketID string) (float64, error) {
	params := url.Values{}
	params.Set("markets", marketID)
	body, err := u.sendRequest(ctx, http.MethodGet, "/v1/ticker", params, false)
	if err != nil {
		return 0, err
	}

	var raw []struct {
		TradePrice float64 `json:"trade_price"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, fmt.Errorf("parse ticker response: %w", err)
	}
	if len(raw) == 0 {
		return 0, fmt.Errorf("no ticker for market %s", marketID)
	}
	return raw[0].TradePrice, nil
}

// GetPositions always reports a flat book: spot holdings are balances,
// not positions.
func (u *Upbit) GetPositions(ctx context.Context, marketID string) ([]domain.Position, error) {
	return nil, nil
}

// SetLeverage is a no-op on a spot venue.
func (u *Upbit) SetLeverage(ctx context.Context, marketID string, leverage int) error {
	return nil
}

// MarketBuy places a market bid. Upbit prices market bids in quote
// total rather than base volume, so the base quantity is converted at
// the current trade price.
func (u *Upbit) MarketBuy(ctx context.Context, marketID string, qty float64, opts domain.OrderOptions) (*domain.OrderReceipt, error) {
	price, err := u.GetLastPrice(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("price lookup for market bid: %w", err)
	}

	params := url.Values{}
	params.Set("market", marketID)
	params.Set("side", "bid")
	params.Set("ord_type", "price")
	params.Set("price", strconv.FormatFloat(qty*price, 'f', -1, 64))
	return u.placeOrder(ctx, params, qty)
}

// MarketSell places a market ask by base volume.
func (u *Upbit) MarketSell(ctx context.Context, marketID string, qty float64, opts domain.OrderOptions) (*domain.OrderReceipt, error) {
	params := url.Values{}
	params.Set("market", marketID)
	params.Set("side", "ask")
	params.Set("ord_type", "market")
	params.Set("volume", strconv.FormatFloat(qty, 'f', -1, 64))
	return u.placeOrder(ctx, params, qty)
}

func (u *Upbit) placeOrder(ctx context.Context, params url.Values, qty float64) (*domain.OrderReceipt, error) {
	body, err := u.sendRequest(ctx, http.MethodPost, "/v1/orders", params, true)
	if err != nil {
		u.logger.Error("upbit order rejected",
			zap.String("market", params.Get("market")),
			zap.String("side", params.Get("side")),
			zap.String("response", string(body)),
			zap.Error(err))
		return nil, err
	}

	var raw struct {
		UUID   string `json:"uuid"`
		Market string `json:"market"`
		Side   string `json:"side"`
		State  string `json:"state"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse order response: %w", err)
	}

	return &domain.OrderReceipt{
		OrderID:  raw.UUID,
		Symbol:   raw.Market,
		Side:     raw.Side,
		Quantity: qty,
		Status:   raw.State,
	}, nil
}

// LoadMarkets keys each market by its venue id ("KRW-BTC"), the raw
// concatenated spelling ("BTCKRW"), and the unified spot spelling
// ("BTC/KRW"), refreshed at most every marketsTTL.
func (u *Upbit) LoadMarkets(ctx context.Context) (map[string]string, error) {
	u.marketsMu.Lock()
	defer u.marketsMu.Unlock()

	if u.markets != nil && time.Since(u.marketsAt) < marketsTTL {
		return u.markets, nil
	}

	body, err := u.sendRequest(ctx, http.MethodGet, "/v1/market/all", nil, false)
	if err != nil {
		if u.markets != nil {
			u.logger.Warn("market list refresh failed, serving cached markets", zap.Error(err))
			return u.markets, nil
		}
		return nil, err
	}

	var raw []struct {
		Market string `json:"market"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse market list response: %w", err)
	}

	markets := make(map[string]string, 3*len(raw))
	for _, m := range raw {
		quote, base, ok := strings.Cut(m.Market, "-")
		if !ok {
			continue
		}
		markets[m.Market] = m.Market
		markets[base+quote] = m.Market
		markets[base+"/"+quote] = m.Market
	}
	u.markets = markets
	u.marketsAt = time.Now()
	return markets, nil
}
