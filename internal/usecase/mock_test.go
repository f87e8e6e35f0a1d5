package usecase_test

import (
	"context"
	"sync"

	"github.com/vitos/crypto_signal_trader/internal/domain"
)

type orderCall struct {
	MarketID string
	Qty      float64
	Opts     domain.OrderOptions
}

// mockGateway is a scriptable in-memory venue. With ApplyOrders set,
// market orders mutate the position book the way a real venue would, so
// concurrency tests observe the same state the dispatcher re-queries.
type mockGateway struct {
	mu sync.Mutex

	GatewayName string
	Quote       string

	Balances   map[string]float64
	BalanceErr error

	Price    float64
	PriceErr error

	Markets    map[string]string
	MarketsErr error

	Positions    []domain.Position
	PositionsErr error

	LeverageErr error
	OrderErr    error

	ApplyOrders bool

	BuyCalls      []orderCall
	SellCalls     []orderCall
	LeverageCalls []int
	NetworkCalls  int
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		GatewayName: "binance",
		Quote:       "USDT",
		Balances:    map[string]float64{"USDT": 1000},
		Price:       100,
		Markets:     map[string]string{"BTCUSDT": "BTCUSDT"},
	}
}

func (m *mockGateway) Name() string       { return m.GatewayName }
func (m *mockGateway) QuoteAsset() string { return m.Quote }

func (m *mockGateway) FetchBalance(ctx context.Context) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NetworkCalls++
	if m.BalanceErr != nil {
		return nil, m.BalanceErr
	}
	return m.Balances, nil
}

func (m *mockGateway) GetLastPrice(ctx context.Context, marketID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NetworkCalls++
	if m.PriceErr != nil {
		return 0, m.PriceErr
	}
	return m.Price, nil
}

func (m *mockGateway) GetPositions(ctx context.Context, marketID string) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NetworkCalls++
	if m.PositionsErr != nil {
		return nil, m.PositionsErr
	}
	out := make([]domain.Position, len(m.Positions))
	copy(out, m.Positions)
	return out, nil
}

func (m *mockGateway) SetLeverage(ctx context.Context, marketID string, leverage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NetworkCalls++
	m.LeverageCalls = append(m.LeverageCalls, leverage)
	return m.LeverageErr
}

func (m *mockGateway) MarketBuy(ctx context.Context, marketID string, qty float64, opts domain.OrderOptions) (*domain.OrderReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NetworkCalls++
	m.BuyCalls = append(m.BuyCalls, orderCall{MarketID: marketID, Qty: qty, Opts: opts})
	if m.OrderErr != nil {
		return nil, m.OrderErr
	}
	if m.ApplyOrders {
		m.apply(domain.SideLong, marketID, qty, opts.ReduceOnly)
	}
	return &domain.OrderReceipt{OrderID: "1", Symbol: marketID, Side: "BUY", Quantity: qty, Status: "FILLED"}, nil
}

func (m *mockGateway) MarketSell(ctx context.Context, marketID string, qty float64, opts domain.OrderOptions) (*domain.OrderReceipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NetworkCalls++
	m.SellCalls = append(m.SellCalls, orderCall{MarketID: marketID, Qty: qty, Opts: opts})
	if m.OrderErr != nil {
		return nil, m.OrderErr
	}
	if m.ApplyOrders {
		m.apply(domain.SideShort, marketID, qty, opts.ReduceOnly)
	}
	return &domain.OrderReceipt{OrderID: "1", Symbol: marketID, Side: "SELL", Quantity: qty, Status: "FILLED"}, nil
}

// apply mutates the book under m.mu: a plain order opens orderSide, a
// reduce-only order shrinks the opposite side.
func (m *mockGateway) apply(orderSide domain.Side, marketID string, qty float64, reduceOnly bool) {
	if !reduceOnly {
		m.Positions = append(m.Positions, domain.Position{
			Exchange: m.GatewayName, Symbol: marketID, Side: orderSide, Size: qty,
		})
		return
	}
	closing := orderSide.Opposite()
	kept := m.Positions[:0]
	for _, p := range m.Positions {
		if p.Side == closing && p.Symbol == marketID {
			p.Size -= qty
			if p.Size <= 0 {
				continue
			}
		}
		kept = append(kept, p)
	}
	m.Positions = kept
}

func (m *mockGateway) LoadMarkets(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarketsErr != nil {
		return nil, m.MarketsErr
	}
	return m.Markets, nil
}

func (m *mockGateway) networkCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.NetworkCalls
}

// mockResolver is a fixed gateway registry.
type mockResolver map[string]domain.Exchange

func (r mockResolver) Get(name string) (domain.Exchange, bool) {
	gw, ok := r[name]
	return gw, ok
}

// mockSettings is a fixed settings view.
type mockSettings struct {
	Enabled  bool
	Exchange string
	Leverage int
	Fallback float64
}

func defaultSettings() *mockSettings {
	return &mockSettings{Enabled: true, Exchange: "binance", Leverage: 10, Fallback: 100}
}

func (s *mockSettings) TradingEnabled() bool      { return s.Enabled }
func (s *mockSettings) DefaultExchange() string   { return s.Exchange }
func (s *mockSettings) DefaultLeverage() int      { return s.Leverage }
func (s *mockSettings) FallbackNotional() float64 { return s.Fallback }
