package domain

import "context"

// Exchange is the capability set the engine needs from a trading venue.
// Implementations are safe for concurrent use; every call is one blocking
// network round trip bounded by the adapter's HTTP client timeout.
type Exchange interface {
	// Name returns the registry key of the venue ("binance", "upbit").
	Name() string
	// QuoteAsset returns the quote currency entries are sized in.
	QuoteAsset() string
	// FetchBalance returns free (available) balances keyed by asset.
	FetchBalance(ctx context.Context) (map[string]float64, error)
	// GetLastPrice returns the last traded price for a venue market id.
	GetLastPrice(ctx context.Context, marketID string) (float64, error)
	// GetPositions returns the open positions for a single market id.
	// Spot venues return an empty slice.
	GetPositions(ctx context.Context, marketID string) ([]Position, error)
	// SetLeverage is best-effort; callers log and continue on failure.
	SetLeverage(ctx context.Context, marketID string, leverage int) error
	MarketBuy(ctx context.Context, marketID string, qty float64, opts OrderOptions) (*OrderReceipt, error)
	MarketSell(ctx context.Context, marketID string, qty float64, opts OrderOptions) (*OrderReceipt, error)
	// LoadMarkets returns a lookup table from ticker spellings to venue
	// market ids. Multiple spellings may map to the same market.
	LoadMarkets(ctx context.Context) (map[string]string, error)
}

// GatewayResolver hands out the configured exchange account for a venue
// name. The snapshot a caller receives stays valid for in-flight calls
// even if the registry is rebuilt concurrently.
type GatewayResolver interface {
	Get(name string) (Exchange, bool)
}

// Credentials is one venue's API key pair.
type Credentials struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
}

// CredentialStore persists API credentials confidentially.
// Get returns (nil, nil) when no credentials exist for the exchange.
type CredentialStore interface {
	Save(ctx context.Context, exchange string, creds Credentials) error
	Get(ctx context.Context, exchange string) (*Credentials, error)
	Delete(ctx context.Context, exchange string) error
	List(ctx context.Context) ([]string, error)
}

// Settings is the read-only view of trading configuration the engine
// consults on every signal.
type Settings interface {
	TradingEnabled() bool
	DefaultExchange() string
	DefaultLeverage() int
	// FallbackNotional is the fixed quote amount used when compound
	// sizing cannot determine the free balance.
	FallbackNotional() float64
}
