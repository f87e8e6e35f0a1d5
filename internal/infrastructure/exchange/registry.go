package exchange

import (
	"context"
	"sort"
	"sync"

	"github.com/vitos/crypto_signal_trader/internal/domain"
	"go.uber.org/zap"
)

// builders maps each supported venue to its adapter constructor.
var builders = map[string]func(creds domain.Credentials, logger *zap.Logger) domain.Exchange{
	"binance": func(creds domain.Credentials, logger *zap.Logger) domain.Exchange {
		return NewBinanceFutures(creds.APIKey, creds.SecretKey, BinanceFuturesBaseURL, BinanceFuturesWSURL, logger)
	},
	"upbit": func(creds domain.Credentials, logger *zap.Logger) domain.Exchange {
		return NewUpbit(creds.APIKey, creds.SecretKey, UpbitBaseURL, logger)
	},
}

// Registry owns the authenticated exchange accounts. It is rebuilt
// wholesale when credentials change: readers always observe a complete,
// consistent account set, and handles obtained before a rebuild stay
// valid for in-flight calls.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]domain.Exchange
	logger   *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		gateways: make(map[string]domain.Exchange),
		logger:   logger,
	}
}

// Get returns the configured account for a venue name.
func (r *Registry) Get(name string) (domain.Exchange, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gw, ok := r.gateways[name]
	return gw, ok
}

// Names lists the connected venues, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rebuild constructs a fresh account set from the credential store and
// swaps it in atomically. Venues without stored credentials are simply
// not connected; that is not an error.
func (r *Registry) Rebuild(ctx context.Context, store domain.CredentialStore) error {
	fresh := make(map[string]domain.Exchange, len(builders))
	for name, build := range builders {
		creds, err := store.Get(ctx, name)
		if err != nil {
			return err
		}
		if creds == nil {
			continue
		}
		fresh[name] = build(*creds, r.logger)
		r.logger.Info("exchange account configured", zap.String("exchange", name))
	}

	r.mu.Lock()
	r.gateways = fresh
	r.mu.Unlock()
	return nil
}
