package usecase

import (
	"context"
	"strings"

	"github.com/vitos/crypto_signal_trader/internal/domain"
	"go.uber.org/zap"
)

// quoteCurrencies are the quote suffixes tried when deriving the
// unified "BASE/QUOTE:QUOTE" market spelling.
var quoteCurrencies = []string{"USDT", "USDC", "KRW"}

// StripTicker removes the perpetual-contract suffix TradingView appends
// ("GASUSDT.P" -> "GASUSDT") and upper-cases the rest. It is also the
// canonical key for per-symbol serialization, so every spelling of the
// same market locks on the same string.
func StripTicker(raw string) string {
	return strings.ToUpper(strings.ReplaceAll(raw, ".P", ""))
}

// NormalizeSymbol maps a free-form ticker to a venue market id.
// Lookup order: direct match in the venue's market table, then the
// unified form derived from a recognized quote suffix. When nothing
// matches, or the market table cannot be loaded at all, the stripped
// ticker is returned unchanged and the gateway gets to do best-effort
// resolution. This function never fails.
func NormalizeSymbol(ctx context.Context, gw domain.Exchange, raw string, logger *zap.Logger) string {
	symbol := StripTicker(raw)

	markets, err := gw.LoadMarkets(ctx)
	if err != nil {
		logger.Warn("symbol normalization: market table unavailable, using stripped ticker",
			zap.String("exchange", gw.Name()),
			zap.String("symbol", symbol),
			zap.Error(err))
		return symbol
	}

	if id, ok := markets[symbol]; ok {
		return id
	}

	for _, quote := range quoteCurrencies {
		if len(symbol) <= len(quote) || !strings.HasSuffix(symbol, quote) {
			continue
		}
		base := strings.TrimSuffix(symbol, quote)
		unified := base + "/" + quote + ":" + quote
		if id, ok := markets[unified]; ok {
			logger.Debug("symbol normalization: matched unified form",
				zap.String("raw", raw),
				zap.String("unified", unified),
				zap.String("market_id", id))
			return id
		}
		// Spot venues list markets without the settlement suffix.
		if id, ok := markets[base+"/"+quote]; ok {
			return id
		}
	}

	logger.Warn("symbol normalization: no market match, using stripped ticker",
		zap.String("exchange", gw.Name()),
		zap.String("raw", raw),
		zap.String("symbol", symbol))
	return symbol
}
