package usecase

import (
	"context"

	"github.com/vitos/crypto_signal_trader/internal/domain"
	"go.uber.org/zap"
)

// FindPosition returns the venue's open position for the symbol and
// side, or nil when there is none. A fetch error is logged and reported
// as "no position": the dispatcher must never assume a position it
// cannot prove, and the entry pre-checks stay conservative.
func FindPosition(ctx context.Context, gw domain.Exchange, symbol string, side domain.Side, logger *zap.Logger) *domain.Position {
	marketID := NormalizeSymbol(ctx, gw, symbol, logger)

	positions, err := gw.GetPositions(ctx, marketID)
	if err != nil {
		logger.Error("position lookup failed, treating as no position",
			zap.String("exchange", gw.Name()),
			zap.String("market_id", marketID),
			zap.String("side", string(side)),
			zap.Error(err))
		return nil
	}

	for i := range positions {
		if positions[i].Side == side && positions[i].Size > 0 {
			return &positions[i]
		}
	}
	return nil
}
