package usecase

import (
	"context"
	"fmt"

	"github.com/vitos/crypto_signal_trader/internal/domain"
	"go.uber.org/zap"
)

const (
	// minEntryNotional is the quote amount below which venues start
	// rejecting market orders.
	minEntryNotional = 10
	// clampedEntryNotional is what a too-small compound entry is raised
	// to. It sits above the trigger threshold so a clamped order does
	// not land right back on the venue's minimum-order boundary.
	clampedEntryNotional = 11
)

// EntrySizing is the resolved quote amount for an entry order.
// UsedFallback is set when the free balance could not be determined and
// the configured fixed default was substituted for compound sizing.
type EntrySizing struct {
	Amount       float64
	Compound     bool
	UsedFallback bool
}

// ValidatePercent checks the (0,100] contract shared by compound
// entries and partial exits.
func ValidatePercent(p float64) error {
	if p <= 0 || p > 100 {
		return &domain.ValidationError{Reason: fmt.Sprintf("percent must be within (0,100], got %v", p)}
	}
	return nil
}

// Sizer derives order quantities from signals.
type Sizer struct {
	settings domain.Settings
	logger   *zap.Logger
}

func NewSizer(settings domain.Settings, logger *zap.Logger) *Sizer {
	return &Sizer{settings: settings, logger: logger}
}

// EntryAmount resolves the quote notional for an entry signal.
// A fixed amount wins; otherwise percent-of-free-balance (compound
// mode) applies, with the small-amount clamp and the fixed fallback
// when the balance lookup fails or the quote asset is missing.
// With neither amount nor percent the configured default is used.
func (s *Sizer) EntryAmount(ctx context.Context, gw domain.Exchange, sig domain.Signal) EntrySizing {
	if sig.Amount != nil {
		return EntrySizing{Amount: *sig.Amount}
	}
	if sig.Percent == nil {
		return EntrySizing{Amount: s.settings.FallbackNotional()}
	}

	quote := gw.QuoteAsset()
	balances, err := gw.FetchBalance(ctx)
	if err != nil {
		s.logger.Warn("compound sizing: balance fetch failed, using fallback amount",
			zap.String("exchange", gw.Name()),
			zap.Float64("fallback", s.settings.FallbackNotional()),
			zap.Error(err))
		return EntrySizing{Amount: s.settings.FallbackNotional(), Compound: true, UsedFallback: true}
	}
	free, ok := balances[quote]
	if !ok {
		s.logger.Warn("compound sizing: quote asset missing from balance, using fallback amount",
			zap.String("exchange", gw.Name()),
			zap.String("quote", quote))
		return EntrySizing{Amount: s.settings.FallbackNotional(), Compound: true, UsedFallback: true}
	}

	amount := free * (*sig.Percent / 100)
	if amount < minEntryNotional {
		s.logger.Warn("compound sizing: computed amount below venue minimum, clamping",
			zap.Float64("computed", amount),
			zap.Float64("clamped", clampedEntryNotional))
		amount = clampedEntryNotional
	}
	s.logger.Info("compound sizing",
		zap.String("exchange", gw.Name()),
		zap.Float64("free", free),
		zap.Float64("percent", *sig.Percent),
		zap.Float64("amount", amount))
	return EntrySizing{Amount: amount, Compound: true}
}

// EntryQuantity converts a quote notional into a base quantity at the
// given price and leverage.
func EntryQuantity(amount float64, leverage int, price float64) (float64, error) {
	if price <= 0 {
		return 0, &domain.ValidationError{Reason: fmt.Sprintf("invalid price %v", price)}
	}
	qty := amount * float64(leverage) / price
	if qty <= 0 {
		return 0, &domain.ValidationError{Reason: fmt.Sprintf("computed order quantity %v is not positive", qty)}
	}
	return qty, nil
}

// CloseQuantity computes the contracts to close for a partial exit,
// clamped so a close never exceeds the reported position size.
func CloseQuantity(positionSize, percent float64) (float64, error) {
	qty := positionSize * (percent / 100)
	if qty <= 0 {
		return 0, &domain.ValidationError{Reason: fmt.Sprintf("computed close quantity %v is not positive (position %v, percent %v%%)", qty, positionSize, percent)}
	}
	if qty > positionSize {
		qty = positionSize
	}
	return qty, nil
}
