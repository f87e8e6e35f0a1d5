package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/vitos/crypto_signal_trader/internal/domain"
	"go.uber.org/zap"
)

// Dispatcher routes validated signals to entry/exit handlers,
// orchestrates position flips, and assembles the OrderResult. Position
// state is inferred from the venue on every signal, never cached: a
// local cache would need invalidation the venue cannot provide.
//
// Every error raised below this boundary is converted into a failed
// OrderResult; Execute never returns an error to the transport.
type Dispatcher struct {
	gateways domain.GatewayResolver
	settings domain.Settings
	sizer    *Sizer
	locks    *keyedLocker
	logger   *zap.Logger
}

func NewDispatcher(gateways domain.GatewayResolver, settings domain.Settings, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		gateways: gateways,
		settings: settings,
		sizer:    NewSizer(settings, logger),
		locks:    newKeyedLocker(),
		logger:   logger,
	}
}

// Execute processes one signal to completion. Signals for the same
// (exchange, symbol) are serialized for the whole position-check ->
// flip -> order sequence; other markets run concurrently.
func (d *Dispatcher) Execute(ctx context.Context, sig domain.Signal) *domain.OrderResult {
	gw, result := d.admit(sig)
	if result != nil {
		return result
	}

	unlock := d.locks.Lock(gw.Name() + "/" + StripTicker(sig.Symbol))
	defer unlock()

	switch sig.Action {
	case domain.ActionLongEntry, domain.ActionShortEntry:
		return d.executeEntry(ctx, gw, sig, sig.Action.Direction())
	default:
		return d.executeExit(ctx, gw, sig, sig.Action.Direction())
	}
}

// Check runs the gate and validation steps of Execute without touching
// a gateway, for the dry-run endpoint.
func (d *Dispatcher) Check(ctx context.Context, sig domain.Signal) *domain.OrderResult {
	if _, result := d.admit(sig); result != nil {
		return result
	}
	return &domain.OrderResult{
		Success: true,
		Message: "signal is valid (no order placed)",
		Signal:  sig,
	}
}

// admit applies the gates every signal passes before any network call:
// known action, trading enabled, configured exchange, percent range.
// It returns a non-nil result when the signal is rejected.
func (d *Dispatcher) admit(sig domain.Signal) (domain.Exchange, *domain.OrderResult) {
	if !sig.Action.Known() {
		return nil, domain.Failure(sig, (&domain.ValidationError{Reason: fmt.Sprintf("unknown action %q", sig.Action)}).Error())
	}
	if sig.Symbol == "" {
		return nil, domain.Failure(sig, (&domain.ValidationError{Reason: "symbol is required"}).Error())
	}
	if !d.settings.TradingEnabled() {
		return nil, domain.Failure(sig, domain.ErrTradingDisabled.Error())
	}
	if sig.Percent != nil {
		if err := ValidatePercent(*sig.Percent); err != nil {
			return nil, domain.Failure(sig, err.Error())
		}
	}

	name := strings.ToLower(sig.Exchange)
	if name == "" {
		name = d.settings.DefaultExchange()
	}
	gw, ok := d.gateways.Get(name)
	if !ok {
		return nil, domain.Failure(sig, (&domain.ExchangeUnavailableError{Name: name}).Error())
	}
	return gw, nil
}

func (d *Dispatcher) executeEntry(ctx context.Context, gw domain.Exchange, sig domain.Signal, side domain.Side) *domain.OrderResult {
	log := d.logger.With(
		zap.String("exchange", gw.Name()),
		zap.String("symbol", sig.Symbol),
		zap.String("action", string(sig.Action)))

	// Duplicate-direction guard: entries may not stack onto an open
	// position, partial adds go through exit signals on the other side.
	if existing := FindPosition(ctx, gw, sig.Symbol, side, d.logger); existing != nil {
		log.Warn("entry rejected, same-direction position already open",
			zap.Float64("size", existing.Size))
		return domain.Failure(sig, (&domain.PositionConflictError{Symbol: sig.Symbol, Side: side}).Error())
	}

	// Flip: an opposite position is fully closed first. If that close
	// fails the entry is abandoned, never stacked on a half-closed book.
	if opposite := FindPosition(ctx, gw, sig.Symbol, side.Opposite(), d.logger); opposite != nil {
		log.Info("opposite position open, closing before entry",
			zap.String("closing_side", string(side.Opposite())),
			zap.Float64("size", opposite.Size))
		full := 100.0
		flipSig := domain.Signal{
			Action:   exitAction(side.Opposite()),
			Symbol:   sig.Symbol,
			Exchange: sig.Exchange,
			Percent:  &full,
		}
		if closeResult := d.executeExit(ctx, gw, flipSig, side.Opposite()); !closeResult.Success {
			log.Error("flip close failed, aborting entry", zap.String("reason", closeResult.Message))
			return domain.Failure(sig, (&domain.FlipFailedError{
				Symbol:  sig.Symbol,
				Closing: side.Opposite(),
				Reason:  closeResult.Message,
			}).Error())
		}
		log.Info("opposite position closed, proceeding with entry")
	}

	leverage := sig.Leverage
	if leverage <= 0 {
		leverage = d.settings.DefaultLeverage()
	}

	sizing := d.sizer.EntryAmount(ctx, gw, sig)
	marketID := NormalizeSymbol(ctx, gw, sig.Symbol, d.logger)

	// Best-effort: leverage is account metadata, not a prerequisite for
	// the order itself.
	if err := gw.SetLeverage(ctx, marketID, leverage); err != nil {
		log.Warn("failed to set leverage, continuing",
			zap.Int("leverage", leverage), zap.Error(err))
	}

	price, err := gw.GetLastPrice(ctx, marketID)
	if err != nil {
		return domain.Failure(sig, (&domain.OrderExecutionError{Op: "fetch price for " + marketID, Err: err}).Error())
	}

	qty, err := EntryQuantity(sizing.Amount, leverage, price)
	if err != nil {
		return domain.Failure(sig, err.Error())
	}

	place := gw.MarketBuy
	orderSide := "buy"
	if side == domain.SideShort {
		place = gw.MarketSell
		orderSide = "sell"
	}
	receipt, err := place(ctx, marketID, qty, domain.OrderOptions{})
	if err != nil {
		log.Error("entry order rejected", zap.Float64("quantity", qty), zap.Error(err))
		return domain.Failure(sig, (&domain.OrderExecutionError{Op: "place market " + orderSide + " order", Err: err}).Error())
	}

	log.Info("entry executed",
		zap.String("market_id", marketID),
		zap.Float64("quantity", qty),
		zap.Float64("price", price),
		zap.Int("leverage", leverage),
		zap.Bool("compound", sizing.Compound),
		zap.Bool("used_fallback", sizing.UsedFallback))

	return &domain.OrderResult{
		Success: true,
		Message: fmt.Sprintf("%s entry executed", strings.ToLower(string(side))),
		Order:   receipt,
		Signal:  sig,
		Details: &domain.OrderDetails{
			Symbol:   sig.Symbol,
			Side:     orderSide,
			Quantity: qty,
			Price:    price,
			Leverage: leverage,
		},
	}
}

func (d *Dispatcher) executeExit(ctx context.Context, gw domain.Exchange, sig domain.Signal, side domain.Side) *domain.OrderResult {
	log := d.logger.With(
		zap.String("exchange", gw.Name()),
		zap.String("symbol", sig.Symbol),
		zap.String("action", string(sig.Action)))

	percent := 100.0
	if sig.Percent != nil {
		percent = *sig.Percent
	}
	if err := ValidatePercent(percent); err != nil {
		return domain.Failure(sig, err.Error())
	}

	position := FindPosition(ctx, gw, sig.Symbol, side, d.logger)
	if position == nil {
		// Signals may be delivered twice or arrive after a manual
		// close; an exit with nothing to close is a no-op, not a fault.
		log.Warn("no open position to close, treating as already done")
		return &domain.OrderResult{
			Success: true,
			Message: fmt.Sprintf("no open %s position for %s (already closed)", strings.ToLower(string(side)), sig.Symbol),
			Signal:  sig,
		}
	}

	qty, err := CloseQuantity(position.Size, percent)
	if err != nil {
		return domain.Failure(sig, err.Error())
	}

	marketID := NormalizeSymbol(ctx, gw, sig.Symbol, d.logger)

	// Closing is the opposite side of the position, reduce-only so a
	// drifted size can never open the reverse position.
	place := gw.MarketSell
	orderSide := "sell"
	if side == domain.SideShort {
		place = gw.MarketBuy
		orderSide = "buy"
	}
	receipt, err := place(ctx, marketID, qty, domain.OrderOptions{ReduceOnly: true})
	if err != nil {
		log.Error("exit order rejected", zap.Float64("quantity", qty), zap.Error(err))
		return domain.Failure(sig, (&domain.OrderExecutionError{Op: "place reduce-only " + orderSide + " order", Err: err}).Error())
	}

	log.Info("exit executed",
		zap.String("market_id", marketID),
		zap.Float64("quantity", qty),
		zap.Float64("position_size", position.Size),
		zap.Float64("percent", percent))

	return &domain.OrderResult{
		Success: true,
		Message: fmt.Sprintf("%s exit executed (%.0f%%)", strings.ToLower(string(side)), percent),
		Order:   receipt,
		Signal:  sig,
		Details: &domain.OrderDetails{
			Symbol:       sig.Symbol,
			Side:         orderSide,
			Quantity:     qty,
			Percent:      percent,
			PositionSize: position.Size,
		},
	}
}

func exitAction(side domain.Side) domain.Action {
	if side == domain.SideLong {
		return domain.ActionLongExit
	}
	return domain.ActionShortExit
}
