package domain

import (
	"errors"
	"fmt"
)

// ErrTradingDisabled gates all dispatch when the kill switch is off.
var ErrTradingDisabled = errors.New("trading is disabled")

// ValidationError marks signals rejected before any gateway call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ExchangeUnavailableError means the named exchange has no configured
// account in the registry.
type ExchangeUnavailableError struct {
	Name string
}

func (e *ExchangeUnavailableError) Error() string {
	return fmt.Sprintf("exchange %q is not connected", e.Name)
}

// PositionConflictError rejects an entry while a same-direction
// position is already open.
type PositionConflictError struct {
	Symbol string
	Side   Side
}

func (e *PositionConflictError) Error() string {
	return fmt.Sprintf("a %s position is already open for %s, use an exit signal to reduce it", e.Side, e.Symbol)
}

// FlipFailedError means the opposite-direction position could not be
// closed before an entry; the entry was not attempted.
type FlipFailedError struct {
	Symbol  string
	Closing Side
	Reason  string
}

func (e *FlipFailedError) Error() string {
	return fmt.Sprintf("failed to close existing %s position on %s: %s", e.Closing, e.Symbol, e.Reason)
}

// OrderExecutionError wraps a gateway failure during order placement or
// one of its prerequisite calls.
type OrderExecutionError struct {
	Op  string
	Err error
}

func (e *OrderExecutionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OrderExecutionError) Unwrap() error { return e.Err }
