package domain

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Opposite returns the other position side.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Position represents an open position as reported by the exchange.
// A Size of zero means no position. The engine treats the venue as the
// single source of truth and re-queries before every decision.
type Position struct {
	Exchange      string  `json:"exchange"`
	Symbol        string  `json:"symbol"`
	Side          Side    `json:"side"`
	Size          float64 `json:"size"`
	EntryPrice    float64 `json:"entry_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	Leverage      int     `json:"leverage"`
}

// OrderReceipt is the venue's acknowledgement of a placed order.
type OrderReceipt struct {
	OrderID  string  `json:"order_id"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	Status   string  `json:"status"`
}

// OrderOptions carries per-order flags understood by the gateways.
type OrderOptions struct {
	// ReduceOnly restricts the order to decreasing an existing position.
	ReduceOnly bool
}
