package domain

// OrderDetails describes what was (or would have been) executed.
// Leverage is populated for entries, Percent and PositionSize for exits.
type OrderDetails struct {
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`
	Quantity     float64 `json:"quantity"`
	Price        float64 `json:"price,omitempty"`
	Leverage     int     `json:"leverage,omitempty"`
	Percent      float64 `json:"percent,omitempty"`
	PositionSize float64 `json:"position_size,omitempty"`
}

// OrderResult is the normalized outcome of one dispatched signal.
// It is produced exactly once per signal and never mutated after return;
// the transport layer serializes it verbatim.
type OrderResult struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Order   *OrderReceipt `json:"order,omitempty"`
	Details *OrderDetails `json:"details,omitempty"`
	Signal  Signal        `json:"signal"`
}

// Failure builds a failed result echoing the originating signal.
func Failure(sig Signal, message string) *OrderResult {
	return &OrderResult{Success: false, Message: message, Signal: sig}
}
