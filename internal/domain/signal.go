package domain

// Action is the instruction carried by an inbound webhook signal.
type Action string

const (
	ActionLongEntry  Action = "long_entry"
	ActionShortEntry Action = "short_entry"
	ActionLongExit   Action = "long_exit"
	ActionShortExit  Action = "short_exit"
)

// Known reports whether the action is one the dispatcher can route.
func (a Action) Known() bool {
	switch a {
	case ActionLongEntry, ActionShortEntry, ActionLongExit, ActionShortExit:
		return true
	}
	return false
}

// IsEntry reports whether the action opens a position.
func (a Action) IsEntry() bool {
	return a == ActionLongEntry || a == ActionShortEntry
}

// Direction returns the position side the action refers to
// (the side being opened for entries, the side being closed for exits).
func (a Action) Direction() Side {
	if a == ActionLongEntry || a == ActionLongExit {
		return SideLong
	}
	return SideShort
}

// Signal is a single trading instruction, typically delivered by a
// TradingView webhook. Amount and Percent are pointers because their
// absence is meaningful: an entry with Percent and no Amount is sized
// from the free balance (compound mode), an exit with no Percent closes
// the full position. A Signal is treated as immutable once dispatched.
type Signal struct {
	Action   Action   `json:"action"`
	Symbol   string   `json:"symbol"`
	Exchange string   `json:"exchange,omitempty"`
	Leverage int      `json:"leverage,omitempty"`
	Amount   *float64 `json:"amount,omitempty"`
	Percent  *float64 `json:"percent,omitempty"`
}
