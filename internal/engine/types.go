package engine

import "time"

// Action is the upstream decision attached to a signal event.
type Action string

const (
	ActionHold      Action = "hold"
	ActionOpenLong  Action = "open_long"
	ActionOpenShort Action = "open_short"
)

// IsOpen reports whether the action requests a new position.
func (a Action) IsOpen() bool {
	return a == ActionOpenLong || a == ActionOpenShort
}

// Confidence is the upstream signal confidence level.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Side is the direction of a position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ExitReason describes what closed a position.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "tp"
	ExitStopLoss   ExitReason = "sl"
	ExitSignal     ExitReason = "signal"
)

// SignalEvent is one point-in-time trading signal with its realized price.
// Events are produced upstream (already parsed and validated) and consumed
// read-only here.
type SignalEvent struct {
	Time         time.Time  `json:"time"`
	Price        float64    `json:"price"`
	Action       Action     `json:"action"`
	ProposedSize float64    `json:"proposed_size"`
	TakeProfit   *float64   `json:"take_profit,omitempty"`
	StopLoss     *float64   `json:"stop_loss,omitempty"`
	Confidence   Confidence `json:"confidence"`
}

// Valid reports whether the event carries a usable price. Invalid rows are
// skipped for lifecycle purposes, they never fail a run.
func (e SignalEvent) Valid() bool {
	return e.Price > 0
}

// Position is the single live exposure. At most one position is open at any
// time.
type Position struct {
	Side       Side     `json:"side"`
	EntryPrice float64  `json:"entry_price"`
	Size       float64  `json:"size"`
	EnterTime  time.Time `json:"enter_time"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
}

// Trade is a closed-position record, append-only once written.
type Trade struct {
	EnterTime  time.Time  `json:"enter_time"`
	ExitTime   time.Time  `json:"exit_time"`
	Side       Side       `json:"side"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	Size       float64    `json:"size"`
	PnL        float64    `json:"pnl_usdt"`
	ReturnPct  float64    `json:"return_pct"`
	ExitReason ExitReason `json:"exit_reason"`
}

// EquityCurvePoint marks the running equity at run start, every open and
// every close. Time is a formatted timestamp, or the StartSentinel /
// EndSentinel labels when the stream carries no usable timestamps.
type EquityCurvePoint struct {
	Time   string  `json:"time"`
	Equity float64 `json:"equity"`
}

const (
	StartSentinel = "START"
	EndSentinel   = "END"
)

// Metrics aggregates a run.
type Metrics struct {
	StartingEquity       float64  `json:"starting_equity"`
	EndingEquity         float64  `json:"ending_equity"`
	TotalPnL             float64  `json:"total_pnl"`
	NumTrades            int      `json:"num_trades"`
	WinRate              float64  `json:"win_rate"`
	MaxDrawdown          float64  `json:"max_drawdown"`
	LeverageUsed         float64  `json:"leverage_used"`
	PositionSizeOverride *float64 `json:"position_size_override,omitempty"`
}

// Result is the full output of a replay run.
type Result struct {
	Metrics     Metrics            `json:"metrics"`
	Trades      []Trade            `json:"trades"`
	EquityCurve []EquityCurvePoint `json:"curve"`
}

// Default size bounds in base-asset units.
const (
	DefaultMinOrderSize = 0.0001
	DefaultMaxOrderSize = 10.0
)

// Config is the immutable per-invocation configuration of the engine. A zero
// value is usable: withDefaults fills leverage 1, zero fees and the default
// size bounds.
type Config struct {
	InitialEquity float64
	FeeRate       float64
	Leverage      float64
	// SizeOverride, when set and positive, replaces the proposed size of
	// every entry in the run (base-asset units).
	SizeOverride *float64
	MinOrderSize float64
	MaxOrderSize float64
}

func (c Config) withDefaults() Config {
	if c.Leverage <= 0 {
		c.Leverage = 1
	}
	if c.FeeRate < 0 {
		c.FeeRate = 0
	}
	if c.MinOrderSize <= 0 {
		c.MinOrderSize = DefaultMinOrderSize
	}
	if c.MaxOrderSize <= 0 {
		c.MaxOrderSize = DefaultMaxOrderSize
	}
	return c
}

// entrySize resolves the size a qualifying open signal would trade at:
// override first, then the proposed size, clamped into the order bounds.
// Returns 0 when no entry should happen.
func (c Config) entrySize(proposed float64) float64 {
	size := proposed
	if c.SizeOverride != nil && *c.SizeOverride > 0 {
		size = *c.SizeOverride
	}
	if size <= 0 {
		return 0
	}
	if size < c.MinOrderSize {
		size = c.MinOrderSize
	}
	if size > c.MaxOrderSize {
		size = c.MaxOrderSize
	}
	return size
}
