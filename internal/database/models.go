package database

import "time"

// DecisionRecord is one stored AI decision with its market context.
type DecisionRecord struct {
	ID           int64     `json:"id"`
	DecisionID   string    `json:"decision_id"`
	Symbol       string    `json:"symbol"`
	CreatedAt    time.Time `json:"created_at"`
	Price        float64   `json:"price"`
	Action       string    `json:"action"`
	Confidence   string    `json:"confidence"`
	Reason       string    `json:"reason"`
	PositionSize float64   `json:"position_size"`
	StopLoss     *float64  `json:"stop_loss,omitempty"`
	TakeProfit   *float64  `json:"take_profit,omitempty"`
	MarketJSON   []byte    `json:"market_json,omitempty"`
	AccountJSON  []byte    `json:"account_json,omitempty"`
	Executed     bool      `json:"executed"`
}

// SimPosition is one simulated position row, open or closed.
type SimPosition struct {
	ID         int64      `json:"id"`
	Symbol     string     `json:"symbol"`
	Side       string     `json:"side"`
	Size       float64    `json:"size"`
	EntryPrice float64    `json:"entry_price"`
	TakeProfit *float64   `json:"take_profit,omitempty"`
	StopLoss   *float64   `json:"stop_loss,omitempty"`
	Status     string     `json:"status"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	ExitPrice  *float64   `json:"exit_price,omitempty"`
	PnL        *float64   `json:"pnl,omitempty"`
	ReturnPct  *float64   `json:"return_pct,omitempty"`
	ExitReason *string    `json:"exit_reason,omitempty"`
}

// BacktestRun is the stored aggregate of one backtest execution.
type BacktestRun struct {
	ID             int64     `json:"id"`
	RunID          string    `json:"run_id"`
	Symbol         string    `json:"symbol"`
	CreatedAt      time.Time `json:"created_at"`
	StartingEquity float64   `json:"starting_equity"`
	EndingEquity   float64   `json:"ending_equity"`
	TotalPnL       float64   `json:"total_pnl"`
	NumTrades      int       `json:"num_trades"`
	WinRate        float64   `json:"win_rate"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	LeverageUsed   float64   `json:"leverage_used"`
	SizeOverride   *float64  `json:"size_override,omitempty"`
	FeeRate        float64   `json:"fee_rate"`
}

// BacktestTradeRecord is one stored trade of a backtest run.
type BacktestTradeRecord struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	EnterTime  time.Time `json:"enter_time"`
	ExitTime   time.Time `json:"exit_time"`
	Side       string    `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Size       float64   `json:"size"`
	PnL        float64   `json:"pnl"`
	ReturnPct  float64   `json:"return_pct"`
	ExitReason string    `json:"exit_reason"`
}
