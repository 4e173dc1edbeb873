package bot

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"okx-trading-bot/internal/engine"
)

// Tracker writes the trade lifecycle audit stream. It is separate from the
// application logger so fills can be grepped or shipped independently.
type Tracker struct {
	log zerolog.Logger
}

// NewTracker creates a tracker writing JSON lines to w, or stdout when w is
// nil.
func NewTracker(w io.Writer) *Tracker {
	if w == nil {
		w = os.Stdout
	}
	log := zerolog.New(w).With().
		Timestamp().
		Str("stream", "trades").
		Logger()
	return &Tracker{log: log}
}

// Opened records a new simulated position.
func (t *Tracker) Opened(symbol string, pos *engine.Position) {
	ev := t.log.Info().
		Str("event", "opened").
		Str("symbol", symbol).
		Str("side", string(pos.Side)).
		Float64("entry_price", pos.EntryPrice).
		Float64("size", pos.Size).
		Time("enter_time", pos.EnterTime)
	if pos.TakeProfit != nil {
		ev = ev.Float64("take_profit", *pos.TakeProfit)
	}
	if pos.StopLoss != nil {
		ev = ev.Float64("stop_loss", *pos.StopLoss)
	}
	ev.Send()
}

// Closed records a realized trade.
func (t *Tracker) Closed(symbol string, trade engine.Trade, equity float64) {
	t.log.Info().
		Str("event", "closed").
		Str("symbol", symbol).
		Str("side", string(trade.Side)).
		Str("exit_reason", string(trade.ExitReason)).
		Float64("entry_price", trade.EntryPrice).
		Float64("exit_price", trade.ExitPrice).
		Float64("size", trade.Size).
		Float64("pnl", trade.PnL).
		Float64("return_pct", trade.ReturnPct).
		Float64("equity", equity).
		Time("exit_time", trade.ExitTime).
		Send()
}

// Rejected records an entry signal that was filtered out before execution.
func (t *Tracker) Rejected(symbol, action, reason string, price float64) {
	t.log.Warn().
		Str("event", "rejected").
		Str("symbol", symbol).
		Str("action", action).
		Str("reason", reason).
		Float64("price", price).
		Send()
}

// Cycle records the outcome of one analysis cycle.
func (t *Tracker) Cycle(symbol, action, confidence string, price float64, executed bool, took time.Duration) {
	t.log.Info().
		Str("event", "cycle").
		Str("symbol", symbol).
		Str("action", action).
		Str("confidence", confidence).
		Float64("price", price).
		Bool("executed", executed).
		Dur("took", took).
		Send()
}
