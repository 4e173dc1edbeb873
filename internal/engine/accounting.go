package engine

import "time"

// Accounting carries the running equity bookkeeping of a run. Peak and
// MaxDrawdown are re-evaluated after every realized trade, so MaxDrawdown is
// monotonically non-decreasing over the run.
type Accounting struct {
	StartingEquity float64
	Equity         float64
	Peak           float64
	MaxDrawdown    float64
	Wins           int
	NumTrades      int
}

func newAccounting(initialEquity float64) Accounting {
	return Accounting{
		StartingEquity: initialEquity,
		Equity:         initialEquity,
		Peak:           initialEquity,
	}
}

// settle converts a resolved exit into a realized trade and applies it to the
// running equity. PnL is leveraged and fee-adjusted on both sides; the return
// percentage stays unleveraged.
func (a *Accounting) settle(pos *Position, exitPrice float64, exitTime time.Time, reason ExitReason, cfg Config) Trade {
	var gross float64
	if pos.Side == SideLong {
		gross = (exitPrice - pos.EntryPrice) * pos.Size
	} else {
		gross = (pos.EntryPrice - exitPrice) * pos.Size
	}
	pnl := gross * cfg.Leverage
	feeEntry := cfg.FeeRate * pos.EntryPrice * pos.Size * cfg.Leverage
	feeExit := cfg.FeeRate * exitPrice * pos.Size * cfg.Leverage
	net := pnl - feeEntry - feeExit

	a.Equity += net
	a.NumTrades++
	if net > 0 {
		a.Wins++
	}
	if a.Equity > a.Peak {
		a.Peak = a.Equity
	}
	if a.Peak > 0 {
		if dd := (a.Peak - a.Equity) / a.Peak; dd > a.MaxDrawdown {
			a.MaxDrawdown = dd
		}
	}

	var retPct float64
	if pos.EntryPrice > 0 {
		if pos.Side == SideLong {
			retPct = (exitPrice - pos.EntryPrice) / pos.EntryPrice
		} else {
			retPct = (pos.EntryPrice - exitPrice) / pos.EntryPrice
		}
	}

	return Trade{
		EnterTime:  pos.EnterTime,
		ExitTime:   exitTime,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Size:       pos.Size,
		PnL:        net,
		ReturnPct:  retPct,
		ExitReason: reason,
	}
}

// metrics snapshots the accounting into the aggregate record. Win rate is
// zero for a tradeless run.
func (a Accounting) metrics(cfg Config) Metrics {
	winRate := 0.0
	if a.NumTrades > 0 {
		winRate = float64(a.Wins) / float64(a.NumTrades)
	}
	return Metrics{
		StartingEquity:       a.StartingEquity,
		EndingEquity:         a.Equity,
		TotalPnL:             a.Equity - a.StartingEquity,
		NumTrades:            a.NumTrades,
		WinRate:              winRate,
		MaxDrawdown:          a.MaxDrawdown,
		LeverageUsed:         cfg.Leverage,
		PositionSizeOverride: cfg.SizeOverride,
	}
}
