package engine

import "time"

// The position lifecycle engine is pure and synchronous: it owns no storage,
// performs no I/O and processes one signal event to completion before the
// next. Replay feeds it a full historical sequence, Step feeds it one fresh
// event; both share the same transition rules.

// State is the lifecycle state between events: the optional open position
// plus the running accounting. A zero Position pointer means FLAT.
type State struct {
	Position *Position
	Acct     Accounting
}

// NewState returns a FLAT state with the given starting equity.
func NewState(cfg Config) State {
	cfg = cfg.withDefaults()
	return State{Acct: newAccounting(cfg.InitialEquity)}
}

// Metrics snapshots the running accounting of a live state.
func (s State) Metrics(cfg Config) Metrics {
	return s.Acct.metrics(cfg.withDefaults())
}

// exitHit evaluates the take-profit / stop-loss triggers of a position
// against one observed price. Both triggers must be set for either to fire;
// take-profit wins ties since it is checked first.
func exitHit(pos *Position, price float64) (float64, ExitReason, bool) {
	if pos.TakeProfit == nil || pos.StopLoss == nil {
		return 0, "", false
	}
	tp, sl := *pos.TakeProfit, *pos.StopLoss
	if pos.Side == SideLong {
		if price >= tp {
			return tp, ExitTakeProfit, true
		}
		if price <= sl {
			return sl, ExitStopLoss, true
		}
	} else {
		if price <= tp {
			return tp, ExitTakeProfit, true
		}
		if price >= sl {
			return sl, ExitStopLoss, true
		}
	}
	return 0, "", false
}

// resolveExit applies the per-row exit rules to one event: TP/SL triggers
// first, then any recognized action closes at the observed price. Rows with
// an unusable price never resolve an exit.
func resolveExit(pos *Position, ev SignalEvent) (float64, ExitReason, bool) {
	if !ev.Valid() {
		return 0, "", false
	}
	if price, reason, ok := exitHit(pos, ev.Price); ok {
		return price, reason, ok
	}
	switch ev.Action {
	case ActionHold, ActionOpenLong, ActionOpenShort:
		return ev.Price, ExitSignal, true
	}
	return 0, "", false
}

// scanExit walks the stream tail from the given index looking for the
// earliest exit of an open position. It returns the exit row index along
// with the resolved price and reason; ok is false when the stream is
// exhausted with the position still open.
func scanExit(pos *Position, events []SignalEvent, from int) (int, float64, ExitReason, bool) {
	for j := from; j < len(events); j++ {
		if price, reason, ok := resolveExit(pos, events[j]); ok {
			return j, price, reason, true
		}
	}
	return 0, 0, "", false
}

// open transitions FLAT to IN_POSITION when the event qualifies: an open
// action with a positive resolved size and a usable price. Anything else is
// an effective hold.
func open(ev SignalEvent, cfg Config) *Position {
	if !ev.Valid() || !ev.Action.IsOpen() {
		return nil
	}
	size := cfg.entrySize(ev.ProposedSize)
	if size <= 0 {
		return nil
	}
	side := SideLong
	if ev.Action == ActionOpenShort {
		side = SideShort
	}
	return &Position{
		Side:       side,
		EntryPrice: ev.Price,
		Size:       size,
		EnterTime:  ev.Time,
		TakeProfit: ev.TakeProfit,
		StopLoss:   ev.StopLoss,
	}
}

// Step applies one freshly observed event to the state and returns the
// realized trades, in order. An open position is first resolved against the
// event (TP/SL before the signal rule); the same event is then reconsidered
// for an immediate new entry, so an exit and a flip can happen in one step.
func (s *State) Step(ev SignalEvent, cfg Config) []Trade {
	cfg = cfg.withDefaults()
	if !ev.Valid() {
		return nil
	}

	var trades []Trade
	if s.Position != nil {
		price, reason, ok := resolveExit(s.Position, ev)
		if !ok {
			return nil
		}
		trades = append(trades, s.Acct.settle(s.Position, price, ev.Time, reason, cfg))
		s.Position = nil
	}
	if s.Position == nil {
		s.Position = open(ev, cfg)
	}
	return trades
}

// Replay runs the full historical sequence through the state machine in one
// pass and returns trades, equity curve and metrics. A position still open
// when the stream ends is left unrealized and excluded from the outputs.
// Degenerate inputs (empty stream) yield a neutral result, never an error.
func Replay(events []SignalEvent, cfg Config) Result {
	cfg = cfg.withDefaults()
	acct := newAccounting(cfg.InitialEquity)
	trades := []Trade{}
	curve := []EquityCurvePoint{{Time: startLabel(events), Equity: acct.Equity}}

	var pos *Position
	i := 0
	for i < len(events) {
		ev := events[i]

		if pos == nil {
			if p := open(ev, cfg); p != nil {
				pos = p
				curve = append(curve, EquityCurvePoint{Time: timeLabel(ev.Time), Equity: acct.Equity})
			}
			i++
			continue
		}

		exitIdx, exitPrice, reason, ok := scanExit(pos, events, i)
		if !ok {
			// Stream exhausted with the position open: no forced close.
			break
		}

		exitTime := events[exitIdx].Time
		trades = append(trades, acct.settle(pos, exitPrice, exitTime, reason, cfg))
		curve = append(curve, EquityCurvePoint{Time: timeLabel(exitTime), Equity: acct.Equity})
		pos = nil
		// The exit row is reprocessed: a qualifying open signal there flips
		// into a new position at the same row.
		i = exitIdx
	}

	if len(curve) < 2 {
		curve = append(curve, EquityCurvePoint{Time: endLabel(events), Equity: acct.Equity})
	}

	return Result{
		Metrics:     acct.metrics(cfg),
		Trades:      trades,
		EquityCurve: curve,
	}
}

func timeLabel(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func startLabel(events []SignalEvent) string {
	if len(events) > 0 && !events[0].Time.IsZero() {
		return timeLabel(events[0].Time)
	}
	return StartSentinel
}

func endLabel(events []SignalEvent) string {
	if len(events) > 0 && !events[len(events)-1].Time.IsZero() {
		return timeLabel(events[len(events)-1].Time)
	}
	return EndSentinel
}
