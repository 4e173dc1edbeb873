package engine

import (
	"math"
	"reflect"
	"testing"
	"time"
)

func fp(v float64) *float64 { return &v }

func at(i int) time.Time {
	return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(i) * 5 * time.Minute)
}

func ev(i int, action Action, price, size float64, tp, sl *float64) SignalEvent {
	return SignalEvent{
		Time:         at(i),
		Price:        price,
		Action:       action,
		ProposedSize: size,
		TakeProfit:   tp,
		StopLoss:     sl,
		Confidence:   ConfidenceMedium,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestReplay_SignalExit(t *testing.T) {
	events := []SignalEvent{
		ev(0, ActionOpenLong, 100, 1, nil, nil),
		ev(1, ActionHold, 105, 0, nil, nil),
		ev(2, ActionHold, 95, 0, nil, nil),
	}
	res := Replay(events, Config{InitialEquity: 10000})

	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.EntryPrice != 100 || tr.ExitPrice != 105 {
		t.Errorf("expected entry 100 exit 105, got %f/%f", tr.EntryPrice, tr.ExitPrice)
	}
	if tr.ExitReason != ExitSignal {
		t.Errorf("expected exit reason signal, got %s", tr.ExitReason)
	}
	if !almostEqual(tr.PnL, 5) {
		t.Errorf("expected pnl 5, got %f", tr.PnL)
	}
	if !almostEqual(res.Metrics.EndingEquity, 10005) {
		t.Errorf("expected ending equity 10005, got %f", res.Metrics.EndingEquity)
	}
}

func TestReplay_TakeProfitExitsAtTriggerPrice(t *testing.T) {
	events := []SignalEvent{
		ev(0, ActionOpenLong, 100, 1, fp(110), fp(90)),
		ev(1, ActionHold, 111, 0, nil, nil),
	}
	res := Replay(events, Config{InitialEquity: 10000})

	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.ExitReason != ExitTakeProfit {
		t.Errorf("expected exit reason tp, got %s", tr.ExitReason)
	}
	if tr.ExitPrice != 110 {
		t.Errorf("expected exit at trigger price 110, got %f", tr.ExitPrice)
	}
	if !almostEqual(tr.PnL, 10) {
		t.Errorf("expected pnl 10, got %f", tr.PnL)
	}
}

func TestReplay_StopLossShort(t *testing.T) {
	events := []SignalEvent{
		ev(0, ActionOpenShort, 100, 1, fp(90), fp(110)),
		ev(1, ActionHold, 110, 0, nil, nil),
	}
	res := Replay(events, Config{InitialEquity: 10000})

	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.ExitReason != ExitStopLoss {
		t.Errorf("expected exit reason sl, got %s", tr.ExitReason)
	}
	if !almostEqual(tr.PnL, -10) {
		t.Errorf("expected pnl -10, got %f", tr.PnL)
	}
}

func TestReplay_UnrealizedTailPositionExcluded(t *testing.T) {
	events := []SignalEvent{
		ev(0, ActionOpenLong, 100, 2, nil, nil),
	}
	res := Replay(events, Config{InitialEquity: 10000})

	if len(res.Trades) != 0 {
		t.Fatalf("expected 0 trades, got %d", len(res.Trades))
	}
	if res.Metrics.NumTrades != 0 {
		t.Errorf("expected num_trades 0, got %d", res.Metrics.NumTrades)
	}
	if res.Metrics.WinRate != 0 {
		t.Errorf("expected win_rate 0, got %f", res.Metrics.WinRate)
	}
	if !almostEqual(res.Metrics.EndingEquity, 10000) {
		t.Errorf("expected unchanged equity, got %f", res.Metrics.EndingEquity)
	}
}

func TestReplay_TriggerBeatsSignalAtSameRow(t *testing.T) {
	// The exit row carries both a TP breach and an open signal; the trigger
	// must win and the flip still happens at the same row.
	events := []SignalEvent{
		ev(0, ActionOpenLong, 100, 1, fp(110), fp(90)),
		ev(1, ActionOpenShort, 112, 1, nil, nil),
		ev(2, ActionHold, 108, 0, nil, nil),
	}
	res := Replay(events, Config{InitialEquity: 10000})

	if len(res.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(res.Trades))
	}
	if res.Trades[0].ExitReason != ExitTakeProfit {
		t.Errorf("expected first exit reason tp, got %s", res.Trades[0].ExitReason)
	}
	if res.Trades[0].ExitPrice != 110 {
		t.Errorf("expected first exit at 110, got %f", res.Trades[0].ExitPrice)
	}
	second := res.Trades[1]
	if second.Side != SideShort || second.EntryPrice != 112 {
		t.Errorf("expected short flip entry at 112, got %s at %f", second.Side, second.EntryPrice)
	}
	if !almostEqual(second.PnL, 4) {
		t.Errorf("expected short pnl 4, got %f", second.PnL)
	}
}

func TestReplay_SignalFlip(t *testing.T) {
	events := []SignalEvent{
		ev(0, ActionOpenLong, 100, 1, nil, nil),
		ev(1, ActionOpenShort, 95, 1, nil, nil),
		ev(2, ActionHold, 90, 0, nil, nil),
	}
	res := Replay(events, Config{InitialEquity: 10000})

	if len(res.Trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(res.Trades))
	}
	first, second := res.Trades[0], res.Trades[1]
	if first.Side != SideLong || !almostEqual(first.PnL, -5) {
		t.Errorf("expected long pnl -5, got %s %f", first.Side, first.PnL)
	}
	if second.Side != SideShort || second.EntryPrice != 95 || !almostEqual(second.PnL, 5) {
		t.Errorf("expected short entry 95 pnl 5, got %f %f", second.EntryPrice, second.PnL)
	}
	if !second.EnterTime.Equal(first.ExitTime) {
		t.Error("flip must reopen at the exit row's timestamp")
	}
}

func TestReplay_LeverageAndFees(t *testing.T) {
	events := []SignalEvent{
		ev(0, ActionOpenLong, 100, 1, nil, nil),
		ev(1, ActionHold, 105, 0, nil, nil),
	}
	res := Replay(events, Config{InitialEquity: 10000, Leverage: 2, FeeRate: 0.001})

	tr := res.Trades[0]
	// gross 5 * lev 2 = 10, fees 0.001*(100+105)*1*2 = 0.41
	if !almostEqual(tr.PnL, 10-0.41) {
		t.Errorf("expected pnl 9.59, got %f", tr.PnL)
	}
	// return stays unleveraged
	if !almostEqual(tr.ReturnPct, 0.05) {
		t.Errorf("expected return 0.05, got %f", tr.ReturnPct)
	}
	if res.Metrics.LeverageUsed != 2 {
		t.Errorf("expected leverage_used 2, got %f", res.Metrics.LeverageUsed)
	}
}

func TestReplay_SizeOverrideAndClamp(t *testing.T) {
	tests := []struct {
		name     string
		proposed float64
		override *float64
		wantSize float64
		wantOpen bool
	}{
		{"proposed used as-is", 0.5, nil, 0.5, true},
		{"override wins", 0.5, fp(2.0), 2.0, true},
		{"clamped to max", 50, nil, DefaultMaxOrderSize, true},
		{"clamped to min", 0.00001, nil, DefaultMinOrderSize, true},
		{"zero size no entry", 0, nil, 0, false},
		{"non-positive override no entry", 0, fp(-1), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := []SignalEvent{
				ev(0, ActionOpenLong, 100, tt.proposed, nil, nil),
				ev(1, ActionHold, 110, 0, nil, nil),
			}
			res := Replay(events, Config{InitialEquity: 10000, SizeOverride: tt.override})

			if !tt.wantOpen {
				if len(res.Trades) != 0 {
					t.Fatalf("expected no trades, got %d", len(res.Trades))
				}
				return
			}
			if len(res.Trades) != 1 {
				t.Fatalf("expected 1 trade, got %d", len(res.Trades))
			}
			if !almostEqual(res.Trades[0].Size, tt.wantSize) {
				t.Errorf("expected size %f, got %f", tt.wantSize, res.Trades[0].Size)
			}
		})
	}
}

func TestReplay_InvalidRowsSkipped(t *testing.T) {
	events := []SignalEvent{
		ev(0, ActionOpenLong, 100, 1, nil, nil),
		ev(1, ActionHold, 0, 0, nil, nil), // unusable price, skipped
		ev(2, ActionHold, 107, 0, nil, nil),
	}
	res := Replay(events, Config{InitialEquity: 10000})

	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	if res.Trades[0].ExitPrice != 107 {
		t.Errorf("expected exit at 107 past the invalid row, got %f", res.Trades[0].ExitPrice)
	}
}

func TestReplay_EmptyStream(t *testing.T) {
	res := Replay(nil, Config{InitialEquity: 10000})

	if len(res.Trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(res.Trades))
	}
	if len(res.EquityCurve) != 2 {
		t.Fatalf("expected start and end curve points, got %d", len(res.EquityCurve))
	}
	if res.EquityCurve[0].Time != StartSentinel || res.EquityCurve[1].Time != EndSentinel {
		t.Errorf("expected sentinel labels, got %q/%q", res.EquityCurve[0].Time, res.EquityCurve[1].Time)
	}
	if res.Metrics.WinRate != 0 || res.Metrics.NumTrades != 0 {
		t.Error("empty stream must yield neutral metrics")
	}
}

func TestReplay_HoldWhileFlatDoesNothing(t *testing.T) {
	events := []SignalEvent{
		ev(0, ActionHold, 100, 0, nil, nil),
		ev(1, ActionHold, 101, 0, nil, nil),
		ev(2, ActionOpenLong, 102, 1, nil, nil),
		ev(3, ActionHold, 104, 0, nil, nil),
	}
	res := Replay(events, Config{InitialEquity: 10000})

	if len(res.Trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(res.Trades))
	}
	if res.Trades[0].EntryPrice != 102 {
		t.Errorf("expected entry at 102, got %f", res.Trades[0].EntryPrice)
	}
}

func TestReplay_Idempotent(t *testing.T) {
	events := []SignalEvent{
		ev(0, ActionOpenLong, 100, 1, fp(120), fp(80)),
		ev(1, ActionHold, 95, 0, nil, nil),
		ev(2, ActionOpenShort, 93, 1.5, nil, nil),
		ev(3, ActionHold, 85, 0, nil, nil),
		ev(4, ActionOpenLong, 88, 1, nil, nil),
	}
	cfg := Config{InitialEquity: 5000, Leverage: 3, FeeRate: 0.0005}

	first := Replay(events, cfg)
	second := Replay(events, cfg)

	if !reflect.DeepEqual(first, second) {
		t.Error("replaying the same stream twice must yield identical results")
	}
}

func TestReplay_Invariants(t *testing.T) {
	events := []SignalEvent{
		ev(0, ActionOpenLong, 100, 1, fp(103), fp(97)),
		ev(1, ActionHold, 104, 0, nil, nil),
		ev(2, ActionOpenShort, 101, 1, fp(95), fp(106)),
		ev(3, ActionHold, 107, 0, nil, nil),
		ev(4, ActionOpenLong, 99, 1, nil, nil),
		ev(5, ActionHold, 94, 0, nil, nil),
	}
	res := Replay(events, Config{InitialEquity: 10000})

	// No overlapping trades in time.
	for i := 1; i < len(res.Trades); i++ {
		if res.Trades[i].EnterTime.Before(res.Trades[i-1].ExitTime) {
			t.Errorf("trade %d overlaps previous trade in time", i)
		}
	}
	// Exit reasons match the trigger inequality for the trade's side.
	for _, tr := range res.Trades {
		switch tr.ExitReason {
		case ExitTakeProfit:
			if tr.Side == SideLong && tr.ExitPrice < tr.EntryPrice {
				t.Error("long tp exit below entry")
			}
		case ExitStopLoss:
			if tr.Side == SideLong && tr.ExitPrice > tr.EntryPrice {
				t.Error("long sl exit above entry")
			}
		}
	}
	if res.Metrics.MaxDrawdown < 0 {
		t.Errorf("max drawdown must be >= 0, got %f", res.Metrics.MaxDrawdown)
	}
	if res.Metrics.WinRate < 0 || res.Metrics.WinRate > 1 {
		t.Errorf("win rate out of [0,1]: %f", res.Metrics.WinRate)
	}
}

func TestReplay_DrawdownTracking(t *testing.T) {
	events := []SignalEvent{
		ev(0, ActionOpenLong, 100, 1, nil, nil),
		ev(1, ActionOpenShort, 110, 1, nil, nil), // +10, equity 10010
		ev(2, ActionHold, 130, 0, nil, nil),      // short loses 20, equity 9990
	}
	res := Replay(events, Config{InitialEquity: 10000})

	want := (10010.0 - 9990.0) / 10010.0
	if !almostEqual(res.Metrics.MaxDrawdown, want) {
		t.Errorf("expected max drawdown %f, got %f", want, res.Metrics.MaxDrawdown)
	}
}

func TestReplay_EquityCurveShape(t *testing.T) {
	events := []SignalEvent{
		ev(0, ActionOpenLong, 100, 1, nil, nil),
		ev(1, ActionHold, 105, 0, nil, nil),
	}
	res := Replay(events, Config{InitialEquity: 10000})

	// start, open, close
	if len(res.EquityCurve) != 3 {
		t.Fatalf("expected 3 curve points, got %d", len(res.EquityCurve))
	}
	if res.EquityCurve[0].Equity != 10000 || res.EquityCurve[1].Equity != 10000 {
		t.Error("equity must be unchanged until the first close")
	}
	if !almostEqual(res.EquityCurve[2].Equity, 10005) {
		t.Errorf("expected closing equity 10005, got %f", res.EquityCurve[2].Equity)
	}
}

func TestStep_MatchesReplay(t *testing.T) {
	events := []SignalEvent{
		ev(0, ActionOpenLong, 100, 1, fp(103), fp(97)),
		ev(1, ActionHold, 104, 0, nil, nil),
		ev(2, ActionOpenShort, 101, 1, nil, nil),
		ev(3, ActionHold, 96, 0, nil, nil),
	}
	cfg := Config{InitialEquity: 10000, Leverage: 2, FeeRate: 0.001}

	replayed := Replay(events, cfg)

	state := NewState(cfg)
	var streamed []Trade
	for _, e := range events {
		streamed = append(streamed, state.Step(e, cfg)...)
	}

	if !reflect.DeepEqual(replayed.Trades, streamed) {
		t.Errorf("streaming and replay disagree:\nreplay: %+v\nstream: %+v", replayed.Trades, streamed)
	}
	if !almostEqual(state.Acct.Equity, replayed.Metrics.EndingEquity) {
		t.Errorf("streaming equity %f != replay %f", state.Acct.Equity, replayed.Metrics.EndingEquity)
	}
}

func TestStep_SinglePositionInvariant(t *testing.T) {
	cfg := Config{InitialEquity: 10000}
	state := NewState(cfg)

	state.Step(ev(0, ActionOpenLong, 100, 1, nil, nil), cfg)
	if state.Position == nil {
		t.Fatal("expected an open position")
	}

	// The next open exits the current position first, so there is never more
	// than one position; the flip replaces it.
	trades := state.Step(ev(1, ActionOpenShort, 102, 1, nil, nil), cfg)
	if len(trades) != 1 {
		t.Fatalf("expected the flip to realize 1 trade, got %d", len(trades))
	}
	if state.Position == nil || state.Position.Side != SideShort {
		t.Error("expected a single short position after the flip")
	}
}
