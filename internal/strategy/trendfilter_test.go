package strategy

import (
	"testing"

	"okx-trading-bot/internal/engine"
	"okx-trading-bot/internal/okx"
)

func trendKlines(n int, start, step float64) []okx.Kline {
	klines := make([]okx.Kline, 0, n)
	for i := 0; i < n; i++ {
		close := start + float64(i)*step
		klines = append(klines, kline(i, close+3, close-3, close))
	}
	return klines
}

func TestComputeFilters_BullishUptrend(t *testing.T) {
	medium := trendKlines(60, 3500, 1)
	long := trendKlines(60, 3400, 2)
	price := medium[len(medium)-1].Close

	snap := ComputeFilters(medium, long, price)

	if !snap.Bullish {
		t.Error("expected bullish classification on a steady uptrend")
	}
	if snap.Bearish {
		t.Error("uptrend must not classify bearish")
	}
	if snap.Slope20Medium <= 0 {
		t.Errorf("expected positive medium slope, got %f", snap.Slope20Medium)
	}
	if snap.ATR <= 0 {
		t.Errorf("expected positive ATR, got %f", snap.ATR)
	}

	ok, reason := snap.AllowEntry(engine.SideLong, price)
	if !ok {
		t.Errorf("expected long entry allowed, blocked: %s", reason)
	}
	if ok, _ := snap.AllowEntry(engine.SideShort, price); ok {
		t.Error("short entry must be blocked in an uptrend")
	}
}

func TestComputeFilters_BearishDowntrend(t *testing.T) {
	medium := trendKlines(60, 3559, -1)
	long := trendKlines(60, 3600, -2)
	price := medium[len(medium)-1].Close

	snap := ComputeFilters(medium, long, price)

	if !snap.Bearish {
		t.Error("expected bearish classification on a steady downtrend")
	}
	ok, reason := snap.AllowEntry(engine.SideShort, price)
	if !ok {
		t.Errorf("expected short entry allowed, blocked: %s", reason)
	}
	if ok, _ := snap.AllowEntry(engine.SideLong, price); ok {
		t.Error("long entry must be blocked in a downtrend")
	}
}

func TestComputeFilters_FailsClosedWithoutHistory(t *testing.T) {
	snap := ComputeFilters(nil, nil, 3500)

	if ok, _ := snap.AllowEntry(engine.SideLong, 3500); ok {
		t.Error("gate must fail closed with no price history")
	}
	if ok, _ := snap.AllowEntry(engine.SideShort, 3500); ok {
		t.Error("gate must fail closed with no price history")
	}
}

func TestAllowEntry_VolatilityBand(t *testing.T) {
	base := FilterSnapshot{
		EMA20Medium:   3550,
		EMA50Medium:   3540,
		EMA20Long:     3500,
		EMA50Long:     3480,
		Slope20Medium: 1,
		Slope20Long:   1,
		Bullish:       true,
		ATR:           6,
	}

	tests := []struct {
		name     string
		atrRatio float64
		want     bool
	}{
		{"too flat", 0.001, false},
		{"in band", 0.005, true},
		{"too volatile", 0.05, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := base
			snap.ATRRatio = tt.atrRatio
			ok, _ := snap.AllowEntry(engine.SideLong, 3555)
			if ok != tt.want {
				t.Errorf("AllowEntry = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestAllowEntry_DistanceFromEMA(t *testing.T) {
	snap := FilterSnapshot{
		EMA20Medium:   3500,
		EMA50Medium:   3490,
		EMA20Long:     3480,
		EMA50Long:     3470,
		Slope20Medium: 1,
		Slope20Long:   1,
		Bullish:       true,
		ATR:           5,
		ATRRatio:      0.005,
	}

	// within 2 ATR of the fast EMA
	if ok, reason := snap.AllowEntry(engine.SideLong, 3509); !ok {
		t.Errorf("expected entry allowed at 9 above EMA, blocked: %s", reason)
	}
	// chasing beyond 2 ATR
	if ok, _ := snap.AllowEntry(engine.SideLong, 3511); ok {
		t.Error("expected entry blocked at 11 above EMA")
	}
	// below the EMA entirely
	if ok, _ := snap.AllowEntry(engine.SideLong, 3499); ok {
		t.Error("expected entry blocked below the EMA")
	}
}
