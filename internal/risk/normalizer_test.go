package risk

import (
	"math"
	"testing"

	"okx-trading-bot/internal/engine"
)

func fp(v float64) *float64 { return &v }

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNormalizeTPSL_Long(t *testing.T) {
	const entry, atr = 3500.0, 10.0
	// baselines: slDist = 12, minTPDist = max(18, 17.5) = 18

	tests := []struct {
		name           string
		tp, sl         *float64
		wantTP, wantSL float64
	}{
		{
			name:   "missing both",
			wantSL: entry - 12,
			// tp rebuilt from sl distance: 12*1.8 = 21.6 > minTPDist 18
			wantTP: entry + 21.6,
		},
		{
			name:   "sl on wrong side replaced",
			sl:     fp(entry + 5),
			wantSL: entry - 12,
			wantTP: entry + 21.6,
		},
		{
			name:   "tp below entry replaced",
			tp:     fp(entry - 30),
			sl:     fp(entry - 20),
			wantSL: entry - 20,
			wantTP: entry + 36, // 20*1.8
		},
		{
			name:   "tp under minimum risk reward replaced",
			tp:     fp(entry + 10), // dist 10 < 1.4*20
			sl:     fp(entry - 20),
			wantSL: entry - 20,
			wantTP: entry + 36,
		},
		{
			name:   "sane values kept",
			tp:     fp(entry + 40),
			sl:     fp(entry - 20),
			wantSL: entry - 20,
			wantTP: entry + 40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tp, sl := NormalizeTPSL(engine.SideLong, entry, tt.tp, tt.sl, atr)
			if !almostEqual(tp, tt.wantTP) {
				t.Errorf("tp = %f, want %f", tp, tt.wantTP)
			}
			if !almostEqual(sl, tt.wantSL) {
				t.Errorf("sl = %f, want %f", sl, tt.wantSL)
			}
		})
	}
}

func TestNormalizeTPSL_Short(t *testing.T) {
	const entry, atr = 3500.0, 10.0

	tp, sl := NormalizeTPSL(engine.SideShort, entry, nil, nil, atr)
	if !almostEqual(sl, entry+12) {
		t.Errorf("sl = %f, want %f", sl, entry+12)
	}
	if !almostEqual(tp, entry-21.6) {
		t.Errorf("tp = %f, want %f", tp, entry-21.6)
	}

	// sane short triggers kept
	tp, sl = NormalizeTPSL(engine.SideShort, entry, fp(entry-40), fp(entry+20), atr)
	if !almostEqual(tp, entry-40) || !almostEqual(sl, entry+20) {
		t.Errorf("sane short triggers changed: tp=%f sl=%f", tp, sl)
	}
}

func TestNormalizeTPSL_MinimumTPDistance(t *testing.T) {
	// With a tiny ATR the 0.5% floor dominates the take-profit distance.
	const entry, atr = 3500.0, 0.1

	tp, sl := NormalizeTPSL(engine.SideLong, entry, nil, nil, atr)
	if !almostEqual(sl, entry-0.12) {
		t.Errorf("sl = %f, want %f", sl, entry-0.12)
	}
	if !almostEqual(tp, entry+entry*0.005) {
		t.Errorf("tp = %f, want %f", tp, entry+entry*0.005)
	}
}

func TestNormalizeTPSL_ZeroATRFloor(t *testing.T) {
	tp, sl := NormalizeTPSL(engine.SideLong, 100, nil, nil, 0)
	if sl >= 100 {
		t.Errorf("sl = %f, must stay below entry", sl)
	}
	if !almostEqual(100-sl, 0.0001) {
		t.Errorf("sl distance = %f, want floor 0.0001", 100-sl)
	}
	if tp <= 100 {
		t.Errorf("tp = %f, must stay above entry", tp)
	}
}

func TestValidateTriggers(t *testing.T) {
	tests := []struct {
		name    string
		side    engine.Side
		tp, sl  float64
		wantErr bool
	}{
		{"valid long", engine.SideLong, 110, 90, false},
		{"long tp below entry", engine.SideLong, 95, 90, true},
		{"long sl above entry", engine.SideLong, 110, 105, true},
		{"valid short", engine.SideShort, 90, 110, false},
		{"short tp above entry", engine.SideShort, 105, 110, true},
		{"short sl below entry", engine.SideShort, 90, 95, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTriggers(tt.side, 100, tt.tp, tt.sl)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTriggers() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
