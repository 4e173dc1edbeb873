package strategy

import (
	"math"
	"testing"
	"time"

	"okx-trading-bot/internal/okx"
)

func kline(i int, high, low, close float64) okx.Kline {
	return okx.Kline{
		Time:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * 30 * time.Minute),
		Open:  close,
		High:  high,
		Low:   low,
		Close: close,
	}
}

func TestCalculateEMASeries(t *testing.T) {
	t.Run("constant series stays flat", func(t *testing.T) {
		series := CalculateEMASeries([]float64{10, 10, 10}, 20)
		for i, v := range series {
			if v != 10 {
				t.Errorf("series[%d] = %f, want 10", i, v)
			}
		}
	})

	t.Run("seeded with first close", func(t *testing.T) {
		series := CalculateEMASeries([]float64{10, 20}, 2)
		if series[0] != 10 {
			t.Errorf("series[0] = %f, want 10", series[0])
		}
		// k = 2/3: 20*2/3 + 10*1/3
		want := 20*2.0/3 + 10*1.0/3
		if math.Abs(series[1]-want) > 1e-9 {
			t.Errorf("series[1] = %f, want %f", series[1], want)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		if series := CalculateEMASeries(nil, 20); series != nil {
			t.Errorf("expected nil, got %v", series)
		}
	})
}

func TestLastTwo(t *testing.T) {
	tests := []struct {
		name               string
		series             []float64
		wantLast, wantPrev float64
	}{
		{"two or more", []float64{1, 2, 3}, 3, 2},
		{"single value repeated", []float64{7}, 7, 7},
		{"empty", nil, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			last, prev := LastTwo(tt.series)
			if last != tt.wantLast || prev != tt.wantPrev {
				t.Errorf("got (%f, %f), want (%f, %f)", last, prev, tt.wantLast, tt.wantPrev)
			}
		})
	}
}

func TestCalculateATR(t *testing.T) {
	t.Run("mean of true ranges", func(t *testing.T) {
		klines := []okx.Kline{
			kline(0, 102, 98, 100),
			kline(1, 110, 95, 105), // tr = max(15, 10, 5) = 15
			kline(2, 108, 100, 104), // tr = max(8, 3, 5) = 8
		}
		atr := CalculateATR(klines, 14)
		if math.Abs(atr-11.5) > 1e-9 {
			t.Errorf("atr = %f, want 11.5", atr)
		}
	})

	t.Run("trailing window", func(t *testing.T) {
		klines := make([]okx.Kline, 0, 20)
		for i := 0; i < 20; i++ {
			klines = append(klines, kline(i, 101, 99, 100))
		}
		// tr is 2 everywhere, window of any size averages to 2
		if atr := CalculateATR(klines, 14); math.Abs(atr-2) > 1e-9 {
			t.Errorf("atr = %f, want 2", atr)
		}
	})

	t.Run("too little data", func(t *testing.T) {
		if atr := CalculateATR([]okx.Kline{kline(0, 101, 99, 100)}, 14); atr != 0 {
			t.Errorf("atr = %f, want 0", atr)
		}
	})
}
