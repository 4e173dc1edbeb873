package strategy

import (
	"fmt"

	"okx-trading-bot/internal/engine"
	"okx-trading-bot/internal/okx"
)

// Trend/volatility entry gate: EMA 20/50 on a medium and a long timeframe
// plus an ATR band on the medium one. Entries failing the gate degrade to an
// effective hold for the cycle, never an error.

const (
	ATRPeriod = 14

	// Acceptable volatility band for ATR/price: below it the market is too
	// flat to clear fees, above it the stop distance blows up.
	ATRRatioMin = 0.0015
	ATRRatioMax = 0.02

	// Entries chasing price further than this many ATRs from the fast EMA
	// are blocked.
	MaxEMADistanceATR = 2.0
)

// FilterSnapshot holds the computed indicators for one entry decision.
type FilterSnapshot struct {
	EMA20Medium   float64 `json:"ema20_30"`
	EMA50Medium   float64 `json:"ema50_30"`
	EMA20Long     float64 `json:"ema20_2h"`
	EMA50Long     float64 `json:"ema50_2h"`
	Slope20Medium float64 `json:"slope20_30"`
	Slope20Long   float64 `json:"slope20_2h"`
	Bullish       bool    `json:"bullish"`
	Bearish       bool    `json:"bearish"`
	ATR           float64 `json:"atr"`
	ATRRatio      float64 `json:"atr_ratio"`
}

// ComputeFilters derives the snapshot from medium (30m) and long (2h)
// timeframe klines. Both series must be chronological ascending.
func ComputeFilters(mediumKlines, longKlines []okx.Kline, currentPrice float64) FilterSnapshot {
	ema20M := CalculateEMASeries(Closes(mediumKlines), 20)
	ema50M := CalculateEMASeries(Closes(mediumKlines), 50)
	ema20L := CalculateEMASeries(Closes(longKlines), 20)
	ema50L := CalculateEMASeries(Closes(longKlines), 50)

	var snap FilterSnapshot
	var prev20M, prev20L float64
	snap.EMA20Medium, prev20M = LastTwo(ema20M)
	snap.EMA50Medium, _ = LastTwo(ema50M)
	snap.EMA20Long, prev20L = LastTwo(ema20L)
	snap.EMA50Long, _ = LastTwo(ema50L)
	snap.Slope20Medium = snap.EMA20Medium - prev20M
	snap.Slope20Long = snap.EMA20Long - prev20L

	snap.Bullish = snap.EMA20Medium > snap.EMA50Medium &&
		snap.EMA20Long > snap.EMA50Long &&
		snap.Slope20Medium > 0 &&
		snap.Slope20Long >= 0
	snap.Bearish = snap.EMA20Medium < snap.EMA50Medium &&
		snap.EMA20Long < snap.EMA50Long &&
		snap.Slope20Medium < 0 &&
		snap.Slope20Long <= 0

	snap.ATR = CalculateATR(mediumKlines, ATRPeriod)
	denom := currentPrice
	if denom < 1e-9 {
		denom = 1e-9
	}
	snap.ATRRatio = snap.ATR / denom

	return snap
}

// AllowEntry gates a prospective entry. It returns false with a reason when
// the trend bias, the price-to-EMA distance or the volatility band blocks
// the side. With no usable history the snapshot is all zeros and the gate
// fails closed.
func (s FilterSnapshot) AllowEntry(side engine.Side, currentPrice float64) (bool, string) {
	if s.ATRRatio < ATRRatioMin || s.ATRRatio > ATRRatioMax {
		return false, fmt.Sprintf("atr ratio %.4f outside [%.4f, %.4f]", s.ATRRatio, ATRRatioMin, ATRRatioMax)
	}

	atr := s.ATR
	if atr < 1e-9 {
		atr = 1e-9
	}

	if side == engine.SideLong {
		if !s.Bullish {
			return false, "trend not bullish"
		}
		if currentPrice <= s.EMA20Medium {
			return false, "price below medium-timeframe EMA20"
		}
		if currentPrice-s.EMA20Medium > MaxEMADistanceATR*atr {
			return false, "price too far above EMA20"
		}
		return true, ""
	}

	if !s.Bearish {
		return false, "trend not bearish"
	}
	if currentPrice >= s.EMA20Medium {
		return false, "price above medium-timeframe EMA20"
	}
	if s.EMA20Medium-currentPrice > MaxEMADistanceATR*atr {
		return false, "price too far below EMA20"
	}
	return true, ""
}
