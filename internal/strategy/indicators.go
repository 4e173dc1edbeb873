package strategy

import (
	"math"

	"okx-trading-bot/internal/okx"
)

// CalculateEMASeries calculates the exponential moving average series over
// close prices, same length as the input. The series is seeded with the
// first close and smoothed with k = 2/(period+1).
func CalculateEMASeries(closes []float64, period int) []float64 {
	if len(closes) == 0 || period <= 0 {
		return nil
	}
	k := 2.0 / float64(period+1)
	series := make([]float64, len(closes))
	ema := closes[0]
	for i, c := range closes {
		ema = c*k + ema*(1-k)
		series[i] = ema
	}
	return series
}

// LastTwo returns the last and second-to-last values of a series, repeating
// a single value and zeroing an empty one. Used for one-step slope checks.
func LastTwo(series []float64) (last, prev float64) {
	switch {
	case len(series) >= 2:
		return series[len(series)-1], series[len(series)-2]
	case len(series) == 1:
		return series[0], series[0]
	default:
		return 0, 0
	}
}

// CalculateATR calculates the Average True Range over the trailing window as
// the mean of true ranges, using all available data when the series is
// shorter than the period. Klines must be in chronological ascending order.
func CalculateATR(klines []okx.Kline, period int) float64 {
	if len(klines) < 2 {
		return 0
	}
	trs := make([]float64, 0, len(klines)-1)
	prevClose := klines[0].Close
	for i := 1; i < len(klines); i++ {
		k := klines[i]
		tr := math.Max(k.High-k.Low, math.Max(math.Abs(k.High-prevClose), math.Abs(k.Low-prevClose)))
		trs = append(trs, tr)
		prevClose = k.Close
	}

	window := trs
	if period > 0 && len(trs) >= period {
		window = trs[len(trs)-period:]
	}
	sum := 0.0
	for _, tr := range window {
		sum += tr
	}
	return sum / float64(len(window))
}

// Closes extracts the close series from a kline sequence.
func Closes(klines []okx.Kline) []float64 {
	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
	}
	return closes
}
