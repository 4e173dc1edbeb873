package okx

import "time"

// Deterministic fallback data, used by callers when a market-data request
// fails so a decision cycle can still run.

const (
	FallbackPrice  = 3500.0
	FallbackEquity = 10000.0
)

func barDuration(bar string) time.Duration {
	switch bar {
	case "5m":
		return 5 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "2H":
		return 2 * time.Hour
	case "1D":
		return 24 * time.Hour
	default:
		return 5 * time.Minute
	}
}

// MockKlines synthesizes an ascending candle series around the fallback
// price.
func MockKlines(bar string, limit int) []Kline {
	step := barDuration(bar)
	now := time.Now().UTC()

	klines := make([]Kline, 0, limit)
	for i := limit; i > 0; i-- {
		base := FallbackPrice + float64(i)*5
		klines = append(klines, Kline{
			Time:   now.Add(-time.Duration(i) * step),
			Open:   base,
			High:   base + 20,
			Low:    base - 10,
			Close:  base + 8,
			Volume: 1500 + float64(i)*100,
		})
	}
	return klines
}

// MockBalance is the balance snapshot used when the account endpoint is
// unreachable or no credentials are configured.
func MockBalance() *Balance {
	return &Balance{AvailableUSDT: FallbackEquity, TotalEquity: FallbackEquity}
}

// MockPosition is a flat position snapshot.
func MockPosition(leverage float64) *PositionInfo {
	return &PositionInfo{Side: "flat", Leverage: leverage}
}
