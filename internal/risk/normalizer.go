package risk

import (
	"errors"

	"okx-trading-bot/internal/engine"
)

// TP/SL normalization: upstream signals frequently carry missing or
// economically invalid trigger prices, so they are corrected against an ATR
// volatility estimate before an entry is attempted.

const (
	// Baseline stop distance in ATRs, with a floor to keep the stop off the
	// entry price when volatility collapses.
	slATRMultiple = 1.2
	minSLDistance = 0.0001

	// Minimum take-profit distance: 1.8 ATRs, never under 0.5% of entry.
	tpATRMultiple = 1.8
	minTPPercent  = 0.005

	// Minimum risk/reward: the TP distance must be at least 1.4x the SL
	// distance, otherwise the TP is rebuilt at 1.8x the SL distance.
	minRiskReward = 1.4
	tpSLMultiple  = 1.8
)

// ErrInvalidTriggers is returned when the normalized TP/SL still sit on the
// wrong side of the entry; the entry is rejected, not executed.
var ErrInvalidTriggers = errors.New("tp/sl on wrong side of entry after normalization")

// NormalizeTPSL corrects the proposed take-profit and stop-loss for an entry.
// A nil or wrong-side stop is replaced with the ATR baseline; a nil,
// wrong-side or under-rewarded take-profit is rebuilt from the stop
// distance. The returned values are always non-nil.
func NormalizeTPSL(side engine.Side, entryPrice float64, proposedTP, proposedSL *float64, atr float64) (tp, sl float64) {
	if proposedTP != nil {
		tp = *proposedTP
	}
	if proposedSL != nil {
		sl = *proposedSL
	}

	slDist := atr * slATRMultiple
	if slDist < minSLDistance {
		slDist = minSLDistance
	}
	minTPDist := atr * tpATRMultiple
	if floor := entryPrice * minTPPercent; minTPDist < floor {
		minTPDist = floor
	}

	if side == engine.SideLong {
		if sl <= 0 || sl >= entryPrice {
			sl = entryPrice - slDist
		}
		if tp <= 0 || tp <= entryPrice || (tp-entryPrice) < minRiskReward*(entryPrice-sl) {
			dist := (entryPrice - sl) * tpSLMultiple
			if dist < minTPDist {
				dist = minTPDist
			}
			tp = entryPrice + dist
		}
	} else {
		if sl <= 0 || sl <= entryPrice {
			sl = entryPrice + slDist
		}
		if tp <= 0 || tp >= entryPrice || (entryPrice-tp) < minRiskReward*(sl-entryPrice) {
			dist := (sl - entryPrice) * tpSLMultiple
			if dist < minTPDist {
				dist = minTPDist
			}
			tp = entryPrice - dist
		}
	}

	return tp, sl
}

// ValidateTriggers checks that TP and SL sit on the economically correct
// side of the entry for the direction.
func ValidateTriggers(side engine.Side, entryPrice, tp, sl float64) error {
	if side == engine.SideLong {
		if tp <= entryPrice || sl >= entryPrice {
			return ErrInvalidTriggers
		}
		return nil
	}
	if tp >= entryPrice || sl <= entryPrice {
		return ErrInvalidTriggers
	}
	return nil
}
