package model

import (
	"math"
	"sort"
)

// TouchWeight is one touchpoint's share of a conversion's credit under
// the selected attribution model.
type TouchWeight struct {
	Touch  Touchpoint
	Weight float64
}

// ApplyAttribution maps a conversion's ordered touchpoint path to
// per-touch credit weights. The path excludes the conversion touch
// itself. Touches outside the lookback window relative to the
// conversion time carry no credit. Weights of a non-empty result always
// sum to 1.
func ApplyAttribution(method string, path []Touchpoint, conversionTime int64,
	lookbackPeriod int64, halfLifeHours float64) []TouchWeight {

	interactions := touchesWithinLookback(path, conversionTime, lookbackPeriod)

	switch method {
	case AttributionMethodFirstTouch:
		return getFirstTouch(interactions)
	case AttributionMethodLastTouch:
		return getLastTouch(interactions)
	case AttributionMethodLinear:
		return getLinearTouch(interactions)
	case AttributionMethodTimeDecay:
		return getTimeDecay(interactions, conversionTime, halfLifeHours)
	case AttributionMethodPositionBased:
		return getPositionBased(interactions)
	}
	return []TouchWeight{}
}

// touchesWithinLookback filters to touches at or before the conversion
// within the lookback period, sorted ascending by timestamp with the
// insertion sequence as tie breaker.
func touchesWithinLookback(path []Touchpoint, conversionTime, lookbackPeriod int64) []Touchpoint {
	interactions := make([]Touchpoint, 0, len(path))
	for _, touch := range path {
		if isTouchWithinLookback(touch.Timestamp, conversionTime, lookbackPeriod) {
			interactions = append(interactions, touch)
		}
	}
	sort.SliceStable(interactions, func(i, j int) bool {
		if interactions[i].Timestamp == interactions[j].Timestamp {
			return interactions[i].Seq < interactions[j].Seq
		}
		return interactions[i].Timestamp < interactions[j].Timestamp
	})
	return interactions
}

// isTouchWithinLookback checks if the touch happened at or before the
// conversion and within the lookback period.
func isTouchWithinLookback(touchTime, conversionTime, lookbackPeriod int64) bool {
	if conversionTime >= touchTime {
		if lookbackPeriod <= 0 || (conversionTime-touchTime) <= lookbackPeriod {
			return true
		}
	}
	return false
}

// returns the earliest touch with full weight.
func getFirstTouch(interactions []Touchpoint) []TouchWeight {
	if len(interactions) == 0 {
		return []TouchWeight{}
	}
	return []TouchWeight{{Touch: interactions[0], Weight: 1}}
}

// returns the latest touch with full weight.
func getLastTouch(interactions []Touchpoint) []TouchWeight {
	if len(interactions) == 0 {
		return []TouchWeight{}
	}
	return []TouchWeight{{Touch: interactions[len(interactions)-1], Weight: 1}}
}

// returns weight 1/n for each of the n touches.
func getLinearTouch(interactions []Touchpoint) []TouchWeight {
	keys := make([]TouchWeight, 0, len(interactions))
	for _, touch := range interactions {
		keys = append(keys, TouchWeight{Touch: touch})
	}
	for i := range keys {
		keys[i].Weight = 1 / float64(len(keys))
	}
	return keys
}

// returns weights proportional to 2^(-Δt/halfLife), normalized to sum
// to 1. If touchpoint x1 is one half-life before touchpoint x2 and x2
// receives credit y, x1 receives y/2.
func getTimeDecay(interactions []Touchpoint, conversionTime int64, halfLifeHours float64) []TouchWeight {
	if halfLifeHours <= 0 {
		halfLifeHours = DefaultTimeDecayHalfLifeHours
	}
	keys := make([]TouchWeight, 0, len(interactions))
	totalWeight := 0.0
	for _, touch := range interactions {
		weight := calculateWeightForTimeDecay(conversionTime, touch.Timestamp, halfLifeHours)
		totalWeight += weight
		keys = append(keys, TouchWeight{Touch: touch, Weight: weight})
	}
	for i := range keys {
		keys[i].Weight = keys[i].Weight / totalWeight
	}
	return keys
}

// U-shaped: 40% to the first touch, 40% to the last, remaining 20%
// split evenly across the middle. Degrades to 100% for a single touch
// and 50/50 for two.
func getPositionBased(interactions []Touchpoint) []TouchWeight {
	keys := make([]TouchWeight, 0, len(interactions))
	for _, touch := range interactions {
		keys = append(keys, TouchWeight{Touch: touch})
	}

	switch len(keys) {
	case 0:
	case 1:
		keys[0].Weight = float64(1)
	case 2:
		keys[0].Weight = float64(0.5)
		keys[1].Weight = float64(0.5)
	default:
		keys[0].Weight = float64(0.4)
		keys[len(keys)-1].Weight = float64(0.4)
		middleCredit := 0.2 / float64(len(keys)-2)
		for i := 1; i < len(keys)-1; i++ {
			keys[i].Weight = middleCredit
		}
	}
	return keys
}

// DefaultTimeDecayHalfLifeHours is the standard 7 day half-life.
const DefaultTimeDecayHalfLifeHours = 7 * 24.0

func calculateWeightForTimeDecay(conversionTime, interactionTime int64, halfLifeHours float64) float64 {
	hours := float64(conversionTime-interactionTime) / 3600.0
	return math.Pow(2, -hours/halfLifeHours)
}
