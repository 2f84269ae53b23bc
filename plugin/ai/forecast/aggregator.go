package forecast

import (
	"math"
	"sort"
)

// minSpreadRatio is the narrowest half-width of a prediction range, relative to the forecast.
const minSpreadRatio = 0.10

// fallbackSpreadRatio is the half-width of the range around a fallback forecast.
const fallbackSpreadRatio = 0.20

// Aggregator turns a retrieval outcome into a forecast.
type Aggregator struct {
	fallbackConfidence float64
}

// NewAggregator creates an Aggregator reporting fallbackConfidence on fallback forecasts.
func NewAggregator(fallbackConfidence float64) *Aggregator {
	return &Aggregator{fallbackConfidence: clamp01(fallbackConfidence)}
}

// Aggregate forecasts covers. It has two terminal states: MethodWeightedAverage when
// matches are present, MethodFallback otherwise. baseline is the fallback covers and
// k the retrieval size used for the coverage term of the confidence.
func (a *Aggregator) Aggregate(outcome RetrievalOutcome, baseline float64, k int) Forecast {
	if outcome.Status != StatusOK || len(outcome.Matches) == 0 {
		return a.fallback(outcome.Status, baseline)
	}

	matches := canonicalOrder(outcome.Matches)
	if len(matches) == 0 {
		return a.fallback(StatusNoMatches, baseline)
	}
	n := float64(len(matches))

	var simSum, weighted, coversSum float64
	for _, m := range matches {
		simSum += m.Similarity
		weighted += m.Similarity * float64(m.Pattern.ObservedCovers)
		coversSum += float64(m.Pattern.ObservedCovers)
	}

	mean := coversSum / n
	predicted := mean
	if simSum > 0 {
		predicted = weighted / simSum
	}
	predicted = math.Max(predicted, 0)

	var variance, weightedVariance float64
	for _, m := range matches {
		c := float64(m.Pattern.ObservedCovers)
		variance += (c - mean) * (c - mean)
		weightedVariance += m.Similarity * (c - predicted) * (c - predicted)
	}
	variance /= n
	if simSum > 0 {
		weightedVariance /= simSum
	} else {
		weightedVariance = variance
	}

	cv := 0.0
	if mean > 0 {
		cv = math.Sqrt(variance) / mean
	}

	spread := math.Max(math.Sqrt(weightedVariance), predicted*minSpreadRatio)
	low, high := coversRange(predicted, spread)

	return Forecast{
		PredictedCovers: predicted,
		RangeLow:        low,
		RangeHigh:       high,
		Confidence:      Confidence(simSum/n, cv, len(matches), k),
		Method:          MethodWeightedAverage,
		Matches:         Rank(matches, len(matches), 0),
	}
}

func (a *Aggregator) fallback(status RetrievalStatus, baseline float64) Forecast {
	baseline = math.Max(baseline, 0)
	reason := ReasonNoSimilarHistory
	switch status {
	case StatusEncodingUnavailable:
		reason = ReasonEncodingUnavailable
	case StatusStoreUnavailable:
		reason = ReasonStoreUnavailable
	}
	low, high := coversRange(baseline, baseline*fallbackSpreadRatio)
	return Forecast{
		PredictedCovers: baseline,
		RangeLow:        low,
		RangeHigh:       high,
		Confidence:      a.fallbackConfidence,
		Method:          MethodFallback,
		FallbackReason:  reason,
	}
}

// Confidence combines mean similarity, dispersion of covers and coverage of K:
//
//	clamp(meanSim * 1/(1+cv) * (min(n,k)+k)/(2k), 0, 1)
//
// It is non-decreasing in meanSim and non-increasing in cv.
func Confidence(meanSim, cv float64, n, k int) float64 {
	if n <= 0 {
		return 0
	}
	if k <= 0 {
		k = n
	}
	if n > k {
		n = k
	}
	coverage := float64(n+k) / float64(2*k)
	if cv < 0 || math.IsNaN(cv) {
		cv = 0
	}
	return clamp01(clamp01(meanSim) / (1 + cv) * coverage)
}

// canonicalOrder sorts a copy of matches by id, similarity and covers so float sums
// do not depend on the order the store returned them in.
func canonicalOrder(matches []MatchedPattern) []MatchedPattern {
	out := make([]MatchedPattern, 0, len(matches))
	for _, m := range matches {
		if m.Pattern == nil {
			continue
		}
		m.Similarity = clamp01(m.Similarity)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Pattern.ID != b.Pattern.ID {
			return a.Pattern.ID < b.Pattern.ID
		}
		if a.Similarity != b.Similarity {
			return a.Similarity < b.Similarity
		}
		return a.Pattern.ObservedCovers < b.Pattern.ObservedCovers
	})
	return out
}

func coversRange(center, spread float64) (int, int) {
	low := math.Max(0, math.Round(center-spread))
	high := math.Max(low, math.Round(center+spread))
	return int(low), int(high)
}
