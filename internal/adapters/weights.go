package adapters

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
)

// weightTolerance is how far an adapter's reported weight sum may
// drift from 1.0 before it's logged (§4.5: "weights SHOULD sum to
// approximately 1.0, with a tolerance logged when they do not").
const weightTolerance = 0.02

// CheckWeightSum logs when an adapter's raw holdings don't sum close
// to 100%, mirroring the source-sum sanity check the wider ecosystem
// runs before trusting a fund's disclosed weights.
func CheckWeightSum(holdings []RawHolding, etfISIN string, log zerolog.Logger) {
	sum := sumWeights(holdings)
	if math.Abs(sum-1.0) > weightTolerance {
		log.Warn().Str("isin", etfISIN).Float64("weight_sum", sum).
			Msg("etf holdings source data does not sum to ~100%")
	}
}

// sumWeights uses gonum's vectorized Sum rather than a hand-rolled
// accumulator loop, matching the aggregator's use of the same package
// for total_exposure grouping (§4.7).
func sumWeights(holdings []RawHolding) float64 {
	weights := make([]float64, 0, len(holdings))
	for _, h := range holdings {
		if h.Weight > 0 {
			weights = append(weights, h.Weight)
		}
	}
	return floats.Sum(weights)
}
