package adapters

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestCheckWeightSumWithinTolerance(t *testing.T) {
	holdings := []RawHolding{{Weight: 0.6}, {Weight: 0.39}}
	// Should not panic and should be a no-op observability check.
	CheckWeightSum(holdings, "IE00B4L5Y983", zerolog.Nop())
}

func TestSumWeightsIgnoresNonPositive(t *testing.T) {
	holdings := []RawHolding{{Weight: 0.5}, {Weight: -0.02}, {Weight: 0.3}}
	assert.InDelta(t, 0.8, sumWeights(holdings), 0.0001)
}
