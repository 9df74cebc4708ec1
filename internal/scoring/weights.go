package scoring

import (
	"errors"
	"fmt"
	"math"

	"github.com/rwa-platform/channel-service/internal/model"
)

// Weights are the factor weights of the final score. They must sum to 1.
type Weights struct {
	Fee            float64
	Availability   float64
	UserExperience float64
	Security       float64
	Liquidity      float64
}

// DefaultWeights returns the built-in weights.
func DefaultWeights() Weights {
	return Weights{
		Fee:            0.30,
		Availability:   0.25,
		UserExperience: 0.20,
		Security:       0.15,
		Liquidity:      0.10,
	}
}

func (w Weights) parts() [5]float64 {
	return [5]float64{w.Fee, w.Availability, w.UserExperience, w.Security, w.Liquidity}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	sum := 0.0
	for _, p := range w.parts() {
		sum += p
	}
	return sum
}

// Validate rejects negative weights and weights that do not sum to 1.
func (w Weights) Validate() error {
	for _, p := range w.parts() {
		if p < 0 {
			return errors.New("weights must be >= 0")
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("weights must sum to 1, got %v", sum)
	}
	return nil
}

// Normalize scales the weights so they sum to 1. Zero weights are returned
// unchanged.
func (w Weights) Normalize() Weights {
	sum := w.Sum()
	if sum == 0 {
		return w
	}
	return Weights{
		Fee:            w.Fee / sum,
		Availability:   w.Availability / sum,
		UserExperience: w.UserExperience / sum,
		Security:       w.Security / sum,
		Liquidity:      w.Liquidity / sum,
	}
}

// Apply combines sub-scores into a final score clamped to [0,1].
func (w Weights) Apply(s model.SubScores) float64 {
	total := s.Fee*w.Fee +
		s.Availability*w.Availability +
		s.UserExperience*w.UserExperience +
		s.Security*w.Security +
		s.Liquidity*w.Liquidity
	return clamp01(total)
}

// LiquidityTable maps a channel type to its liquidity sub-score.
type LiquidityTable struct {
	Scores  map[string]float64
	Default float64
}

// DefaultLiquidityTable returns the built-in table.
func DefaultLiquidityTable() LiquidityTable {
	return LiquidityTable{
		Scores: map[string]float64{
			model.ChannelTypeExchange: 0.9,
			model.ChannelTypeBroker:   0.7,
			model.ChannelTypeDEX:      0.6,
		},
		Default: 0.5,
	}
}

// Lookup returns the score for channelType, or Default when it is not listed.
func (t LiquidityTable) Lookup(channelType string) float64 {
	if s, ok := t.Scores[channelType]; ok {
		return s
	}
	return t.Default
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
