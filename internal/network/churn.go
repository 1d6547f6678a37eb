package network

import "math"

const (
	// churnReductionPerConnection is the churn reduction granted per direct
	// referral tie.
	churnReductionPerConnection = 0.05

	// churnReductionSocialProof is the churn reduction at full social proof
	// saturation.
	churnReductionSocialProof = 0.1
)

// ChurnReduction models how referral ties and network size make users
// less likely to leave.
type ChurnReduction struct {
	config Config
}

// NewChurnReduction binds a churn model to a snapshot of cfg.
func NewChurnReduction(cfg Config) *ChurnReduction {
	return &ChurnReduction{config: cfg.Clone()}
}

// Config returns the configuration the model was built with.
func (c *ChurnReduction) Config() Config {
	return c.config.Clone()
}

// Reduction returns the fractional churn reduction in [0, MaxChurnReduction]
// for a user with the given number of referral connections in a network of
// networkSize users. Connections may be fractional (an average).
func (c *ChurnReduction) Reduction(connections float64, networkSize int) float64 {
	if connections < 0 || math.IsNaN(connections) {
		connections = 0
	}
	r := churnReductionPerConnection * connections
	if c.config.EnableNetworkEffects && networkSize > 0 {
		r += churnReductionSocialProof * SocialProofFactor(networkSize)
	}
	return math.Min(c.config.MaxChurnReduction, r)
}

// AdjustedChurnRate returns DailyChurnRate scaled down by Reduction.
func (c *ChurnReduction) AdjustedChurnRate(connections float64, networkSize int) float64 {
	return c.config.DailyChurnRate * (1 - c.Reduction(connections, networkSize))
}
