package network

import "math"

const (
	// MaxAdjustedRate caps any socially boosted conversion rate.
	MaxAdjustedRate = 0.95

	// SaturationExponent is log10 of the network size at which social proof
	// saturates (10^5 users).
	SaturationExponent = 5.0

	// DefaultCredibilityThreshold is the network size below which no
	// credibility boost applies.
	DefaultCredibilityThreshold = 100

	// MaxCredibilityBoost caps the credibility multiplier.
	MaxCredibilityBoost = 1.5
)

// SocialProofResult describes the conversion rate at a given network size.
type SocialProofResult struct {
	BaseRate     float64 `json:"base_rate"`
	AdjustedRate float64 `json:"adjusted_rate"`
	Multiplier   float64 `json:"multiplier"`
	NetworkSize  int     `json:"network_size"`
}

// SocialProofEngine turns network size into an invitation acceptance rate
// along a logarithmic, saturating curve.
type SocialProofEngine struct {
	config Config
}

// NewSocialProofEngine binds an engine to a snapshot of cfg.
func NewSocialProofEngine(cfg Config) *SocialProofEngine {
	return &SocialProofEngine{config: cfg.Clone()}
}

// Config returns the configuration the engine was built with.
func (e *SocialProofEngine) Config() Config {
	return e.config.Clone()
}

// SocialProofFactor returns the saturating factor in [0, 1] for a network
// size: log10(max(1, n)) / 5, capped at 1.
func SocialProofFactor(networkSize int) float64 {
	n := math.Max(1, float64(networkSize))
	return math.Min(1, math.Log10(n)/SaturationExponent)
}

// CalculateConversionRate returns the acceptance rate for the given network
// size. With effects disabled or an empty network the base rate is returned
// unchanged.
func (e *SocialProofEngine) CalculateConversionRate(networkSize int) SocialProofResult {
	base := e.config.BaseAcceptanceRate
	result := SocialProofResult{
		BaseRate:     base,
		AdjustedRate: base,
		Multiplier:   1,
		NetworkSize:  networkSize,
	}
	if !e.config.EnableNetworkEffects || networkSize <= 0 {
		return result
	}

	f := SocialProofFactor(networkSize)
	m := 1 + f*(e.config.SocialProofMultiplier-1)
	result.Multiplier = m

	// A base rate already above the cap is left alone so adjusted >= base holds.
	if base >= MaxAdjustedRate {
		return result
	}
	result.AdjustedRate = math.Min(MaxAdjustedRate, base*m)
	return result
}

// CalculateCredibilityBoost returns a multiplier in [1, 1.5] that grows
// once the network passes threshold. A threshold <= 0 uses the default.
func (e *SocialProofEngine) CalculateCredibilityBoost(networkSize, threshold int) float64 {
	if threshold <= 0 {
		threshold = DefaultCredibilityThreshold
	}
	if networkSize < threshold {
		return 1
	}
	excess := float64(networkSize-threshold) / float64(threshold)
	return math.Min(MaxCredibilityBoost, 1+0.2*math.Log10(1+excess))
}

// EstimateConversions returns floor(cohortSize * adjustedRate).
func (e *SocialProofEngine) EstimateConversions(cohortSize, networkSize int) int {
	if cohortSize <= 0 {
		return 0
	}
	rate := e.CalculateConversionRate(networkSize).AdjustedRate
	return int(math.Floor(float64(cohortSize) * rate))
}

// CalculateRequiredNetworkSize inverts the conversion curve: the smallest
// network size whose adjusted rate reaches targetRate. It returns 0 when the
// base rate already suffices and +Inf when no network size can reach it.
func (e *SocialProofEngine) CalculateRequiredNetworkSize(targetRate float64) float64 {
	base := e.config.BaseAcceptanceRate
	if targetRate <= base {
		return 0
	}
	if !e.config.EnableNetworkEffects || e.config.SocialProofMultiplier <= 1 || base <= 0 || targetRate > MaxAdjustedRate {
		return math.Inf(1)
	}

	f := (targetRate/base - 1) / (e.config.SocialProofMultiplier - 1)
	if f > 1 {
		return math.Inf(1)
	}
	return math.Ceil(math.Pow(10, f*SaturationExponent))
}
