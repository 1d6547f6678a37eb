// Package network holds the parameter set of the referral model and the
// sub-engines bound to it: social proof, network value and churn reduction.
//
// Every engine is an immutable value built from one Config snapshot. Swapping
// configuration means building new engines; handles obtained earlier keep
// answering with the configuration they were built from.
package network

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid network config")

// DecisionMode selects how a referral probability becomes a yes/no decision.
type DecisionMode string

const (
	// DecisionBernoulli draws against the probability.
	DecisionBernoulli DecisionMode = "bernoulli"
	// DecisionThreshold compares the probability with DecisionThreshold.
	DecisionThreshold DecisionMode = "threshold"
)

// Config is the validated parameter set shared read-only by all engines.
type Config struct {
	// BaseReferralProbability is the chance a persona exactly at the delight
	// threshold refers someone. Range: 0.0 to 1.0
	BaseReferralProbability float64 `json:"base_referral_probability" yaml:"base_referral_probability" toml:"base_referral_probability"`

	// BaseAcceptanceRate is the invitation acceptance rate with no social proof.
	// Range: 0.0 to 1.0
	BaseAcceptanceRate float64 `json:"base_acceptance_rate" yaml:"base_acceptance_rate" toml:"base_acceptance_rate"`

	// DelightThreshold is the delight level at which referrals become likely.
	// Range: 0.0 to 1.0
	DelightThreshold float64 `json:"delight_threshold" yaml:"delight_threshold" toml:"delight_threshold"`

	// SocialProofMultiplier is the acceptance multiplier at full saturation
	// (10^5 users). Must be >= 1.
	SocialProofMultiplier float64 `json:"social_proof_multiplier" yaml:"social_proof_multiplier" toml:"social_proof_multiplier"`

	// DailyChurnRate is the fraction of users lost per day. Range: 0.0 to 1.0
	DailyChurnRate float64 `json:"daily_churn_rate" yaml:"daily_churn_rate" toml:"daily_churn_rate"`

	// AvgTimeToFirstReferral is the mean delay in days between delight and
	// the first referral. Must be > 0.
	AvgTimeToFirstReferral float64 `json:"avg_time_to_first_referral" yaml:"avg_time_to_first_referral" toml:"avg_time_to_first_referral"`

	// TimeToReferralStdDev is the standard deviation of that delay in days.
	// Must be > 0.
	TimeToReferralStdDev float64 `json:"time_to_referral_std_dev" yaml:"time_to_referral_std_dev" toml:"time_to_referral_std_dev"`

	// EnableNetworkEffects turns the social proof curve on or off.
	EnableNetworkEffects bool `json:"enable_network_effects" yaml:"enable_network_effects" toml:"enable_network_effects"`

	// ReferralTriggerBoost multiplies the referral probability when the
	// triggering action matches one of the persona's referral triggers.
	ReferralTriggerBoost float64 `json:"referral_trigger_boost" yaml:"referral_trigger_boost" toml:"referral_trigger_boost"`

	// DecisionMode is "bernoulli" (default) or "threshold".
	DecisionMode DecisionMode `json:"decision_mode" yaml:"decision_mode" toml:"decision_mode"`

	// DecisionThreshold is the cut-off used in threshold mode. Range: 0.0 to 1.0
	DecisionThreshold float64 `json:"decision_threshold" yaml:"decision_threshold" toml:"decision_threshold"`

	// AvgInvitationsPerReferral is the mean number of invitations a referring
	// persona sends.
	AvgInvitationsPerReferral float64 `json:"avg_invitations_per_referral" yaml:"avg_invitations_per_referral" toml:"avg_invitations_per_referral"`

	// MaxInvitationsPerReferral caps invitations per referral decision.
	MaxInvitationsPerReferral int `json:"max_invitations_per_referral" yaml:"max_invitations_per_referral" toml:"max_invitations_per_referral"`

	// ProjectionReferralRate is the daily referral rate used when projecting
	// growth from a simulated graph. Range: 0.0 to 1.0
	ProjectionReferralRate float64 `json:"projection_referral_rate" yaml:"projection_referral_rate" toml:"projection_referral_rate"`

	// ValuePerConnection is the value assigned to one pairwise connection.
	ValuePerConnection float64 `json:"value_per_connection" yaml:"value_per_connection" toml:"value_per_connection"`

	// MaxChurnReduction caps how much network ties can reduce churn.
	// Range: 0.0 to 1.0
	MaxChurnReduction float64 `json:"max_churn_reduction" yaml:"max_churn_reduction" toml:"max_churn_reduction"`

	// SyntheticDelightDecay scales a referrer's delight onto the synthetic
	// persona it brought in. Range: 0.0 to 1.0
	SyntheticDelightDecay float64 `json:"synthetic_delight_decay" yaml:"synthetic_delight_decay" toml:"synthetic_delight_decay"`

	// SyntheticDelightJitter is the half-width of the uniform noise added to
	// synthetic delight. Range: 0.0 to 1.0
	SyntheticDelightJitter float64 `json:"synthetic_delight_jitter" yaml:"synthetic_delight_jitter" toml:"synthetic_delight_jitter"`

	// Channels are the invitation channels an accepted referral may travel on.
	Channels []string `json:"channels" yaml:"channels" toml:"channels"`
}

// DefaultConfig returns the default referral model parameters.
func DefaultConfig() Config {
	return Config{
		BaseReferralProbability:   0.10,
		BaseAcceptanceRate:        0.25,
		DelightThreshold:          0.70,
		SocialProofMultiplier:     2.0,
		DailyChurnRate:            0.02,
		AvgTimeToFirstReferral:    7,
		TimeToReferralStdDev:      3,
		EnableNetworkEffects:      true,
		ReferralTriggerBoost:      1.5,
		DecisionMode:              DecisionBernoulli,
		DecisionThreshold:         0.5,
		AvgInvitationsPerReferral: 3,
		MaxInvitationsPerReferral: 10,
		ProjectionReferralRate:    0.10,
		ValuePerConnection:        0.01,
		MaxChurnReduction:         0.5,
		SyntheticDelightDecay:     0.85,
		SyntheticDelightJitter:    0.10,
		Channels:                  []string{"email", "direct_link", "social", "in_app"},
	}
}

// Validate checks every field and reports all violations at once.
// The returned error wraps ErrInvalidConfig.
func (c Config) Validate() error {
	var problems []string

	unit := func(name string, v float64) {
		if math.IsNaN(v) || v < 0 || v > 1 {
			problems = append(problems, fmt.Sprintf("%s must be between 0 and 1, got %v", name, v))
		}
	}
	positive := func(name string, v float64) {
		if math.IsNaN(v) || v <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive, got %v", name, v))
		}
	}
	atLeastOne := func(name string, v float64) {
		if math.IsNaN(v) || v < 1 {
			problems = append(problems, fmt.Sprintf("%s must be >= 1, got %v", name, v))
		}
	}

	unit("base_referral_probability", c.BaseReferralProbability)
	unit("base_acceptance_rate", c.BaseAcceptanceRate)
	unit("delight_threshold", c.DelightThreshold)
	unit("daily_churn_rate", c.DailyChurnRate)
	unit("decision_threshold", c.DecisionThreshold)
	unit("projection_referral_rate", c.ProjectionReferralRate)
	unit("max_churn_reduction", c.MaxChurnReduction)
	unit("synthetic_delight_decay", c.SyntheticDelightDecay)
	unit("synthetic_delight_jitter", c.SyntheticDelightJitter)

	atLeastOne("social_proof_multiplier", c.SocialProofMultiplier)
	atLeastOne("referral_trigger_boost", c.ReferralTriggerBoost)

	positive("avg_time_to_first_referral", c.AvgTimeToFirstReferral)
	positive("time_to_referral_std_dev", c.TimeToReferralStdDev)
	positive("avg_invitations_per_referral", c.AvgInvitationsPerReferral)

	if c.MaxInvitationsPerReferral < 1 {
		problems = append(problems, fmt.Sprintf("max_invitations_per_referral must be >= 1, got %d", c.MaxInvitationsPerReferral))
	}
	if math.IsNaN(c.ValuePerConnection) || c.ValuePerConnection < 0 {
		problems = append(problems, fmt.Sprintf("value_per_connection must be non-negative, got %v", c.ValuePerConnection))
	}

	switch c.DecisionMode {
	case DecisionBernoulli, DecisionThreshold:
	default:
		problems = append(problems, fmt.Sprintf("invalid decision_mode: %q (valid: bernoulli, threshold)", c.DecisionMode))
	}

	if len(c.Channels) == 0 {
		problems = append(problems, "channels must not be empty")
	}
	for i, ch := range c.Channels {
		if strings.TrimSpace(ch) == "" {
			problems = append(problems, fmt.Sprintf("channels[%d] is blank", i))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	out := c
	out.Channels = append([]string(nil), c.Channels...)
	return out
}

// ConfigPatch is a partial update. Nil fields leave the current value alone.
type ConfigPatch struct {
	BaseReferralProbability   *float64      `json:"base_referral_probability,omitempty" yaml:"base_referral_probability,omitempty"`
	BaseAcceptanceRate        *float64      `json:"base_acceptance_rate,omitempty" yaml:"base_acceptance_rate,omitempty"`
	DelightThreshold          *float64      `json:"delight_threshold,omitempty" yaml:"delight_threshold,omitempty"`
	SocialProofMultiplier     *float64      `json:"social_proof_multiplier,omitempty" yaml:"social_proof_multiplier,omitempty"`
	DailyChurnRate            *float64      `json:"daily_churn_rate,omitempty" yaml:"daily_churn_rate,omitempty"`
	AvgTimeToFirstReferral    *float64      `json:"avg_time_to_first_referral,omitempty" yaml:"avg_time_to_first_referral,omitempty"`
	TimeToReferralStdDev      *float64      `json:"time_to_referral_std_dev,omitempty" yaml:"time_to_referral_std_dev,omitempty"`
	EnableNetworkEffects      *bool         `json:"enable_network_effects,omitempty" yaml:"enable_network_effects,omitempty"`
	ReferralTriggerBoost      *float64      `json:"referral_trigger_boost,omitempty" yaml:"referral_trigger_boost,omitempty"`
	DecisionMode              *DecisionMode `json:"decision_mode,omitempty" yaml:"decision_mode,omitempty"`
	DecisionThreshold         *float64      `json:"decision_threshold,omitempty" yaml:"decision_threshold,omitempty"`
	AvgInvitationsPerReferral *float64      `json:"avg_invitations_per_referral,omitempty" yaml:"avg_invitations_per_referral,omitempty"`
	MaxInvitationsPerReferral *int          `json:"max_invitations_per_referral,omitempty" yaml:"max_invitations_per_referral,omitempty"`
	ProjectionReferralRate    *float64      `json:"projection_referral_rate,omitempty" yaml:"projection_referral_rate,omitempty"`
	ValuePerConnection        *float64      `json:"value_per_connection,omitempty" yaml:"value_per_connection,omitempty"`
	MaxChurnReduction         *float64      `json:"max_churn_reduction,omitempty" yaml:"max_churn_reduction,omitempty"`
	SyntheticDelightDecay     *float64      `json:"synthetic_delight_decay,omitempty" yaml:"synthetic_delight_decay,omitempty"`
	SyntheticDelightJitter    *float64      `json:"synthetic_delight_jitter,omitempty" yaml:"synthetic_delight_jitter,omitempty"`
	Channels                  []string      `json:"channels,omitempty" yaml:"channels,omitempty"`
}

// Apply returns a copy of c with the non-nil patch fields applied.
// The result is not validated.
func (c Config) Apply(p ConfigPatch) Config {
	out := c.Clone()
	setF := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setF(&out.BaseReferralProbability, p.BaseReferralProbability)
	setF(&out.BaseAcceptanceRate, p.BaseAcceptanceRate)
	setF(&out.DelightThreshold, p.DelightThreshold)
	setF(&out.SocialProofMultiplier, p.SocialProofMultiplier)
	setF(&out.DailyChurnRate, p.DailyChurnRate)
	setF(&out.AvgTimeToFirstReferral, p.AvgTimeToFirstReferral)
	setF(&out.TimeToReferralStdDev, p.TimeToReferralStdDev)
	setF(&out.ReferralTriggerBoost, p.ReferralTriggerBoost)
	setF(&out.DecisionThreshold, p.DecisionThreshold)
	setF(&out.AvgInvitationsPerReferral, p.AvgInvitationsPerReferral)
	setF(&out.ProjectionReferralRate, p.ProjectionReferralRate)
	setF(&out.ValuePerConnection, p.ValuePerConnection)
	setF(&out.MaxChurnReduction, p.MaxChurnReduction)
	setF(&out.SyntheticDelightDecay, p.SyntheticDelightDecay)
	setF(&out.SyntheticDelightJitter, p.SyntheticDelightJitter)

	if p.EnableNetworkEffects != nil {
		out.EnableNetworkEffects = *p.EnableNetworkEffects
	}
	if p.DecisionMode != nil {
		out.DecisionMode = *p.DecisionMode
	}
	if p.MaxInvitationsPerReferral != nil {
		out.MaxInvitationsPerReferral = *p.MaxInvitationsPerReferral
	}
	if p.Channels != nil {
		out.Channels = append([]string(nil), p.Channels...)
	}
	return out
}
