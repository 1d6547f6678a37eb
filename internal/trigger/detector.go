// Package trigger decides whether a persona refers others, based on the
// delight recorded in its telemetry and its traits.
package trigger

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/nvandessel/viralsim/internal/models"
	"github.com/nvandessel/viralsim/internal/network"
)

// TechAdoptionMultiplier returns the probability multiplier for an adoption
// category. Unknown categories are neutral.
func TechAdoptionMultiplier(t models.TechAdoption) float64 {
	switch t {
	case models.TechAdoptionInnovator:
		return 1.5
	case models.TechAdoptionEarlyAdopter:
		return 1.3
	case models.TechAdoptionLateMajority:
		return 0.8
	case models.TechAdoptionLaggard:
		return 0.6
	default:
		return 1.0
	}
}

// CollaborationMultiplier returns the probability multiplier for a
// collaboration style. Unknown styles are neutral.
func CollaborationMultiplier(c models.CollaborationStyle) float64 {
	switch c {
	case models.CollaborationCommunity:
		return 1.3
	case models.CollaborationCollaborative:
		return 1.2
	case models.CollaborationIndependent:
		return 0.85
	default:
		return 1.0
	}
}

// Decision is the outcome of evaluating one persona.
type Decision struct {
	PersonaID   string  `json:"persona_id"`
	ShouldRefer bool    `json:"should_refer"`
	Probability float64 `json:"probability"`

	// HasSignal is false when no event carried a usable delight reading.
	HasSignal bool    `json:"has_signal"`
	Delight   float64 `json:"delight"`

	// TriggerAction is the action of the event with the strongest delight.
	TriggerAction  string `json:"trigger_action,omitempty"`
	TriggerMatched bool   `json:"trigger_matched"`

	TechAdoption            models.TechAdoption       `json:"tech_adoption"`
	CollaborationStyle      models.CollaborationStyle `json:"collaboration_style"`
	TechMultiplier          float64                   `json:"tech_multiplier"`
	CollaborationMultiplier float64                   `json:"collaboration_multiplier"`

	// SliceStart is set by DetectBySlice.
	SliceStart time.Time `json:"slice_start,omitempty"`
}

// Detector evaluates referral decisions against one configuration snapshot.
type Detector struct {
	config network.Config
	rng    network.RandomSource
}

// NewDetector creates a detector. A nil rng uses the entropy source.
func NewDetector(cfg network.Config, rng network.RandomSource) *Detector {
	if rng == nil {
		rng = network.EntropySource()
	}
	return &Detector{config: cfg.Clone(), rng: rng}
}

// Evaluate computes the referral probability without drawing a decision.
func (d *Detector) Evaluate(persona models.PersonaProfile, events []models.TelemetryEvent) Decision {
	tech := persona.TechAdoptionCategory()
	collab := persona.CollaborationCategory()
	dec := Decision{
		PersonaID:               persona.ID,
		TechAdoption:            tech,
		CollaborationStyle:      collab,
		TechMultiplier:          TechAdoptionMultiplier(tech),
		CollaborationMultiplier: CollaborationMultiplier(collab),
	}

	best, ok := strongestDelight(events)
	if !ok {
		return dec
	}
	dec.HasSignal = true
	dec.Delight, _ = best.DelightValue()
	dec.TriggerAction = best.Action

	p := d.BaseProbability(dec.Delight)

	candidates := []string{best.Action}
	for _, e := range events {
		if s := e.ContextString("trigger"); s != "" {
			candidates = append(candidates, s)
		}
	}
	if matchesAny(persona.ReferralTriggers, candidates) {
		dec.TriggerMatched = true
		p *= d.config.ReferralTriggerBoost
	}

	p *= dec.TechMultiplier * dec.CollaborationMultiplier
	dec.Probability = clamp01(p)
	return dec
}

// Detect evaluates the persona and draws the referral decision.
func (d *Detector) Detect(persona models.PersonaProfile, events []models.TelemetryEvent) Decision {
	dec := d.Evaluate(persona, events)
	dec.ShouldRefer = d.decide(dec)
	return dec
}

// DetectBySlice groups events into consecutive windows of the given width
// and evaluates each window on its own, in time order. A non-positive slice
// evaluates all events as one window.
func (d *Detector) DetectBySlice(persona models.PersonaProfile, events []models.TelemetryEvent, slice time.Duration) []Decision {
	if slice <= 0 || len(events) == 0 {
		return []Decision{d.Detect(persona, events)}
	}

	windows := make(map[time.Time][]models.TelemetryEvent)
	for _, e := range events {
		start := e.Timestamp.Truncate(slice)
		windows[start] = append(windows[start], e)
	}
	starts := make([]time.Time, 0, len(windows))
	for s := range windows {
		starts = append(starts, s)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	out := make([]Decision, 0, len(starts))
	for _, s := range starts {
		dec := d.Detect(persona, windows[s])
		dec.SliceStart = s
		out = append(out, dec)
	}
	return out
}

// BaseProbability maps a delight reading onto the base referral
// probability. Below the threshold the probability falls off
// quadratically; above it rises linearly to three times the base.
func (d *Detector) BaseProbability(delight float64) float64 {
	base := d.config.BaseReferralProbability
	threshold := d.config.DelightThreshold
	if delight < threshold {
		r := delight / threshold
		return base * r * r
	}
	if threshold >= 1 {
		return base
	}
	return base * (1 + 2*(delight-threshold)/(1-threshold))
}

// InvitationCount returns how many invitations a referring persona sends.
// Zero when the decision is negative.
func (d *Detector) InvitationCount(dec Decision) int {
	if !dec.ShouldRefer {
		return 0
	}
	n := int(math.Round(d.config.AvgInvitationsPerReferral * (0.5 + dec.Probability)))
	if n < 1 {
		n = 1
	}
	if limit := d.config.MaxInvitationsPerReferral; n > limit {
		n = limit
	}
	return n
}

// ReferralDelay samples the days between a persona's delight and its
// referral from a normal distribution, floored at zero.
func (d *Detector) ReferralDelay() float64 {
	u1 := d.rng.Float64()
	u2 := d.rng.Float64()
	if u1 <= 0 {
		u1 = math.SmallestNonzeroFloat64
	}
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	days := d.config.AvgTimeToFirstReferral + z*d.config.TimeToReferralStdDev
	return math.Max(0, days)
}

// ReferralDelayDuration is ReferralDelay as a time.Duration.
func (d *Detector) ReferralDelayDuration() time.Duration {
	return time.Duration(d.ReferralDelay() * float64(24*time.Hour))
}

func (d *Detector) decide(dec Decision) bool {
	if !dec.HasSignal {
		return false
	}
	if d.config.DecisionMode == network.DecisionThreshold {
		return dec.Probability >= d.config.DecisionThreshold
	}
	return d.rng.Float64() < dec.Probability
}

// strongestDelight returns the event with the highest delight; ties go to
// the most recent event.
func strongestDelight(events []models.TelemetryEvent) (models.TelemetryEvent, bool) {
	var best models.TelemetryEvent
	bestVal := -1.0
	for _, e := range events {
		v, ok := e.DelightValue()
		if !ok {
			continue
		}
		if v > bestVal || (v == bestVal && e.Timestamp.After(best.Timestamp)) {
			best, bestVal = e, v
		}
	}
	return best, bestVal >= 0
}

func matchesAny(triggers, candidates []string) bool {
	for _, t := range triggers {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		for _, c := range candidates {
			c = strings.ToLower(strings.TrimSpace(c))
			if c == "" {
				continue
			}
			if strings.Contains(c, t) || strings.Contains(t, c) {
				return true
			}
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
