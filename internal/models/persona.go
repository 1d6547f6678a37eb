// Package models holds the persona profiles, telemetry events and trait
// categories that feed a simulation.
package models

import (
	"math"
	"time"
)

// PersonaProfile is a synthetic user produced by the persona generator.
// Trait fields are open strings at the boundary; use TechAdoptionCategory
// and CollaborationCategory to read them as closed sets.
type PersonaProfile struct {
	// Identity
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Traits
	TechAdoption       string `json:"tech_adoption,omitempty" yaml:"tech_adoption,omitempty"`
	CollaborationStyle string `json:"collaboration_style,omitempty" yaml:"collaboration_style,omitempty"`

	// ReferralTriggers are actions or contexts that make this persona
	// likely to tell others about the product (e.g. "shared dashboard").
	ReferralTriggers []string `json:"referral_triggers,omitempty" yaml:"referral_triggers,omitempty"`

	// DelightTriggers are moments that produce delight for this persona.
	DelightTriggers []string `json:"delight_triggers,omitempty" yaml:"delight_triggers,omitempty"`

	// Attributes holds any generator fields the engine does not interpret.
	Attributes map[string]interface{} `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// TechAdoptionCategory parses the persona's tech adoption trait.
func (p PersonaProfile) TechAdoptionCategory() TechAdoption {
	return ParseTechAdoption(p.TechAdoption)
}

// CollaborationCategory parses the persona's collaboration style trait.
func (p PersonaProfile) CollaborationCategory() CollaborationStyle {
	return ParseCollaborationStyle(p.CollaborationStyle)
}

// EmotionalState is the emotional reading attached to a telemetry event.
// Every dimension is optional; a nil pointer means the recorder had no value.
type EmotionalState struct {
	Delight     *float64 `json:"delight,omitempty" yaml:"delight,omitempty"`
	Frustration *float64 `json:"frustration,omitempty" yaml:"frustration,omitempty"`
	Confusion   *float64 `json:"confusion,omitempty" yaml:"confusion,omitempty"`
}

// TelemetryEvent is one recorded interaction of a persona with the product.
type TelemetryEvent struct {
	PersonaID      string                 `json:"persona_id" yaml:"persona_id"`
	Action         string                 `json:"action" yaml:"action"`
	EmotionalState EmotionalState         `json:"emotional_state" yaml:"emotional_state"`
	Timestamp      time.Time              `json:"timestamp" yaml:"timestamp"`
	Context        map[string]interface{} `json:"context,omitempty" yaml:"context,omitempty"`
}

// DelightValue returns the event's delight reading clamped to [0, 1].
// ok is false when the event carries no usable numeric delight.
func (e TelemetryEvent) DelightValue() (value float64, ok bool) {
	d := e.EmotionalState.Delight
	if d == nil || math.IsNaN(*d) || math.IsInf(*d, 0) {
		return 0, false
	}
	return math.Max(0, math.Min(1, *d)), true
}

// ContextString returns a string-valued context field, or "" if absent.
func (e TelemetryEvent) ContextString(key string) string {
	if e.Context == nil {
		return ""
	}
	if s, ok := e.Context[key].(string); ok {
		return s
	}
	return ""
}

// Float64Ptr returns a pointer to v. Handy for building emotional states.
func Float64Ptr(v float64) *float64 {
	return &v
}
