package models

import "strings"

// TechAdoption is the persona's position on the technology adoption curve.
type TechAdoption string

const (
	TechAdoptionInnovator     TechAdoption = "innovator"
	TechAdoptionEarlyAdopter  TechAdoption = "early_adopter"
	TechAdoptionEarlyMajority TechAdoption = "early_majority"
	TechAdoptionLateMajority  TechAdoption = "late_majority"
	TechAdoptionLaggard       TechAdoption = "laggard"
	TechAdoptionUnknown       TechAdoption = "unknown"
)

var techAdoptionAliases = map[string]TechAdoption{
	"innovator":      TechAdoptionInnovator,
	"innovators":     TechAdoptionInnovator,
	"early_adopter":  TechAdoptionEarlyAdopter,
	"early_adopters": TechAdoptionEarlyAdopter,
	"early":          TechAdoptionEarlyAdopter,
	"early_majority": TechAdoptionEarlyMajority,
	"mainstream":     TechAdoptionEarlyMajority,
	"pragmatist":     TechAdoptionEarlyMajority,
	"late_majority":  TechAdoptionLateMajority,
	"conservative":   TechAdoptionLateMajority,
	"skeptic":        TechAdoptionLateMajority,
	"laggard":        TechAdoptionLaggard,
	"laggards":       TechAdoptionLaggard,
}

// ParseTechAdoption maps a free-form trait string onto the closed set.
// Unrecognized values yield TechAdoptionUnknown; it never fails.
func ParseTechAdoption(s string) TechAdoption {
	if t, ok := techAdoptionAliases[normalizeTrait(s)]; ok {
		return t
	}
	return TechAdoptionUnknown
}

// CollaborationStyle describes how a persona works with other people.
type CollaborationStyle string

const (
	CollaborationCommunity     CollaborationStyle = "community"
	CollaborationCollaborative CollaborationStyle = "collaborative"
	CollaborationHybrid        CollaborationStyle = "hybrid"
	CollaborationIndependent   CollaborationStyle = "independent"
	CollaborationUnknown       CollaborationStyle = "unknown"
)

var collaborationAliases = map[string]CollaborationStyle{
	"community":          CollaborationCommunity,
	"community_oriented": CollaborationCommunity,
	"community_driven":   CollaborationCommunity,
	"social":             CollaborationCommunity,
	"collaborative":      CollaborationCollaborative,
	"team":               CollaborationCollaborative,
	"team_oriented":      CollaborationCollaborative,
	"team_player":        CollaborationCollaborative,
	"hybrid":             CollaborationHybrid,
	"mixed":              CollaborationHybrid,
	"balanced":           CollaborationHybrid,
	"independent":        CollaborationIndependent,
	"solo":               CollaborationIndependent,
	"individual":         CollaborationIndependent,
}

// ParseCollaborationStyle maps a free-form trait string onto the closed set.
// Unrecognized values yield CollaborationUnknown; it never fails.
func ParseCollaborationStyle(s string) CollaborationStyle {
	if c, ok := collaborationAliases[normalizeTrait(s)]; ok {
		return c
	}
	return CollaborationUnknown
}

// normalizeTrait lowercases s and folds spaces and hyphens to underscores.
func normalizeTrait(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
