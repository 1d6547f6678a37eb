package mcp

import (
	"github.com/nvandessel/viralsim/internal/growth"
	"github.com/nvandessel/viralsim/internal/models"
	"github.com/nvandessel/viralsim/internal/network"
	"github.com/nvandessel/viralsim/internal/ranking"
	"github.com/nvandessel/viralsim/internal/service"
	"github.com/nvandessel/viralsim/internal/simulation"
)

// SimulateInput defines the input for the viralsim_simulate tool.
type SimulateInput struct {
	Personas       []models.PersonaProfile `json:"personas" jsonschema:"Persona profiles to seed as organic users"`
	Events         []models.TelemetryEvent `json:"events,omitempty" jsonschema:"Telemetry events with emotional state for the personas"`
	Iterations     int                     `json:"iterations,omitempty" jsonschema:"Referral rounds to run (default: configured iterations)"`
	Seed           *int64                  `json:"seed,omitempty" jsonschema:"Random seed for a reproducible run"`
	Batches        int                     `json:"batches,omitempty" jsonschema:"Split personas into this many batches run concurrently"`
	PersonaPolicy  string                  `json:"persona_policy,omitempty" jsonschema:"Synthetic persona traits: 'inherit' or 'neutral'"`
	ProjectionDays int                     `json:"projection_days,omitempty" jsonschema:"Also project growth for this many days"`
	Format         string                  `json:"format,omitempty" jsonschema:"Graph rendering: 'none' (default), 'dot' or 'json'"`
	Export         string                  `json:"export,omitempty" jsonschema:"Also write the graph to a file: 'snapshot', 'sqlite' or 'arrow'"`
	ExportPath     string                  `json:"export_path,omitempty" jsonschema:"File name for the export inside the server's export directory (default: run id plus extension)"`
}

// SimulateOutput defines the output for the viralsim_simulate tool.
type SimulateOutput struct {
	Run         simulation.RunStats  `json:"run" jsonschema:"Run statistics"`
	Metrics     simulation.Metrics   `json:"metrics" jsonschema:"Graph metrics including k-factor and depth"`
	Projection  *growth.Projection   `json:"projection,omitempty" jsonschema:"Growth projection when projection_days was set"`
	Influencers []ranking.Influencer `json:"influencers,omitempty" jsonschema:"Users whose referrals reached the most people"`
	Chains      [][]string           `json:"chains,omitempty" jsonschema:"Longest referral chains (up to 10)"`
	Graph       interface{}          `json:"graph,omitempty" jsonschema:"Rendered graph: DOT string or JSON object"`
	Exported    string               `json:"exported,omitempty" jsonschema:"Path of the written export file"`
	Message     string               `json:"message" jsonschema:"Human-readable summary"`
}

// ProjectGrowthInput defines the input for the viralsim_project_growth tool.
type ProjectGrowthInput struct {
	StartingUsers float64  `json:"starting_users" jsonschema:"Population on day 0"`
	KFactor       float64  `json:"k_factor" jsonschema:"Viral coefficient (referrals per user)"`
	Days          int      `json:"days,omitempty" jsonschema:"Forecast horizon in days (default: configured days)"`
	ReferralRate  *float64 `json:"referral_rate,omitempty" jsonschema:"Share of users referring per day (default 0.10)"`
	ChurnRate     *float64 `json:"churn_rate,omitempty" jsonschema:"Daily churn rate (default 0.02)"`
}

// ProjectGrowthOutput defines the output for the viralsim_project_growth tool.
type ProjectGrowthOutput struct {
	GrowthType             growth.Type        `json:"growth_type" jsonschema:"exponential, linear, plateau or declining"`
	FinalUsers             float64            `json:"final_users" jsonschema:"Population on the last day"`
	PeakUsers              float64            `json:"peak_users" jsonschema:"Highest population over the horizon"`
	AverageDailyGrowthRate float64            `json:"average_daily_growth_rate" jsonschema:"Mean day-over-day relative growth"`
	DataPoints             []growth.DataPoint `json:"data_points" jsonschema:"One point per day"`
}

// SocialProofInput defines the input for the viralsim_social_proof tool.
type SocialProofInput struct {
	NetworkSize int     `json:"network_size" jsonschema:"Current number of users"`
	Connections float64 `json:"connections,omitempty" jsonschema:"Average referral connections per user for churn reduction"`
	CohortSize  int     `json:"cohort_size,omitempty" jsonschema:"Estimate conversions for this many invitations"`
	TargetRate  float64 `json:"target_rate,omitempty" jsonschema:"Report the network size needed to reach this acceptance rate"`
}

// SocialProofOutput defines the output for the viralsim_social_proof tool.
type SocialProofOutput struct {
	network.SocialProofResult
	CredibilityBoost     float64                 `json:"credibility_boost" jsonschema:"Credibility multiplier once the network passes 100 users"`
	NetworkValue         network.NetworkValue    `json:"network_value" jsonschema:"Metcalfe and Odlyzko network value"`
	MarginalValue        float64                 `json:"marginal_value" jsonschema:"Metcalfe value the next user adds"`
	AdjustedChurnRate    float64                 `json:"adjusted_churn_rate" jsonschema:"Daily churn after network-effect reduction"`
	EstimatedConversions int                     `json:"estimated_conversions,omitempty" jsonschema:"Expected accepted invitations out of cohort_size"`
	Target               *service.TargetEstimate `json:"target,omitempty" jsonschema:"Network size needed for target_rate"`
}

// ConfigInput defines the input for the viralsim_config tool. An empty
// patch only reads the config.
type ConfigInput struct {
	Patch network.ConfigPatch `json:"patch,omitempty" jsonschema:"Fields to change; omitted fields keep their value"`
}

// ConfigOutput defines the output for the viralsim_config tool.
type ConfigOutput struct {
	Config  network.Config `json:"config" jsonschema:"Network config after the update"`
	Updated bool           `json:"updated" jsonschema:"Whether the patch changed anything"`
}
