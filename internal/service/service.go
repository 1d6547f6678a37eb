// Package service runs simulations on behalf of the outer surfaces (HTTP
// API, MCP server and CLI). It owns the live network config; every request
// gets a private simulator built from it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/nvandessel/viralsim/internal/config"
	"github.com/nvandessel/viralsim/internal/dataset"
	"github.com/nvandessel/viralsim/internal/graph"
	"github.com/nvandessel/viralsim/internal/growth"
	"github.com/nvandessel/viralsim/internal/instrument"
	"github.com/nvandessel/viralsim/internal/logging"
	"github.com/nvandessel/viralsim/internal/models"
	"github.com/nvandessel/viralsim/internal/network"
	"github.com/nvandessel/viralsim/internal/ranking"
	"github.com/nvandessel/viralsim/internal/sanitize"
	"github.com/nvandessel/viralsim/internal/simulation"
)

// MaxInfluencers bounds the ranked referrers in a SimulateResponse.
const MaxInfluencers = 10

// ErrInvalidRequest marks errors caused by the caller's input.
var ErrInvalidRequest = errors.New("invalid request")

// SimulateRequest describes one simulation run.
type SimulateRequest struct {
	Personas []models.PersonaProfile `json:"personas"`
	Events   []models.TelemetryEvent `json:"events"`

	// Iterations overrides the configured round count when > 0.
	Iterations int `json:"iterations,omitempty"`

	// Seed makes the run reproducible.
	Seed *int64 `json:"seed,omitempty"`

	// Batches > 1 splits the personas and runs the batches concurrently.
	Batches int `json:"batches,omitempty"`

	// PersonaPolicy overrides the configured synthetic persona policy.
	PersonaPolicy string `json:"persona_policy,omitempty"`

	// ProjectionDays > 0 adds a growth projection from the result.
	ProjectionDays int `json:"projection_days,omitempty"`

	// IncludeGraph returns the full referral graph.
	IncludeGraph bool `json:"include_graph,omitempty"`
}

// SimulateResponse is the outcome of a simulation run.
type SimulateResponse struct {
	Run        simulation.RunStats `json:"run"`
	Metrics    simulation.Metrics  `json:"metrics"`
	Projection *growth.Projection  `json:"projection,omitempty"`

	// Influencers are the users who drove the most growth, by PageRank
	// over the referral graph.
	Influencers []ranking.Influencer `json:"influencers"`

	Graph *graph.Graph `json:"graph,omitempty"`
}

// ProjectRequest describes a growth projection.
type ProjectRequest struct {
	StartingUsers float64  `json:"starting_users"`
	KFactor       float64  `json:"k_factor"`
	Days          int      `json:"days,omitempty"`
	ReferralRate  *float64 `json:"referral_rate,omitempty"`
	ChurnRate     *float64 `json:"churn_rate,omitempty"`
}

// ProjectResponse is a projection with its summary figures.
type ProjectResponse struct {
	Projection             *growth.Projection `json:"projection"`
	FinalUsers             float64            `json:"final_users"`
	PeakUsers              float64            `json:"peak_users"`
	AverageDailyGrowthRate float64            `json:"average_daily_growth_rate"`
}

// SocialProofRequest asks for the network effects at one network size.
// CohortSize and TargetRate are optional; zero skips them.
type SocialProofRequest struct {
	NetworkSize int     `json:"network_size"`
	Connections float64 `json:"connections,omitempty"`
	CohortSize  int     `json:"cohort_size,omitempty"`
	TargetRate  float64 `json:"target_rate,omitempty"`
}

// SocialProofResponse answers a social proof query.
type SocialProofResponse struct {
	network.SocialProofResult
	CredibilityBoost     float64              `json:"credibility_boost"`
	NetworkValue         network.NetworkValue `json:"network_value"`
	MarginalValue        float64              `json:"marginal_value"`
	AdjustedChurnRate    float64              `json:"adjusted_churn_rate"`
	CohortSize           int                  `json:"cohort_size,omitempty"`
	EstimatedConversions int                  `json:"estimated_conversions,omitempty"`
	Target               *TargetEstimate      `json:"target,omitempty"`
}

// TargetEstimate is the network size needed for a target acceptance rate.
// RequiredNetworkSize is nil when no network size reaches the rate.
type TargetEstimate struct {
	Rate                float64  `json:"rate"`
	Reachable           bool     `json:"reachable"`
	RequiredNetworkSize *float64 `json:"required_network_size,omitempty"`
}

// Service runs simulations against a shared, hot-swappable config.
type Service struct {
	cfg       *config.AppConfig
	live      *simulation.Simulator
	recorder  *instrument.Recorder
	logger    *slog.Logger
	decisions *logging.DecisionLogger
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder sets the metrics recorder shared by all runs.
func WithRecorder(r *instrument.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDecisionLogger sets the referral decision trace.
func WithDecisionLogger(dl *logging.DecisionLogger) Option {
	return func(s *Service) { s.decisions = dl }
}

// New creates a service from cfg. cfg must be valid.
func New(cfg *config.AppConfig, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{cfg: cfg, logger: logging.Discard()}
	for _, opt := range opts {
		opt(s)
	}

	live, err := simulation.New(cfg.Network, simulation.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	s.live = live
	return s, nil
}

// Config returns the live network config.
func (s *Service) Config() network.Config {
	return s.live.Config()
}

// UpdateConfig applies patch to the live config. Runs already in flight
// keep the config they started with.
func (s *Service) UpdateConfig(patch network.ConfigPatch) (network.Config, error) {
	if err := s.live.UpdateConfig(patch); err != nil {
		return network.Config{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return s.live.Config(), nil
}

// Recorder returns the shared metrics recorder, which may be nil.
func (s *Service) Recorder() *instrument.Recorder {
	return s.recorder
}

// Simulate runs one simulation on a private simulator.
func (s *Service) Simulate(ctx context.Context, req SimulateRequest) (*SimulateResponse, error) {
	if limit := s.cfg.Server.MaxPersonas; limit > 0 && len(req.Personas) > limit {
		return nil, fmt.Errorf("%w: %d personas exceeds limit of %d", ErrInvalidRequest, len(req.Personas), limit)
	}
	if req.ProjectionDays < 0 {
		return nil, fmt.Errorf("%w: projection_days must be >= 0", ErrInvalidRequest)
	}

	opts := append(s.cfg.SimulationOptions(),
		simulation.WithLogger(s.logger),
		simulation.WithDecisionLogger(s.decisions),
		simulation.WithRecorder(s.recorder),
	)
	if req.Seed != nil {
		opts = append(opts, simulation.WithSeed(*req.Seed))
	}
	if req.PersonaPolicy != "" {
		policy, err := simulation.ParsePersonaPolicy(req.PersonaPolicy)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		opts = append(opts, simulation.WithPersonaPolicy(policy))
	}

	sim, err := simulation.New(s.live.Config(), opts...)
	if err != nil {
		return nil, err
	}

	iterations := s.cfg.Simulation.Iterations
	if req.Iterations > 0 {
		iterations = req.Iterations
	}

	personas := sanitize.Personas(req.Personas)

	var g *graph.Graph
	if req.Batches > 1 {
		ds := &dataset.Dataset{Personas: personas, Events: req.Events}
		g, err = sim.RunBatches(ctx, ds.Batches(req.Batches), iterations)
	} else {
		g, err = sim.RunSimulation(personas, req.Events, iterations)
	}
	if err != nil {
		return nil, err
	}

	resp := &SimulateResponse{
		Run:         sim.LastRun(),
		Metrics:     sim.CalculateMetrics(g),
		Influencers: ranking.TopInfluencers(g, MaxInfluencers),
	}
	if req.ProjectionDays > 0 {
		resp.Projection = sim.ProjectGrowth(g, req.ProjectionDays)
	}
	if req.IncludeGraph {
		resp.Graph = g
	}
	return resp, nil
}

// Project forecasts growth. Days defaults to the configured horizon.
func (s *Service) Project(req ProjectRequest) (*ProjectResponse, error) {
	if req.Days < 0 {
		return nil, fmt.Errorf("%w: days must be >= 0", ErrInvalidRequest)
	}
	days := req.Days
	if days == 0 {
		days = s.cfg.Projection.Days
	}

	var opts []growth.Option
	if req.ReferralRate != nil {
		opts = append(opts, growth.WithReferralRate(*req.ReferralRate))
	}
	if req.ChurnRate != nil {
		opts = append(opts, growth.WithChurnRate(*req.ChurnRate))
	}

	p := growth.New(req.StartingUsers, req.KFactor, days, opts...)
	return &ProjectResponse{
		Projection:             p,
		FinalUsers:             p.FinalUsers(),
		PeakUsers:              p.PeakUserCount(),
		AverageDailyGrowthRate: p.AverageDailyGrowthRate(),
	}, nil
}

// SocialProof evaluates the live engines at req.NetworkSize. Connections
// is the average referral connections per user used for churn reduction.
func (s *Service) SocialProof(req SocialProofRequest) (*SocialProofResponse, error) {
	if req.NetworkSize < 0 {
		return nil, fmt.Errorf("%w: network_size must be >= 0", ErrInvalidRequest)
	}
	if req.CohortSize < 0 {
		return nil, fmt.Errorf("%w: cohort_size must be >= 0", ErrInvalidRequest)
	}
	if req.TargetRate < 0 || req.TargetRate > 1 {
		return nil, fmt.Errorf("%w: target_rate must be in [0, 1]", ErrInvalidRequest)
	}

	sp := s.live.SocialProofEngine()
	values := s.live.NetworkValueCalculator()
	resp := &SocialProofResponse{
		SocialProofResult: sp.CalculateConversionRate(req.NetworkSize),
		CredibilityBoost:  sp.CalculateCredibilityBoost(req.NetworkSize, network.DefaultCredibilityThreshold),
		NetworkValue:      values.Calculate(req.NetworkSize),
		MarginalValue:     values.MarginalValue(req.NetworkSize),
		AdjustedChurnRate: s.live.ChurnReduction().AdjustedChurnRate(req.Connections, req.NetworkSize),
	}
	if req.CohortSize > 0 {
		resp.CohortSize = req.CohortSize
		resp.EstimatedConversions = sp.EstimateConversions(req.CohortSize, req.NetworkSize)
	}
	if req.TargetRate > 0 {
		target := &TargetEstimate{Rate: req.TargetRate}
		if size := sp.CalculateRequiredNetworkSize(req.TargetRate); !math.IsInf(size, 1) {
			target.Reachable = true
			target.RequiredNetworkSize = &size
		}
		resp.Target = target
	}
	return resp, nil
}
