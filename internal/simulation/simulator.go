package simulation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nvandessel/viralsim/internal/instrument"
	"github.com/nvandessel/viralsim/internal/invitation"
	"github.com/nvandessel/viralsim/internal/logging"
	"github.com/nvandessel/viralsim/internal/network"
	"github.com/nvandessel/viralsim/internal/trigger"
)

// PersonaPolicy controls the traits given to synthetic referred personas.
type PersonaPolicy string

const (
	// PolicyInherit copies the referrer's traits and referral triggers.
	PolicyInherit PersonaPolicy = "inherit"
	// PolicyNeutral uses unknown traits and no triggers.
	PolicyNeutral PersonaPolicy = "neutral"
)

// ParsePersonaPolicy parses a policy name. Empty means inherit.
func ParsePersonaPolicy(s string) (PersonaPolicy, error) {
	switch PersonaPolicy(s) {
	case "", PolicyInherit:
		return PolicyInherit, nil
	case PolicyNeutral:
		return PolicyNeutral, nil
	default:
		return "", fmt.Errorf("invalid persona policy: %q (valid: inherit, neutral)", s)
	}
}

// engines is the set of sub-engines bound to one config snapshot.
type engines struct {
	config      network.Config
	socialProof *network.SocialProofEngine
	value       *network.NetworkValueCalculator
	churn       *network.ChurnReduction
	detector    *trigger.Detector
	inviter     *invitation.Simulator
}

// Simulator orchestrates referral simulations. Runs are not safe for
// concurrent use; UpdateConfig and the accessors are.
type Simulator struct {
	mu      sync.RWMutex
	engines engines
	last    RunStats

	rng       network.RandomSource
	seed      int64
	seeded    bool
	ids       *invitation.IDSequence
	idPrefix  string
	now       func() time.Time
	policy    PersonaPolicy
	slice     time.Duration
	logger    *slog.Logger
	decisions *logging.DecisionLogger
	recorder  *instrument.Recorder

	// reserved ids are never handed to synthetic users, in addition to
	// the ids already in the graph being grown.
	reserved map[string]struct{}
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithRandomSource sets the source for every stochastic draw.
func WithRandomSource(src network.RandomSource) Option {
	return func(s *Simulator) {
		if src != nil {
			s.rng = src
			s.seeded = false
		}
	}
}

// WithSeed uses a deterministic source seeded with seed. RunBatches derives
// per-batch seeds from it.
func WithSeed(seed int64) Option {
	return func(s *Simulator) {
		s.rng = network.NewSeededSource(seed)
		s.seed = seed
		s.seeded = true
	}
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDecisionLogger traces every referral decision as JSONL.
func WithDecisionLogger(dl *logging.DecisionLogger) Option {
	return func(s *Simulator) { s.decisions = dl }
}

// WithRecorder records Prometheus metrics for every run.
func WithRecorder(r *instrument.Recorder) Option {
	return func(s *Simulator) { s.recorder = r }
}

// WithClock sets the time source for join times of organic users without
// telemetry and for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDPrefix sets the prefix of synthetic user ids.
func WithIDPrefix(prefix string) Option {
	return func(s *Simulator) { s.idPrefix = prefix }
}

// withReservedIDs keeps synthetic ids clear of personas that live in
// other batches.
func withReservedIDs(ids map[string]struct{}) Option {
	return func(s *Simulator) { s.reserved = ids }
}

// WithPersonaPolicy sets how synthetic personas get their traits.
func WithPersonaPolicy(p PersonaPolicy) Option {
	return func(s *Simulator) {
		if p != "" {
			s.policy = p
		}
	}
}

// WithTimeSlice evaluates each persona's telemetry in windows of d, giving
// one referral decision per window. Zero evaluates all events at once.
func WithTimeSlice(d time.Duration) Option {
	return func(s *Simulator) { s.slice = d }
}

// New creates a simulator for cfg. It fails if cfg is invalid.
func New(cfg network.Config, opts ...Option) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulator{
		rng:    network.EntropySource(),
		now:    time.Now,
		policy: PolicyInherit,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := ParsePersonaPolicy(string(s.policy)); err != nil {
		return nil, err
	}
	s.ids = invitation.NewIDSequence(s.idPrefix, 1)
	s.engines = s.buildEngines(cfg)
	return s, nil
}

// buildEngines constructs a fresh engine set for cfg. The id sequence and
// random source carry over so ids stay unique across config changes.
func (s *Simulator) buildEngines(cfg network.Config) engines {
	cfg = cfg.Clone()
	sp := network.NewSocialProofEngine(cfg)
	return engines{
		config:      cfg,
		socialProof: sp,
		value:       network.NewNetworkValueCalculator(cfg),
		churn:       network.NewChurnReduction(cfg),
		detector:    trigger.NewDetector(cfg, s.rng),
		inviter: invitation.NewSimulator(sp, s.rng,
			invitation.WithIDSequence(s.ids),
			invitation.WithClock(s.now),
		),
	}
}

// UpdateConfig merges patch into the current config, validates the result
// and rebuilds every sub-engine. On error nothing changes. Engines obtained
// before the call keep their old config.
func (s *Simulator) UpdateConfig(patch network.ConfigPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.engines.config.Apply(patch)
	if err := next.Validate(); err != nil {
		return fmt.Errorf("update config: %w", err)
	}
	s.engines = s.buildEngines(next)
	s.logger.Info("network config updated",
		"base_acceptance_rate", next.BaseAcceptanceRate,
		"base_referral_probability", next.BaseReferralProbability,
		"network_effects", next.EnableNetworkEffects)
	return nil
}

func (s *Simulator) current() engines {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engines
}

// Config returns a copy of the current config.
func (s *Simulator) Config() network.Config {
	return s.current().config.Clone()
}

// SocialProofEngine returns the current social proof engine.
func (s *Simulator) SocialProofEngine() *network.SocialProofEngine {
	return s.current().socialProof
}

// NetworkValueCalculator returns the current network value calculator.
func (s *Simulator) NetworkValueCalculator() *network.NetworkValueCalculator {
	return s.current().value
}

// ChurnReduction returns the current churn reduction model.
func (s *Simulator) ChurnReduction() *network.ChurnReduction {
	return s.current().churn
}

// Detector returns the current referral trigger detector.
func (s *Simulator) Detector() *trigger.Detector {
	return s.current().detector
}

// ResetUserIDCounter restarts synthetic user ids at start.
func (s *Simulator) ResetUserIDCounter(start int) {
	s.ids.Reset(start)
}

// LastRun returns the statistics of the most recent run.
func (s *Simulator) LastRun() RunStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Simulator) setLastRun(stats RunStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = stats
}
