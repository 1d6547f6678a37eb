package simulation

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/viralsim/internal/graph"
	"github.com/nvandessel/viralsim/internal/models"
	"github.com/nvandessel/viralsim/internal/network"
)

// Scenario is a reproducible simulation with expectations on its metrics.
type Scenario struct {
	Name        string                  `yaml:"name"`
	Description string                  `yaml:"description,omitempty"`
	Seed        int64                   `yaml:"seed"`
	Iterations  int                     `yaml:"iterations"`
	Policy      PersonaPolicy           `yaml:"persona_policy,omitempty"`
	Config      network.ConfigPatch     `yaml:"config,omitempty"`
	Personas    []models.PersonaProfile `yaml:"personas"`
	Events      []models.TelemetryEvent `yaml:"events"`
	Invariants  []Invariant             `yaml:"invariants,omitempty"`
}

// Invariant compares one metric against a value, e.g. k_factor >= 0.2.
type Invariant struct {
	Metric string  `yaml:"metric"`
	Op     string  `yaml:"op"`
	Value  float64 `yaml:"value"`
}

func (inv Invariant) String() string {
	return fmt.Sprintf("%s %s %g", inv.Metric, inv.Op, inv.Value)
}

// InvariantResult is an evaluated invariant.
type InvariantResult struct {
	Invariant Invariant `json:"invariant"`
	Actual    float64   `json:"actual"`
	Passed    bool      `json:"passed"`
}

// ScenarioResult is the outcome of RunScenario.
type ScenarioResult struct {
	Name       string            `json:"name"`
	Graph      *graph.Graph      `json:"graph"`
	Metrics    Metrics           `json:"metrics"`
	Run        RunStats          `json:"run"`
	Invariants []InvariantResult `json:"invariants"`
}

// Passed reports whether every invariant held.
func (r *ScenarioResult) Passed() bool {
	for _, ir := range r.Invariants {
		if !ir.Passed {
			return false
		}
	}
	return true
}

// Failures returns the invariants that did not hold.
func (r *ScenarioResult) Failures() []InvariantResult {
	var out []InvariantResult
	for _, ir := range r.Invariants {
		if !ir.Passed {
			out = append(out, ir)
		}
	}
	return out
}

var validOps = map[string]func(a, b float64) bool{
	">":  func(a, b float64) bool { return a > b },
	">=": func(a, b float64) bool { return a >= b },
	"<":  func(a, b float64) bool { return a < b },
	"<=": func(a, b float64) bool { return a <= b },
	"==": func(a, b float64) bool { return math.Abs(a-b) < 1e-9 },
}

// MetricValue returns the named metric. Names are the JSON field names:
// k_factor, total_users, total_referrals, organic_users, referred_users,
// depth, chain_count, conversion_rate.
func (m Metrics) MetricValue(name string) (float64, error) {
	switch name {
	case "k_factor":
		return m.KFactor, nil
	case "total_users":
		return float64(m.TotalUsers), nil
	case "total_referrals":
		return float64(m.TotalReferrals), nil
	case "organic_users":
		return float64(m.OrganicUsers), nil
	case "referred_users":
		return float64(m.ReferredUsers), nil
	case "depth":
		return float64(m.Depth), nil
	case "chain_count":
		return float64(m.ChainCount), nil
	case "conversion_rate":
		return m.ConversionRate, nil
	default:
		return 0, fmt.Errorf("unknown metric: %q", name)
	}
}

// Validate checks the scenario's invariants and config patch.
func (sc *Scenario) Validate() error {
	var problems []string
	if _, err := ParsePersonaPolicy(string(sc.Policy)); err != nil {
		problems = append(problems, err.Error())
	}
	for i, inv := range sc.Invariants {
		if _, err := (Metrics{}).MetricValue(inv.Metric); err != nil {
			problems = append(problems, fmt.Sprintf("invariants[%d]: %v", i, err))
		}
		if _, ok := validOps[inv.Op]; !ok {
			problems = append(problems, fmt.Sprintf("invariants[%d]: invalid op %q", i, inv.Op))
		}
	}
	if err := network.DefaultConfig().Apply(sc.Config).Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("scenario %q: %s", sc.Name, strings.Join(problems, "; "))
	}
	return nil
}

// LoadScenario reads and validates a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario %s: %w", path, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// RunScenario runs sc with its seed and config on a fresh simulator and
// evaluates its invariants. opts are applied after the scenario's own.
func RunScenario(ctx context.Context, sc *Scenario, opts ...Option) (*ScenarioResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	cfg := network.DefaultConfig().Apply(sc.Config)
	base := []Option{WithSeed(sc.Seed), WithPersonaPolicy(sc.Policy)}
	sim, err := New(cfg, append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	g, err := sim.RunSimulation(sc.Personas, sc.Events, sc.Iterations)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", sc.Name, err)
	}

	res := &ScenarioResult{
		Name:    sc.Name,
		Graph:   g,
		Metrics: sim.CalculateMetrics(g),
		Run:     sim.LastRun(),
	}
	for _, inv := range sc.Invariants {
		actual, _ := res.Metrics.MetricValue(inv.Metric)
		res.Invariants = append(res.Invariants, InvariantResult{
			Invariant: inv,
			Actual:    actual,
			Passed:    validOps[inv.Op](actual, inv.Value),
		})
	}
	return res, nil
}
