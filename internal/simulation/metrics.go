package simulation

import (
	"time"

	"github.com/nvandessel/viralsim/internal/graph"
	"github.com/nvandessel/viralsim/internal/growth"
	"github.com/nvandessel/viralsim/internal/network"
)

// Metrics aggregates a referral graph for downstream decisions.
type Metrics struct {
	KFactor           float64                   `json:"k_factor"`
	TotalUsers        int                       `json:"total_users"`
	TotalReferrals    int                       `json:"total_referrals"`
	OrganicUsers      int                       `json:"organic_users"`
	ReferredUsers     int                       `json:"referred_users"`
	Depth             int                       `json:"depth"`
	ChainCount        int                       `json:"chain_count"`
	// ConversionRate is accepted over sent invitations in the simulator's
	// most recent run, not a property of the graph passed in. It is 0
	// before any run.
	ConversionRate    float64                   `json:"conversion_rate"`
	AvgConnections    float64                   `json:"avg_connections"`
	SocialProof       network.SocialProofResult `json:"social_proof"`
	NetworkValue      network.NetworkValue      `json:"network_value"`
	AdjustedChurnRate float64                   `json:"adjusted_churn_rate"`
	CalculatedAt      time.Time                 `json:"calculated_at"`
}

// CalculateViralCoefficient is referrals per user, or 0 for an empty graph.
func CalculateViralCoefficient(g *graph.Graph) float64 {
	if g == nil || g.TotalUsers() == 0 {
		return 0
	}
	return float64(g.TotalReferrals()) / float64(g.TotalUsers())
}

// CalculateViralCoefficient returns referrals per user for g.
func (s *Simulator) CalculateViralCoefficient(g *graph.Graph) float64 {
	return CalculateViralCoefficient(g)
}

// AverageConnections is the mean number of referral edges touching a user.
func AverageConnections(g *graph.Graph) float64 {
	if g == nil || g.TotalUsers() == 0 {
		return 0
	}
	return 2 * float64(g.TotalReferrals()) / float64(g.TotalUsers())
}

// CalculateMetrics aggregates g with the current engines. The graph does not
// record declined invitations, so ConversionRate is read from LastRun; pass
// the graph that run produced for consistent figures.
func (s *Simulator) CalculateMetrics(g *graph.Graph) Metrics {
	if g == nil {
		g = graph.Empty()
	}
	eng := s.current()
	n := g.TotalUsers()
	conn := AverageConnections(g)

	return Metrics{
		KFactor:           CalculateViralCoefficient(g),
		TotalUsers:        n,
		TotalReferrals:    g.TotalReferrals(),
		OrganicUsers:      g.OrganicUsers(),
		ReferredUsers:     g.ReferredUsers(),
		Depth:             g.Depth(),
		ChainCount:        len(g.ReferralChains()),
		ConversionRate:    s.LastRun().ConversionRate(),
		AvgConnections:    conn,
		SocialProof:       eng.socialProof.CalculateConversionRate(n),
		NetworkValue:      eng.value.Calculate(n),
		AdjustedChurnRate: eng.churn.AdjustedChurnRate(conn, n),
		CalculatedAt:      s.now(),
	}
}

// ProjectGrowth forecasts days of growth from g: the simulated k-factor,
// the configured projection referral rate and a churn rate reduced by the
// graph's connectedness.
func (s *Simulator) ProjectGrowth(g *graph.Graph, days int) *growth.Projection {
	if g == nil {
		g = graph.Empty()
	}
	eng := s.current()
	n := g.TotalUsers()
	return growth.New(float64(n), CalculateViralCoefficient(g), days,
		growth.WithReferralRate(eng.config.ProjectionReferralRate),
		growth.WithChurnRate(eng.churn.AdjustedChurnRate(AverageConnections(g), n)),
	)
}
