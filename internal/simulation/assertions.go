package simulation

import (
	"testing"

	"github.com/nvandessel/viralsim/internal/graph"
)

// AssertGraphConsistent checks the aggregate invariants of g: totals match
// the node and edge lists, every referral count matches the outgoing
// edges, every edge joins existing nodes and no node has two referrers.
func AssertGraphConsistent(t *testing.T, g *graph.Graph) {
	t.Helper()
	nodes := g.Nodes()
	edges := g.Edges()

	if g.TotalUsers() != len(nodes) {
		t.Errorf("AssertGraphConsistent: TotalUsers %d != %d nodes", g.TotalUsers(), len(nodes))
	}
	if g.TotalReferrals() != len(edges) {
		t.Errorf("AssertGraphConsistent: TotalReferrals %d != %d edges", g.TotalReferrals(), len(edges))
	}

	organic := 0
	for _, n := range nodes {
		if n.Organic() {
			organic++
		}
	}
	if g.OrganicUsers() != organic {
		t.Errorf("AssertGraphConsistent: OrganicUsers %d != %d", g.OrganicUsers(), organic)
	}

	out := make(map[string]int)
	in := make(map[string]int)
	for _, e := range edges {
		if !g.Has(e.From) || !g.Has(e.To) {
			t.Errorf("AssertGraphConsistent: edge %s->%s references a missing node", e.From, e.To)
		}
		out[e.From]++
		in[e.To]++
	}
	for _, n := range nodes {
		if n.ReferralCount != out[n.ID] {
			t.Errorf("AssertGraphConsistent: %s ReferralCount %d != %d outgoing edges", n.ID, n.ReferralCount, out[n.ID])
		}
		if in[n.ID] > 1 {
			t.Errorf("AssertGraphConsistent: %s has %d referrers", n.ID, in[n.ID])
		}
	}
}

// AssertKFactorBetween asserts min <= k-factor <= max.
func AssertKFactorBetween(t *testing.T, m Metrics, min, max float64) {
	t.Helper()
	if m.KFactor < min || m.KFactor > max {
		t.Errorf("AssertKFactorBetween: k-factor %.4f not in [%.4f, %.4f]", m.KFactor, min, max)
	}
}

// AssertDepthAtLeast asserts the longest referral chain has at least min
// users.
func AssertDepthAtLeast(t *testing.T, g *graph.Graph, min int) {
	t.Helper()
	if d := g.Depth(); d < min {
		t.Errorf("AssertDepthAtLeast: depth %d < %d", d, min)
	}
}

// AssertScenarioPassed reports every failed invariant of res.
func AssertScenarioPassed(t *testing.T, res *ScenarioResult) {
	t.Helper()
	for _, f := range res.Failures() {
		t.Errorf("AssertScenarioPassed: %s: %s, actual %.4f", res.Name, f.Invariant, f.Actual)
	}
}
