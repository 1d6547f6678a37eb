// Package ranking scores users of a referral graph by their influence on
// its growth.
package ranking

import (
	"math"
	"sort"

	"github.com/nvandessel/viralsim/internal/graph"
)

// PageRankConfig holds configuration for PageRank computation.
type PageRankConfig struct {
	// DampingFactor (d) is the probability of following an edge vs. teleporting.
	// Standard value: 0.85.
	DampingFactor float64

	// MaxIterations is the maximum number of power iteration steps. Default: 100.
	MaxIterations int

	// Tolerance is the convergence threshold. Default: 1e-6.
	Tolerance float64
}

// DefaultPageRankConfig returns the default PageRank configuration.
func DefaultPageRankConfig() PageRankConfig {
	return PageRankConfig{
		DampingFactor: 0.85,
		MaxIterations: 100,
		Tolerance:     1e-6,
	}
}

// Influencer is a user ranked by influence.
type Influencer struct {
	ID          string  `json:"id"`
	Score       float64 `json:"score"`
	Referrals   int     `json:"referrals"`
	Descendants int     `json:"descendants"`
	Generation  int     `json:"generation"`
}

// ComputePageRank scores every user of g in [0, 1], normalized so the most
// influential user scores 1.
//
// Rank flows against referral edges: every referred user passes its score
// to its referrer, so a user is credited for the whole subtree it seeded,
// discounted by depth. Users without a referrer spread their score
// uniformly.
//
// Algorithm: power iteration
//  1. Initialize all nodes with score = 1/N
//  2. For each iteration:
//     PR(v) = (1-d)/N + d * (sum(PR(c)) over users c referred by v + dangling/N)
//  3. Converge when max change < Tolerance
//  4. Normalize to [0, 1] range
func ComputePageRank(g *graph.Graph, config PageRankConfig) map[string]float64 {
	nodes := g.Nodes()
	n := len(nodes)
	scores := make(map[string]float64, n)
	if n == 0 {
		return scores
	}

	// Each referred user has exactly one referrer, so its out-degree in the
	// reversed graph is 1.
	referredBy := make(map[string]string, n)
	for _, e := range g.Edges() {
		referredBy[e.To] = e.From
	}

	d := config.DampingFactor
	nf := float64(n)
	for _, node := range nodes {
		scores[node.ID] = 1.0 / nf
	}

	for iter := 0; iter < config.MaxIterations; iter++ {
		dangling := 0.0
		for _, node := range nodes {
			if _, ok := referredBy[node.ID]; !ok {
				dangling += scores[node.ID]
			}
		}

		newScores := make(map[string]float64, n)
		for _, node := range nodes {
			newScores[node.ID] = (1.0-d)/nf + d*dangling/nf
		}
		for child, parent := range referredBy {
			newScores[parent] += d * scores[child]
		}

		maxDelta := 0.0
		for id, score := range newScores {
			if delta := math.Abs(score - scores[id]); delta > maxDelta {
				maxDelta = delta
			}
		}
		scores = newScores

		if maxDelta < config.Tolerance {
			break
		}
	}

	// Normalize to [0, 1] by dividing by max score.
	maxScore := 0.0
	for _, score := range scores {
		if score > maxScore {
			maxScore = score
		}
	}
	if maxScore > 0 {
		for id, score := range scores {
			scores[id] = score / maxScore
		}
	}
	return scores
}

// TopInfluencers returns up to limit users who referred at least one other
// user, highest score first. Ties go to the larger subtree, then to the
// lower id.
func TopInfluencers(g *graph.Graph, limit int) []Influencer {
	if g == nil || limit <= 0 {
		return nil
	}
	scores := ComputePageRank(g, DefaultPageRankConfig())

	var out []Influencer
	for _, node := range g.Nodes() {
		if node.ReferralCount == 0 {
			continue
		}
		out = append(out, Influencer{
			ID:          node.ID,
			Score:       scores[node.ID],
			Referrals:   node.ReferralCount,
			Descendants: descendants(g, node.ID),
			Generation:  g.Generation(node.ID),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Descendants != out[j].Descendants {
			return out[i].Descendants > out[j].Descendants
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// descendants counts the users reachable from id through referral edges.
func descendants(g *graph.Graph, id string) int {
	count := 0
	stack := g.Children(id)
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++
		stack = append(stack, g.Children(next)...)
	}
	return count
}
