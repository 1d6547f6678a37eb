package graph

// ReferralChains returns one chain per path from an organic root down to a
// leaf, following referral edges. A root without referrals forms a chain of
// one. Roots are ordered by join time; children follow edge order.
func (g *Graph) ReferralChains() [][]string {
	var chains [][]string
	for _, root := range g.rootsByJoin() {
		g.walkChains(root, nil, &chains)
	}
	return chains
}

func (g *Graph) walkChains(id string, path []string, chains *[][]string) {
	path = append(path, id)
	kids := g.children[id]
	if len(kids) == 0 {
		chain := make([]string, len(path))
		copy(chain, path)
		*chains = append(*chains, chain)
		return
	}
	for _, kid := range kids {
		g.walkChains(kid, path, chains)
	}
}

// Depth returns the number of nodes in the longest referral chain, or 0 for
// an empty graph.
func (g *Graph) Depth() int {
	depth := 0
	for _, root := range g.rootsByJoin() {
		if d := g.depthFrom(root); d > depth {
			depth = d
		}
	}
	return depth
}

func (g *Graph) depthFrom(id string) int {
	best := 0
	for _, kid := range g.children[id] {
		if d := g.depthFrom(kid); d > best {
			best = d
		}
	}
	return best + 1
}

// Generation returns how many referral edges separate id from its organic
// root, or -1 if id is not in the graph.
func (g *Graph) Generation(id string) int {
	if !g.Has(id) {
		return -1
	}
	gen := 0
	for cur := id; ; gen++ {
		p, ok := g.parent[cur]
		if !ok {
			return gen
		}
		cur = p
	}
}
