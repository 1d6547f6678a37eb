package graph

import (
	"fmt"
	"time"
)

// Builder accumulates nodes and edges on top of a base snapshot. The base
// is copied on the first write, and again on the first write after each
// call to Graph, so snapshots handed out are never modified.
type Builder struct {
	g     *Graph
	owned bool
}

// Builder returns a builder starting from g.
func (g *Graph) Builder() *Builder {
	return &Builder{g: g}
}

// Graph returns the current snapshot.
func (b *Builder) Graph() *Graph {
	b.owned = false
	return b.g
}

// Has reports whether id is a node in the builder's current state.
func (b *Builder) Has(id string) bool {
	return b.g.Has(id)
}

// TotalUsers returns the builder's current node count.
func (b *Builder) TotalUsers() int {
	return b.g.TotalUsers()
}

func (b *Builder) writable() *Graph {
	if !b.owned {
		b.g = b.g.clone()
		b.owned = true
	}
	return b.g
}

// AddNode adds a node. See Graph.AddNode for the rules.
func (b *Builder) AddNode(id, referredBy string, joinedAt time.Time, metadata map[string]interface{}) error {
	if id == "" {
		return ErrEmptyID
	}
	if b.g.Has(id) {
		return fmt.Errorf("add node %s: %w", id, ErrNodeExists)
	}
	if referredBy != "" && !b.g.Has(referredBy) {
		return fmt.Errorf("add node %s: referrer %s: %w", id, referredBy, ErrNodeNotFound)
	}

	var meta map[string]interface{}
	if len(metadata) > 0 {
		meta = make(map[string]interface{}, len(metadata))
		for k, v := range metadata {
			meta[k] = v
		}
	}

	b.writable().insertNode(Node{
		ID:         id,
		ReferredBy: referredBy,
		JoinedAt:   joinedAt,
		Metadata:   meta,
	})
	return nil
}

// AddEdge adds a referral edge. See Graph.AddEdge for the rules.
func (b *Builder) AddEdge(from, to string, timestamp time.Time, channel string) error {
	if !b.g.Has(from) {
		return fmt.Errorf("add edge %s->%s: from: %w", from, to, ErrNodeNotFound)
	}
	if !b.g.Has(to) {
		return fmt.Errorf("add edge %s->%s: to: %w", from, to, ErrNodeNotFound)
	}
	if from == to {
		return fmt.Errorf("add edge %s->%s: %w", from, to, ErrSelfReferral)
	}
	if _, ok := b.g.parent[to]; ok {
		return fmt.Errorf("add edge %s->%s: %w", from, to, ErrAlreadyReferred)
	}
	// Walking up from `from` must not reach `to`.
	for cur, ok := from, true; ok; cur, ok = b.g.parent[cur] {
		if cur == to {
			return fmt.Errorf("add edge %s->%s: %w", from, to, ErrCycle)
		}
	}
	if by := b.g.nodes[to].ReferredBy; by != from {
		return fmt.Errorf("add edge %s->%s: referred by %q: %w", from, to, by, ErrReferrerMismatch)
	}

	b.writable().insertEdge(Edge{From: from, To: to, Timestamp: timestamp, Channel: channel})
	return nil
}
