// Package graph implements the referral graph as an immutable value.
//
// A *Graph is never modified after construction. AddNode and AddEdge return
// a new graph and leave the receiver untouched, so simulation branches can
// diverge from a shared snapshot without aliasing. Bulk growth goes through
// a Builder, which copies once and freezes a snapshot on Graph().
package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrEmptyID is returned when a node id is empty.
	ErrEmptyID = errors.New("node id is required")

	// ErrNodeExists is returned by AddNode when the id is already present.
	ErrNodeExists = errors.New("node already exists")

	// ErrNodeNotFound is returned when an edge endpoint or referrer is absent.
	ErrNodeNotFound = errors.New("node not found")

	// ErrSelfReferral is returned for an edge from a node to itself.
	ErrSelfReferral = errors.New("node cannot refer itself")

	// ErrAlreadyReferred is returned when the target already has a referrer edge.
	ErrAlreadyReferred = errors.New("node already has a referrer edge")

	// ErrCycle is returned when an edge would close a referral cycle.
	ErrCycle = errors.New("edge would create a referral cycle")

	// ErrReferrerMismatch is returned when an edge's source is not the
	// target's ReferredBy. Organic nodes never take an incoming edge.
	ErrReferrerMismatch = errors.New("edge source is not the node's referrer")
)

// Node is a user in the referral graph.
type Node struct {
	ID string `json:"id"`

	// ReferredBy is the referrer's id, or "" for an organic user.
	ReferredBy string `json:"referred_by,omitempty"`

	// ReferralCount is the number of edges leaving this node.
	ReferralCount int `json:"referral_count"`

	JoinedAt time.Time              `json:"joined_at"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Organic reports whether the user joined without a referrer.
func (n Node) Organic() bool {
	return n.ReferredBy == ""
}

// Edge is one accepted referral.
type Edge struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
	Channel   string    `json:"channel"`
}

// Graph is an immutable referral graph snapshot. The zero value is not
// usable; start from Empty().
type Graph struct {
	nodes    map[string]Node
	order    []string // node ids in insertion order
	edges    []Edge
	children map[string][]string
	parent   map[string]string
	organic  int
}

// Empty returns a graph with no nodes or edges.
func Empty() *Graph {
	return &Graph{
		nodes:    make(map[string]Node),
		children: make(map[string][]string),
		parent:   make(map[string]string),
	}
}

// TotalUsers returns the number of nodes.
func (g *Graph) TotalUsers() int { return len(g.nodes) }

// TotalReferrals returns the number of edges.
func (g *Graph) TotalReferrals() int { return len(g.edges) }

// OrganicUsers returns the number of nodes without a referrer.
func (g *Graph) OrganicUsers() int { return g.organic }

// ReferredUsers returns the number of nodes with a referrer.
func (g *Graph) ReferredUsers() int { return len(g.nodes) - g.organic }

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Has reports whether id is a node in the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns a copy of the edges in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Children returns the ids referred by id through edges, in edge order.
func (g *Graph) Children(id string) []string {
	return append([]string(nil), g.children[id]...)
}

// AddNode returns a new graph with the node added. referredBy is "" for an
// organic user; otherwise it must name an existing node. Adding an id that
// already exists fails with ErrNodeExists.
func (g *Graph) AddNode(id, referredBy string, joinedAt time.Time, metadata map[string]interface{}) (*Graph, error) {
	b := g.Builder()
	if err := b.AddNode(id, referredBy, joinedAt, metadata); err != nil {
		return nil, err
	}
	return b.Graph(), nil
}

// AddEdge returns a new graph with a referral edge from -> to. Both
// endpoints must exist and from must be to's ReferredBy; the edge
// increments from's ReferralCount.
func (g *Graph) AddEdge(from, to string, timestamp time.Time, channel string) (*Graph, error) {
	b := g.Builder()
	if err := b.AddEdge(from, to, timestamp, channel); err != nil {
		return nil, err
	}
	return b.Graph(), nil
}

// Merge combines two independently grown graphs. Node ids must not overlap.
// Nodes and edges of a come first.
func Merge(a, b *Graph) (*Graph, error) {
	for _, id := range b.order {
		if a.Has(id) {
			return nil, fmt.Errorf("merge: %w: %s", ErrNodeExists, id)
		}
	}

	out := a.clone()
	for _, id := range b.order {
		out.insertNode(b.nodes[id])
	}
	for _, e := range b.edges {
		out.insertEdge(e)
	}
	return out, nil
}

// clone returns a deep copy that shares no mutable state with g. Node
// metadata maps are shared; they are never written after insertion.
func (g *Graph) clone() *Graph {
	out := &Graph{
		nodes:    make(map[string]Node, len(g.nodes)),
		order:    make([]string, len(g.order)),
		edges:    make([]Edge, len(g.edges)),
		children: make(map[string][]string, len(g.children)),
		parent:   make(map[string]string, len(g.parent)),
		organic:  g.organic,
	}
	for k, v := range g.nodes {
		out.nodes[k] = v
	}
	copy(out.order, g.order)
	copy(out.edges, g.edges)
	for k, v := range g.children {
		out.children[k] = append([]string(nil), v...)
	}
	for k, v := range g.parent {
		out.parent[k] = v
	}
	return out
}

// insertNode stores n without validation and keeps aggregates current.
// ReferralCount is reset; insertEdge maintains it.
func (g *Graph) insertNode(n Node) {
	n.ReferralCount = 0
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	if n.Organic() {
		g.organic++
	}
}

// insertEdge stores e without validation and keeps aggregates current.
func (g *Graph) insertEdge(e Edge) {
	g.edges = append(g.edges, e)
	g.children[e.From] = append(g.children[e.From], e.To)
	g.parent[e.To] = e.From
	n := g.nodes[e.From]
	n.ReferralCount++
	g.nodes[e.From] = n
}

// rootsByJoin returns organic node ids ordered by join time, then id.
func (g *Graph) rootsByJoin() []string {
	roots := make([]string, 0, g.organic)
	for _, id := range g.order {
		if g.nodes[id].Organic() {
			roots = append(roots, id)
		}
	}
	sort.SliceStable(roots, func(i, j int) bool {
		a, b := g.nodes[roots[i]], g.nodes[roots[j]]
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.ID < b.ID
	})
	return roots
}

type graphJSON struct {
	Nodes          []Node `json:"nodes"`
	Edges          []Edge `json:"edges"`
	TotalUsers     int    `json:"total_users"`
	TotalReferrals int    `json:"total_referrals"`
	OrganicUsers   int    `json:"organic_users"`
}

// MarshalJSON encodes the graph with its aggregates.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(graphJSON{
		Nodes:          g.Nodes(),
		Edges:          g.Edges(),
		TotalUsers:     g.TotalUsers(),
		TotalReferrals: g.TotalReferrals(),
		OrganicUsers:   g.OrganicUsers(),
	})
}
