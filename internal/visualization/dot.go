// Package visualization renders referral graphs in various output formats.
package visualization

import (
	"fmt"
	"strings"

	"github.com/nvandessel/viralsim/internal/graph"
	"github.com/nvandessel/viralsim/internal/simulation"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
	FormatHTML Format = "html"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatDOT, FormatJSON, FormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown graph format %q (valid: dot, json, html)", s)
	}
}

// generationColors maps referral generation to DOT fill colors. Deeper
// generations reuse the last color.
var generationColors = []string{
	"steelblue",
	"mediumseagreen",
	"goldenrod",
	"tomato",
	"orchid",
}

// channelStyles maps invitation channels to DOT edge styles.
var channelStyles = map[string]string{
	"email":       "solid",
	"direct_link": "bold",
	"social":      "dashed",
	"in_app":      "dotted",
}

// RenderDOT produces a Graphviz DOT representation of the referral graph.
func RenderDOT(g *graph.Graph) string {
	var b strings.Builder
	b.WriteString("digraph referrals {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=ellipse, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for _, node := range g.Nodes() {
		gen := g.Generation(node.ID)
		label := truncate(nodeLabel(node), 40)
		b.WriteString(fmt.Sprintf("  %q [label=%q, fillcolor=%q, tooltip=\"generation=%d referrals=%d\"];\n",
			node.ID, label, generationColor(gen), gen, node.ReferralCount))
	}
	b.WriteString("\n")

	for _, edge := range g.Edges() {
		style := channelStyles[edge.Channel]
		if style == "" {
			style = "solid"
		}
		b.WriteString(fmt.Sprintf("  %q -> %q [label=%q, style=%s];\n",
			edge.From, edge.To, edge.Channel, style))
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON-ready graph representation with nodes and edges
// arrays in the shape the HTML view consumes.
func RenderJSON(g *graph.Graph) map[string]interface{} {
	nodes := g.Nodes()
	jsonNodes := make([]map[string]interface{}, 0, len(nodes))
	for _, node := range nodes {
		entry := map[string]interface{}{
			"id":             node.ID,
			"label":          nodeLabel(node),
			"generation":     g.Generation(node.ID),
			"organic":        node.Organic(),
			"referral_count": node.ReferralCount,
			"joined_at":      node.JoinedAt,
		}
		if node.ReferredBy != "" {
			entry["referred_by"] = node.ReferredBy
		}
		jsonNodes = append(jsonNodes, entry)
	}

	edges := g.Edges()
	jsonEdges := make([]map[string]interface{}, 0, len(edges))
	for _, edge := range edges {
		jsonEdges = append(jsonEdges, map[string]interface{}{
			"source":    edge.From,
			"target":    edge.To,
			"channel":   edge.Channel,
			"timestamp": edge.Timestamp,
		})
	}

	return map[string]interface{}{
		"nodes":         jsonNodes,
		"edges":         jsonEdges,
		"node_count":    len(jsonNodes),
		"edge_count":    len(jsonEdges),
		"organic_users": g.OrganicUsers(),
		"depth":         g.Depth(),
	}
}

func nodeLabel(n graph.Node) string {
	if name, ok := n.Metadata[simulation.MetaPersonaName].(string); ok && name != "" {
		return name
	}
	return n.ID
}

func generationColor(gen int) string {
	if gen < 0 {
		return "lightgray"
	}
	if gen >= len(generationColors) {
		gen = len(generationColors) - 1
	}
	return generationColors[gen]
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
