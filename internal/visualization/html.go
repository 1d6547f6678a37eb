package visualization

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"sort"

	"github.com/nvandessel/viralsim/internal/graph"
)

// treeNode is one user in the rendered referral tree.
type treeNode struct {
	ID         string
	Label      string
	Generation int
	Channel    string
	Children   []treeNode
}

// htmlTemplateData holds data passed to the HTML template.
// GraphJSON is pre-sanitized JSON (via json.HTMLEscape) safe for inline <script>.
type htmlTemplateData struct {
	Title          string
	TotalUsers     int
	TotalReferrals int
	OrganicUsers   int
	Depth          int
	Roots          []treeNode
	GraphJSON      template.JS
	APIBaseURL     string
}

// RenderHTML produces a self-contained HTML page showing every referral
// tree rooted at an organic user.
func RenderHTML(g *graph.Graph, title string) ([]byte, error) {
	return renderHTML(g, title, "")
}

// RenderHTMLForServer is RenderHTML with the page wired to a live API at
// apiBaseURL for chain lookups.
func RenderHTMLForServer(g *graph.Graph, title, apiBaseURL string) ([]byte, error) {
	return renderHTML(g, title, apiBaseURL)
}

func renderHTML(g *graph.Graph, title, apiBaseURL string) ([]byte, error) {
	graphJSON, err := json.Marshal(RenderJSON(g))
	if err != nil {
		return nil, fmt.Errorf("marshal graph data: %w", err)
	}

	tmplBytes, err := templates.ReadFile("templates/graph.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read HTML template: %w", err)
	}
	tmpl, err := template.New("graph").Parse(string(tmplBytes))
	if err != nil {
		return nil, fmt.Errorf("parse HTML template: %w", err)
	}

	// json.HTMLEscape converts <, >, & to unicode escapes so persona
	// names cannot break out of the inline <script>.
	var escaped bytes.Buffer
	json.HTMLEscape(&escaped, graphJSON)

	if title == "" {
		title = "Referral graph"
	}
	data := htmlTemplateData{
		Title:          title,
		TotalUsers:     g.TotalUsers(),
		TotalReferrals: g.TotalReferrals(),
		OrganicUsers:   g.OrganicUsers(),
		Depth:          g.Depth(),
		Roots:          buildTrees(g),
		GraphJSON:      template.JS(escaped.String()), // #nosec G203
		APIBaseURL:     apiBaseURL,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}

// buildTrees returns one tree per organic user, roots ordered by join time.
func buildTrees(g *graph.Graph) []treeNode {
	channels := make(map[string]string)
	for _, e := range g.Edges() {
		channels[e.To] = e.Channel
	}

	var roots []graph.Node
	for _, n := range g.Nodes() {
		if n.Organic() {
			roots = append(roots, n)
		}
	}
	sort.SliceStable(roots, func(i, j int) bool {
		return roots[i].JoinedAt.Before(roots[j].JoinedAt)
	})

	var build func(id string, gen int) treeNode
	build = func(id string, gen int) treeNode {
		n, _ := g.Node(id)
		t := treeNode{
			ID:         id,
			Label:      nodeLabel(n),
			Generation: gen,
			Channel:    channels[id],
		}
		for _, child := range g.Children(id) {
			t.Children = append(t.Children, build(child, gen+1))
		}
		return t
	}

	out := make([]treeNode, 0, len(roots))
	for _, r := range roots {
		out = append(out, build(r.ID, 0))
	}
	return out
}
