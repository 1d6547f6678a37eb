package visualization

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/viralsim/internal/graph"
	"github.com/nvandessel/viralsim/internal/simulation"
)

// buildGraph returns u1 -> u2 -> u3 and u1 -> u4, plus an isolated organic u5.
func buildGraph(t *testing.T) *graph.Graph {
	t.Helper()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	b := graph.Empty().Builder()

	mustNode := func(id, by string, offset time.Duration, meta map[string]interface{}) {
		t.Helper()
		if err := b.AddNode(id, by, base.Add(offset), meta); err != nil {
			t.Fatalf("add node %s: %v", id, err)
		}
	}
	mustEdge := func(from, to, channel string) {
		t.Helper()
		if err := b.AddEdge(from, to, base, channel); err != nil {
			t.Fatalf("add edge %s->%s: %v", from, to, err)
		}
	}

	mustNode("u1", "", 0, map[string]interface{}{simulation.MetaPersonaName: "Ada <admin>"})
	mustNode("u5", "", time.Minute, nil)
	mustNode("u2", "u1", time.Hour, nil)
	mustEdge("u1", "u2", "email")
	mustNode("u3", "u2", 2*time.Hour, nil)
	mustEdge("u2", "u3", "social")
	mustNode("u4", "u1", 3*time.Hour, nil)
	mustEdge("u1", "u4", "carrier_pigeon")
	return b.Graph()
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"dot", "JSON", " html "} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q) error = %v", s, err)
		}
	}
	if _, err := ParseFormat("svg"); err == nil {
		t.Error("expected error for svg")
	}
}

func TestRenderDOT_Empty(t *testing.T) {
	dot := RenderDOT(graph.Empty())
	if !strings.Contains(dot, "digraph referrals") {
		t.Error("expected digraph header")
	}
	if !strings.HasSuffix(strings.TrimSpace(dot), "}") {
		t.Error("expected closing brace")
	}
	if strings.Contains(dot, "->") {
		t.Error("empty graph should have no edges")
	}
}

func TestRenderDOT_ContainsEveryEdge(t *testing.T) {
	g := buildGraph(t)
	dot := RenderDOT(g)

	for _, e := range g.Edges() {
		want := fmt.Sprintf("%q -> %q", e.From, e.To)
		if !strings.Contains(dot, want) {
			t.Errorf("missing edge %s", want)
		}
	}
	for _, n := range g.Nodes() {
		if !strings.Contains(dot, fmt.Sprintf("%q [label=", n.ID)) {
			t.Errorf("missing node %s", n.ID)
		}
	}
	if got := strings.Count(dot, "->"); got != g.TotalReferrals() {
		t.Errorf("edge count = %d, want %d", got, g.TotalReferrals())
	}
}

func TestRenderDOT_Styles(t *testing.T) {
	dot := RenderDOT(buildGraph(t))

	checks := []string{
		`"u1" [label="Ada <admin>", fillcolor="steelblue"`,
		`"u2" [label="u2", fillcolor="mediumseagreen"`,
		`"u3" [label="u3", fillcolor="goldenrod"`,
		`"u2" -> "u3" [label="social", style=dashed]`,
		`"u1" -> "u4" [label="carrier_pigeon", style=solid]`,
	}
	for _, want := range checks {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q\n%s", want, dot)
		}
	}
}

func TestGenerationColor(t *testing.T) {
	if got := generationColor(-1); got != "lightgray" {
		t.Errorf("generationColor(-1) = %q", got)
	}
	if got := generationColor(99); got != generationColors[len(generationColors)-1] {
		t.Errorf("generationColor(99) = %q", got)
	}
}

func TestRenderJSON(t *testing.T) {
	g := buildGraph(t)
	data := RenderJSON(g)

	if data["node_count"] != 5 {
		t.Errorf("node_count = %v, want 5", data["node_count"])
	}
	if data["edge_count"] != 3 {
		t.Errorf("edge_count = %v, want 3", data["edge_count"])
	}
	if data["organic_users"] != 2 {
		t.Errorf("organic_users = %v, want 2", data["organic_users"])
	}
	if data["depth"] != 3 {
		t.Errorf("depth = %v, want 3", data["depth"])
	}

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Nodes []struct {
			ID         string `json:"id"`
			Generation int    `json:"generation"`
			ReferredBy string `json:"referred_by"`
		} `json:"nodes"`
		Edges []struct {
			Source  string `json:"source"`
			Target  string `json:"target"`
			Channel string `json:"channel"`
		} `json:"edges"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	gens := map[string]int{}
	for _, n := range decoded.Nodes {
		gens[n.ID] = n.Generation
	}
	if gens["u1"] != 0 || gens["u2"] != 1 || gens["u3"] != 2 {
		t.Errorf("generations = %v", gens)
	}
	if decoded.Edges[1].Source != "u2" || decoded.Edges[1].Channel != "social" {
		t.Errorf("edge[1] = %+v", decoded.Edges[1])
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(buildGraph(t), "")
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}
	page := string(html)

	if !strings.Contains(page, "<title>Referral graph</title>") {
		t.Error("expected default title")
	}
	if strings.Contains(page, "Ada <admin>") {
		t.Error("persona name was not escaped")
	}
	for _, id := range []string{"u1", "u2", "u3", "u4", "u5"} {
		if !strings.Contains(page, fmt.Sprintf(`data-id="%s"`, id)) {
			t.Errorf("tree missing %s", id)
		}
	}
	if !strings.Contains(page, "via social") {
		t.Error("expected channel annotation")
	}
}

func TestBuildTrees(t *testing.T) {
	trees := buildTrees(buildGraph(t))
	if len(trees) != 2 {
		t.Fatalf("got %d roots, want 2", len(trees))
	}
	if trees[0].ID != "u1" || trees[1].ID != "u5" {
		t.Errorf("roots = %s, %s; want u1, u5", trees[0].ID, trees[1].ID)
	}
	if len(trees[0].Children) != 2 {
		t.Fatalf("u1 children = %d, want 2", len(trees[0].Children))
	}
	u2 := trees[0].Children[0]
	if u2.ID != "u2" || u2.Generation != 1 || u2.Channel != "email" {
		t.Errorf("u2 = %+v", u2)
	}
	if len(u2.Children) != 1 || u2.Children[0].Generation != 2 {
		t.Errorf("u2 subtree = %+v", u2.Children)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate(strings.Repeat("a", 50), 10); got != "aaaaaaa..." {
		t.Errorf("truncate() = %q", got)
	}
}
