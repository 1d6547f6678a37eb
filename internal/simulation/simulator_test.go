package simulation

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/viralsim/internal/graph"
	"github.com/nvandessel/viralsim/internal/instrument"
	"github.com/nvandessel/viralsim/internal/logging"
	"github.com/nvandessel/viralsim/internal/models"
	"github.com/nvandessel/viralsim/internal/network"
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// newSim builds a simulator on the default config with a fixed clock.
func newSim(t *testing.T, opts ...Option) *Simulator {
	t.Helper()
	base := []Option{WithClock(clock)}
	s, err := New(network.DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func delightEvent(personaID string, delight float64, at time.Time) models.TelemetryEvent {
	return models.TelemetryEvent{
		PersonaID:      personaID,
		Action:         "export report",
		EmotionalState: models.EmotionalState{Delight: models.Float64Ptr(delight)},
		Timestamp:      at,
	}
}

// alwaysYes makes every draw 0: every positive probability refers and every
// invitation is accepted.
func alwaysYes() Option {
	return WithRandomSource(network.NewSequenceSource(0))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := network.DefaultConfig()
	cfg.BaseAcceptanceRate = 2
	if _, err := New(cfg); !errors.Is(err, network.ErrInvalidConfig) {
		t.Errorf("New() error = %v, want ErrInvalidConfig", err)
	}
	if _, err := New(network.DefaultConfig(), WithPersonaPolicy("clone")); err == nil {
		t.Error("New() accepted an unknown persona policy")
	}
}

func TestSimulateReferrals_NoEvents(t *testing.T) {
	s := newSim(t, alwaysYes())
	personas := []models.PersonaProfile{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	g, err := s.SimulateReferrals(personas, nil)
	if err != nil {
		t.Fatalf("SimulateReferrals() error = %v", err)
	}
	if g.TotalUsers() != 3 || g.OrganicUsers() != 3 || g.TotalReferrals() != 0 {
		t.Errorf("totals = %d/%d/%d, want 3/3/0", g.TotalUsers(), g.OrganicUsers(), g.TotalReferrals())
	}
	if k := s.CalculateViralCoefficient(g); k != 0 {
		t.Errorf("k-factor = %v, want 0", k)
	}
	if s.LastRun().NoSignal != 3 {
		t.Errorf("NoSignal = %d, want 3", s.LastRun().NoSignal)
	}
}

func TestSimulateReferrals_EmptyInput(t *testing.T) {
	s := newSim(t)
	g, err := s.SimulateReferrals(nil, nil)
	if err != nil {
		t.Fatalf("SimulateReferrals() error = %v", err)
	}
	if g.TotalUsers() != 0 {
		t.Errorf("TotalUsers() = %d, want 0", g.TotalUsers())
	}
	m := s.CalculateMetrics(g)
	if m.KFactor != 0 || m.Depth != 0 || m.ConversionRate != 0 {
		t.Errorf("metrics = %+v, want zeros", m)
	}
}

func TestSimulateReferrals_OneReferrer(t *testing.T) {
	s := newSim(t, alwaysYes())
	joined := fixedNow.Add(-48 * time.Hour)
	personas := []models.PersonaProfile{{ID: "p1", Name: "Dana"}, {ID: "p2"}}
	events := []models.TelemetryEvent{
		delightEvent("p1", 1.0, joined.Add(time.Hour)),
		delightEvent("p1", 0.2, joined),
	}

	g, err := s.SimulateReferrals(personas, events)
	if err != nil {
		t.Fatalf("SimulateReferrals() error = %v", err)
	}
	AssertGraphConsistent(t, g)

	// p = 0.3 sends round(3 * 0.8) = 2 invitations, both accepted.
	if g.TotalUsers() != 4 || g.TotalReferrals() != 2 || g.OrganicUsers() != 2 {
		t.Fatalf("totals = %d/%d/%d, want 4/2/2", g.TotalUsers(), g.TotalReferrals(), g.OrganicUsers())
	}
	p1, _ := g.Node("p1")
	if p1.ReferralCount != 2 {
		t.Errorf("p1.ReferralCount = %d, want 2", p1.ReferralCount)
	}
	if !p1.JoinedAt.Equal(joined) {
		t.Errorf("p1.JoinedAt = %v, want earliest event %v", p1.JoinedAt, joined)
	}
	if p1.Metadata[MetaPersonaName] != "Dana" {
		t.Errorf("p1 metadata = %v", p1.Metadata)
	}
	p2, _ := g.Node("p2")
	if !p2.JoinedAt.Equal(fixedNow) {
		t.Errorf("p2.JoinedAt = %v, want clock time", p2.JoinedAt)
	}

	for _, id := range []string{"synthetic-user-1", "synthetic-user-2"} {
		n, ok := g.Node(id)
		if !ok {
			t.Fatalf("missing referred user %s", id)
		}
		if n.ReferredBy != "p1" || n.Metadata[MetaGeneration] != 1 {
			t.Errorf("%s = %+v", id, n)
		}
		if !n.JoinedAt.After(joined) {
			t.Errorf("%s joined %v, before its referrer's delight", id, n.JoinedAt)
		}
	}
	for _, e := range g.Edges() {
		if e.Channel != "email" {
			t.Errorf("edge channel = %q, want email", e.Channel)
		}
	}

	stats := s.LastRun()
	if stats.Rounds != 1 || stats.Referrals != 1 || stats.InvitationsSent != 2 || stats.InvitationsAccepted != 2 {
		t.Errorf("LastRun() = %+v", stats)
	}
	if stats.RunID == "" {
		t.Error("LastRun() has no run id")
	}
}

func TestSimulateReferrals_SkipsDuplicateAndBlankPersonas(t *testing.T) {
	s := newSim(t)
	personas := []models.PersonaProfile{
		{ID: "p1", Name: "first"},
		{ID: "p1", Name: "second"},
		{Name: "no id"},
	}
	g, err := s.SimulateReferrals(personas, nil)
	if err != nil {
		t.Fatalf("SimulateReferrals() error = %v", err)
	}
	if g.TotalUsers() != 1 {
		t.Fatalf("TotalUsers() = %d, want 1", g.TotalUsers())
	}
	if n, _ := g.Node("p1"); n.Metadata[MetaPersonaName] != "first" {
		t.Errorf("kept %v, want the first persona", n.Metadata[MetaPersonaName])
	}
}

func TestSimulateReferrals_PersonaNamedLikeSyntheticUser(t *testing.T) {
	s := newSim(t, alwaysYes())
	personas := []models.PersonaProfile{{ID: "p1"}, {ID: "synthetic-user-1"}, {ID: "synthetic-user-2"}}
	events := []models.TelemetryEvent{delightEvent("p1", 1.0, fixedNow)}

	g, err := s.SimulateReferrals(personas, events)
	if err != nil {
		t.Fatalf("SimulateReferrals() error = %v", err)
	}
	AssertGraphConsistent(t, g)

	for _, id := range []string{"synthetic-user-1", "synthetic-user-2"} {
		if n, _ := g.Node(id); !n.Organic() {
			t.Errorf("persona %s became a referred user: %+v", id, n)
		}
	}
	if g.ReferredUsers() == 0 {
		t.Fatal("expected p1 to refer someone")
	}
	if g.ReferredUsers() != s.LastRun().InvitationsAccepted {
		t.Errorf("referred users = %d, accepted = %d", g.ReferredUsers(), s.LastRun().InvitationsAccepted)
	}
	for _, child := range g.Children("p1") {
		if child == "synthetic-user-1" || child == "synthetic-user-2" {
			t.Errorf("referral reused persona id %s", child)
		}
	}
}

func TestRunSimulation_Generations(t *testing.T) {
	personas := []models.PersonaProfile{{ID: "p1"}, {ID: "p2"}}
	events := []models.TelemetryEvent{delightEvent("p1", 1.0, fixedNow)}

	tests := []struct {
		name       string
		iterations int
		wantUsers  int
		wantDepth  int
		wantRounds int
	}{
		// Round 1: p1 refers 2. Round 2: delight 0.75, each refers 2.
		// Round 3: delight ~0.54, each refers 2.
		{"zero iterations runs once", 0, 4, 2, 1},
		{"one round", 1, 4, 2, 1},
		{"two rounds", 2, 8, 3, 2},
		{"three rounds", 3, 16, 4, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSim(t, alwaysYes())
			g, err := s.RunSimulation(personas, events, tt.iterations)
			if err != nil {
				t.Fatalf("RunSimulation() error = %v", err)
			}
			AssertGraphConsistent(t, g)
			if g.TotalUsers() != tt.wantUsers {
				t.Errorf("TotalUsers() = %d, want %d", g.TotalUsers(), tt.wantUsers)
			}
			if g.Depth() != tt.wantDepth {
				t.Errorf("Depth() = %d, want %d", g.Depth(), tt.wantDepth)
			}
			if r := s.LastRun().Rounds; r != tt.wantRounds {
				t.Errorf("Rounds = %d, want %d", r, tt.wantRounds)
			}
			if g.OrganicUsers() != 2 {
				t.Errorf("OrganicUsers() = %d, want 2", g.OrganicUsers())
			}
		})
	}
}

func TestRunSimulation_StopsWhenNobodyJoins(t *testing.T) {
	// 0.99 is above every referral probability here.
	s := newSim(t, WithRandomSource(network.NewSequenceSource(0.99)))
	events := []models.TelemetryEvent{delightEvent("p1", 1.0, fixedNow)}

	g, err := s.RunSimulation([]models.PersonaProfile{{ID: "p1"}}, events, 10)
	if err != nil {
		t.Fatalf("RunSimulation() error = %v", err)
	}
	if g.TotalUsers() != 1 {
		t.Errorf("TotalUsers() = %d, want 1", g.TotalUsers())
	}
	if r := s.LastRun().Rounds; r != 1 {
		t.Errorf("Rounds = %d, want 1", r)
	}
}

func TestRunSimulation_SeededIsReproducible(t *testing.T) {
	var personas []models.PersonaProfile
	var events []models.TelemetryEvent
	for i := 0; i < 25; i++ {
		id := "p" + string(rune('a'+i))
		personas = append(personas, models.PersonaProfile{ID: id, TechAdoption: "early adopter", CollaborationStyle: "team"})
		events = append(events, delightEvent(id, 0.95, fixedNow.Add(time.Duration(i)*time.Minute)))
	}

	run := func() []byte {
		s := newSim(t, WithSeed(42))
		g, err := s.RunSimulation(personas, events, 4)
		if err != nil {
			t.Fatalf("RunSimulation() error = %v", err)
		}
		AssertGraphConsistent(t, g)
		data, err := json.Marshal(g)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		return data
	}

	if a, b := run(), run(); !bytes.Equal(a, b) {
		t.Error("two runs with the same seed produced different graphs")
	}
}

func TestRunSimulation_TimeSlices(t *testing.T) {
	cfg := network.DefaultConfig()
	cfg.DecisionMode = network.DecisionThreshold
	cfg.DecisionThreshold = 0.2
	s, err := New(cfg, WithClock(clock), alwaysYes(), WithTimeSlice(24*time.Hour))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	day := fixedNow.Truncate(24 * time.Hour)
	events := []models.TelemetryEvent{
		delightEvent("p1", 1.0, day.Add(time.Hour)),
		delightEvent("p1", 1.0, day.Add(49*time.Hour)),
	}
	g, err := s.SimulateReferrals([]models.PersonaProfile{{ID: "p1"}}, events)
	if err != nil {
		t.Fatalf("SimulateReferrals() error = %v", err)
	}
	if got := s.LastRun().Referrals; got != 2 {
		t.Errorf("Referrals = %d, want one per slice", got)
	}
	if g.TotalReferrals() != 4 {
		t.Errorf("TotalReferrals() = %d, want 4", g.TotalReferrals())
	}
}

func TestSyntheticPersonaPolicy(t *testing.T) {
	referrer := models.PersonaProfile{
		ID:                 "p1",
		TechAdoption:       "innovator",
		CollaborationStyle: "community",
		ReferralTriggers:   []string{"share"},
	}

	inherit := newSim(t).syntheticPersona("s1", referrer)
	if inherit.TechAdoption != "innovator" || inherit.CollaborationStyle != "community" {
		t.Errorf("inherit traits = %q/%q", inherit.TechAdoption, inherit.CollaborationStyle)
	}
	if len(inherit.ReferralTriggers) != 1 || inherit.Attributes["referred_by"] != "p1" {
		t.Errorf("inherit persona = %+v", inherit)
	}
	inherit.ReferralTriggers[0] = "changed"
	if referrer.ReferralTriggers[0] != "share" {
		t.Error("synthetic persona aliases the referrer's triggers")
	}

	neutral := newSim(t, WithPersonaPolicy(PolicyNeutral)).syntheticPersona("s1", referrer)
	if neutral.TechAdoptionCategory() != models.TechAdoptionUnknown || len(neutral.ReferralTriggers) != 0 {
		t.Errorf("neutral persona = %+v", neutral)
	}
}

func TestSyntheticEvent_DecaysDelight(t *testing.T) {
	s := newSim(t, WithRandomSource(network.NewSequenceSource(0.5))) // zero jitter
	eng := s.current()
	ev := s.syntheticEvent(eng, "s1", "p1", triggerDecision(0.8, "share"), fixedNow)

	d, ok := ev.DelightValue()
	if !ok || d < 0.679 || d > 0.681 {
		t.Errorf("delight = %v, want 0.8 * 0.85", d)
	}
	if ev.Action != "share" || ev.PersonaID != "s1" || !ev.Timestamp.Equal(fixedNow) {
		t.Errorf("event = %+v", ev)
	}
}

func TestParsePersonaPolicy(t *testing.T) {
	for in, want := range map[string]PersonaPolicy{"": PolicyInherit, "inherit": PolicyInherit, "neutral": PolicyNeutral} {
		got, err := ParsePersonaPolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePersonaPolicy(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParsePersonaPolicy("random"); err == nil {
		t.Error("ParsePersonaPolicy(random) should fail")
	}
}

func TestUpdateConfig(t *testing.T) {
	s := newSim(t)
	oldEngine := s.SocialProofEngine()
	oldValue := s.NetworkValueCalculator()

	t.Run("invalid patch is atomic", func(t *testing.T) {
		bad := 1.5
		rate := 0.4
		err := s.UpdateConfig(network.ConfigPatch{BaseAcceptanceRate: &rate, DailyChurnRate: &bad})
		if !errors.Is(err, network.ErrInvalidConfig) {
			t.Fatalf("UpdateConfig() error = %v, want ErrInvalidConfig", err)
		}
		if got := s.Config().BaseAcceptanceRate; got != 0.25 {
			t.Errorf("BaseAcceptanceRate = %v after failed update, want 0.25", got)
		}
		if s.SocialProofEngine() != oldEngine {
			t.Error("failed update replaced the engines")
		}
	})

	t.Run("valid patch rebuilds engines", func(t *testing.T) {
		rate := 0.4
		value := 0.5
		if err := s.UpdateConfig(network.ConfigPatch{BaseAcceptanceRate: &rate, ValuePerConnection: &value}); err != nil {
			t.Fatalf("UpdateConfig() error = %v", err)
		}
		if got := s.SocialProofEngine().CalculateConversionRate(0).BaseRate; got != 0.4 {
			t.Errorf("new engine base rate = %v, want 0.4", got)
		}
		if got := oldEngine.CalculateConversionRate(0).BaseRate; got != 0.25 {
			t.Errorf("old engine base rate = %v, want 0.25", got)
		}
		if oldValue.Config().ValuePerConnection != 0.01 {
			t.Error("old value calculator saw the new config")
		}
		if s.NetworkValueCalculator().Config().ValuePerConnection != 0.5 {
			t.Error("value calculator not rebuilt")
		}
		if s.ChurnReduction().Config().BaseAcceptanceRate != 0.4 {
			t.Error("churn reduction not rebuilt")
		}
	})
}

func TestUpdateConfig_KeepsIDSequence(t *testing.T) {
	s := newSim(t, alwaysYes())
	events := []models.TelemetryEvent{delightEvent("p1", 1.0, fixedNow)}
	if _, err := s.SimulateReferrals([]models.PersonaProfile{{ID: "p1"}}, events); err != nil {
		t.Fatalf("SimulateReferrals() error = %v", err)
	}

	boost := 2.0
	if err := s.UpdateConfig(network.ConfigPatch{ReferralTriggerBoost: &boost}); err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}
	g, err := s.SimulateReferrals([]models.PersonaProfile{{ID: "p1"}}, events)
	if err != nil {
		t.Fatalf("SimulateReferrals() error = %v", err)
	}
	if !g.Has("synthetic-user-3") {
		t.Errorf("ids restarted after config update: %v", g.Nodes())
	}

	s.ResetUserIDCounter(1)
	g, _ = s.SimulateReferrals([]models.PersonaProfile{{ID: "p1"}}, events)
	if !g.Has("synthetic-user-1") {
		t.Error("ResetUserIDCounter did not restart ids")
	}
}

func TestCalculateMetrics(t *testing.T) {
	s := newSim(t, alwaysYes())
	events := []models.TelemetryEvent{delightEvent("p1", 1.0, fixedNow)}
	g, err := s.SimulateReferrals([]models.PersonaProfile{{ID: "p1"}, {ID: "p2"}}, events)
	if err != nil {
		t.Fatalf("SimulateReferrals() error = %v", err)
	}

	m := s.CalculateMetrics(g)
	if m.KFactor != 0.5 {
		t.Errorf("KFactor = %v, want 0.5", m.KFactor)
	}
	if m.TotalUsers != 4 || m.OrganicUsers != 2 || m.ReferredUsers != 2 || m.TotalReferrals != 2 {
		t.Errorf("totals = %+v", m)
	}
	if m.Depth != 2 || m.ChainCount != 3 {
		t.Errorf("Depth/ChainCount = %d/%d, want 2/3", m.Depth, m.ChainCount)
	}
	if m.ConversionRate != 1 {
		t.Errorf("ConversionRate = %v, want 1", m.ConversionRate)
	}
	if m.AvgConnections != 1 {
		t.Errorf("AvgConnections = %v, want 1", m.AvgConnections)
	}
	if m.NetworkValue.Connections != 6 {
		t.Errorf("NetworkValue.Connections = %v, want 6", m.NetworkValue.Connections)
	}
	if m.AdjustedChurnRate >= s.Config().DailyChurnRate {
		t.Errorf("AdjustedChurnRate = %v, want below base churn", m.AdjustedChurnRate)
	}
	if !m.CalculatedAt.Equal(fixedNow) {
		t.Errorf("CalculatedAt = %v, want %v", m.CalculatedAt, fixedNow)
	}
	AssertKFactorBetween(t, m, 0.4, 0.6)
	AssertDepthAtLeast(t, g, 2)
}

func TestProjectGrowth(t *testing.T) {
	s := newSim(t, alwaysYes())
	events := []models.TelemetryEvent{delightEvent("p1", 1.0, fixedNow)}
	g, _ := s.SimulateReferrals([]models.PersonaProfile{{ID: "p1"}, {ID: "p2"}}, events)

	p := s.ProjectGrowth(g, 30)
	if len(p.DataPoints) != 30 {
		t.Fatalf("len(DataPoints) = %d, want 30", len(p.DataPoints))
	}
	if p.StartingUsers != 4 || p.KFactor != 0.5 {
		t.Errorf("projection start = %v users, k %v", p.StartingUsers, p.KFactor)
	}
	if p.ReferralRate != s.Config().ProjectionReferralRate {
		t.Errorf("ReferralRate = %v", p.ReferralRate)
	}

	empty := s.ProjectGrowth(graph.Empty(), 5)
	if empty.StartingUsers != 0 || len(empty.DataPoints) != 5 {
		t.Errorf("empty projection = %+v", empty)
	}
}

func TestCalculateMetrics_ConversionRateFromLastRun(t *testing.T) {
	ran := newSim(t, alwaysYes())
	events := []models.TelemetryEvent{delightEvent("p1", 1.0, fixedNow)}
	g, err := ran.SimulateReferrals([]models.PersonaProfile{{ID: "p1"}}, events)
	if err != nil {
		t.Fatalf("SimulateReferrals() error = %v", err)
	}

	tests := []struct {
		name string
		sim  *Simulator
		want float64
	}{
		{"simulator that grew the graph", ran, 1},
		{"fresh simulator", newSim(t), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.sim.CalculateMetrics(g)
			if m.ReferredUsers == 0 {
				t.Fatal("graph has no referrals")
			}
			if m.ConversionRate != tt.want {
				t.Errorf("ConversionRate = %v, want %v", m.ConversionRate, tt.want)
			}
		})
	}
}

func TestDecisionTraceAndMetrics(t *testing.T) {
	var buf bytes.Buffer
	rec := instrument.NewRecorder()
	s := newSim(t, alwaysYes(), WithDecisionLogger(logging.NewDecisionWriter(&buf)), WithRecorder(rec))

	events := []models.TelemetryEvent{delightEvent("p1", 1.0, fixedNow)}
	if _, err := s.RunSimulation([]models.PersonaProfile{{ID: "p1"}, {ID: "p2"}}, events, 2); err != nil {
		t.Fatalf("RunSimulation() error = %v", err)
	}

	// p1, p2, then the two users p1 referred.
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("decision trace has %d lines, want 4:\n%s", len(lines), buf.String())
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("trace line is not JSON: %v", err)
	}
	if first["persona_id"] != "p1" || first["outcome"] != instrument.OutcomeRefer {
		t.Errorf("first trace = %v", first)
	}
}
