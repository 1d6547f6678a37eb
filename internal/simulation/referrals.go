package simulation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/viralsim/internal/graph"
	"github.com/nvandessel/viralsim/internal/instrument"
	"github.com/nvandessel/viralsim/internal/logging"
	"github.com/nvandessel/viralsim/internal/models"
	"github.com/nvandessel/viralsim/internal/trigger"
)

// Metadata keys set on graph nodes.
const (
	MetaGeneration   = "generation"
	MetaSynthetic    = "synthetic"
	MetaChannel      = "channel"
	MetaPersonaName  = "persona_name"
	MetaTechAdoption = "tech_adoption"
	MetaCollab       = "collaboration_style"
)

// RunStats tallies one simulation run.
type RunStats struct {
	RunID               string        `json:"run_id"`
	Rounds              int           `json:"rounds"`
	PersonasEvaluated   int           `json:"personas_evaluated"`
	Referrals           int           `json:"referrals"`
	NoSignal            int           `json:"no_signal"`
	InvitationsSent     int           `json:"invitations_sent"`
	InvitationsAccepted int           `json:"invitations_accepted"`
	StartedAt           time.Time     `json:"started_at"`
	Duration            time.Duration `json:"duration"`
}

// ConversionRate is accepted over sent invitations, or 0.
func (r RunStats) ConversionRate() float64 {
	if r.InvitationsSent == 0 {
		return 0
	}
	return float64(r.InvitationsAccepted) / float64(r.InvitationsSent)
}

func (r *RunStats) add(o RunStats) {
	r.Rounds = max(r.Rounds, o.Rounds)
	r.PersonasEvaluated += o.PersonasEvaluated
	r.Referrals += o.Referrals
	r.NoSignal += o.NoSignal
	r.InvitationsSent += o.InvitationsSent
	r.InvitationsAccepted += o.InvitationsAccepted
}

// cohort is a set of personas to evaluate in one round, with their events.
type cohort struct {
	personas   []models.PersonaProfile
	events     map[string][]models.TelemetryEvent
	generation map[string]int
}

func (c *cohort) add(p models.PersonaProfile, gen int, events ...models.TelemetryEvent) {
	c.personas = append(c.personas, p)
	c.events[p.ID] = append(c.events[p.ID], events...)
	c.generation[p.ID] = gen
}

func newCohort() *cohort {
	return &cohort{
		events:     make(map[string][]models.TelemetryEvent),
		generation: make(map[string]int),
	}
}

// SimulateReferrals seeds one organic user per distinct persona and runs a
// single referral round over them.
func (s *Simulator) SimulateReferrals(personas []models.PersonaProfile, events []models.TelemetryEvent) (*graph.Graph, error) {
	return s.RunSimulation(personas, events, 1)
}

// RunSimulation seeds organic users and runs up to iterations referral
// rounds. Round one evaluates the given personas; each later round
// evaluates only the users referred in the round before, as synthetic
// personas. It stops early when a round adds nobody. Zero or negative
// iterations run one round.
func (s *Simulator) RunSimulation(personas []models.PersonaProfile, events []models.TelemetryEvent, iterations int) (*graph.Graph, error) {
	eng := s.current()
	wall := time.Now()
	start := s.now()
	stats := RunStats{RunID: uuid.NewString(), StartedAt: start}
	rounds := max(1, iterations)

	b := graph.Empty().Builder()
	current, err := s.seedOrganic(b, personas, events, start)
	if err != nil {
		return nil, err
	}

	for round := 1; round <= rounds && len(current.personas) > 0; round++ {
		next, err := s.referralRound(eng, b, current, &stats)
		if err != nil {
			return nil, fmt.Errorf("round %d: %w", round, err)
		}
		stats.Rounds = round
		s.recorder.ObserveRound()
		s.logger.Debug("referral round finished",
			"run_id", stats.RunID,
			"round", round,
			"evaluated", len(current.personas),
			"new_users", len(next.personas),
			"total_users", b.TotalUsers())
		current = next
	}

	g := b.Graph()
	stats.Duration = time.Since(wall)
	s.setLastRun(stats)
	s.recorder.ObserveRun(stats.Duration, g.TotalUsers(), CalculateViralCoefficient(g))
	s.logger.Info("simulation finished",
		"run_id", stats.RunID,
		"rounds", stats.Rounds,
		"total_users", g.TotalUsers(),
		"total_referrals", g.TotalReferrals(),
		"conversion_rate", stats.ConversionRate())
	return g, nil
}

// seedOrganic adds one organic node per distinct persona id, first seen
// wins. A persona joins at its earliest event, or at start without events.
func (s *Simulator) seedOrganic(b *graph.Builder, personas []models.PersonaProfile, events []models.TelemetryEvent, start time.Time) (*cohort, error) {
	c := newCohort()
	for _, e := range events {
		c.events[e.PersonaID] = append(c.events[e.PersonaID], e)
	}

	for _, p := range personas {
		if p.ID == "" {
			s.logger.Warn("skipping persona without id", "persona_name", p.Name)
			continue
		}
		if b.Has(p.ID) {
			continue
		}

		joined := start
		for i, e := range c.events[p.ID] {
			if i == 0 || e.Timestamp.Before(joined) {
				joined = e.Timestamp
			}
		}
		if joined.IsZero() {
			joined = start
		}

		meta := map[string]interface{}{
			MetaGeneration:   0,
			MetaSynthetic:    false,
			MetaTechAdoption: string(p.TechAdoptionCategory()),
			MetaCollab:       string(p.CollaborationCategory()),
		}
		if p.Name != "" {
			meta[MetaPersonaName] = p.Name
		}
		if err := b.AddNode(p.ID, "", joined, meta); err != nil {
			return nil, fmt.Errorf("seed persona: %w", err)
		}
		c.personas = append(c.personas, p)
		c.generation[p.ID] = 0
	}
	return c, nil
}

// referralRound evaluates every persona in c, sends invitations for the
// positive decisions and adds accepted invitees to b. It returns the new
// users as the next cohort.
func (s *Simulator) referralRound(eng engines, b *graph.Builder, c *cohort, stats *RunStats) (*cohort, error) {
	next := newCohort()

	for _, p := range c.personas {
		stats.PersonasEvaluated++
		decisions := s.decide(eng, p, c.events[p.ID])

		for _, dec := range decisions {
			s.observeDecision(stats, dec)
			if !dec.ShouldRefer {
				continue
			}
			stats.Referrals++

			count := eng.detector.InvitationCount(dec)
			res := eng.inviter.SimulateInvitations(p.ID, count, b.TotalUsers())
			stats.InvitationsSent += res.InvitationsSent
			stats.InvitationsAccepted += res.InvitationsAccepted
			s.recorder.ObserveInvitations(res.InvitationsSent, res.InvitationsAccepted)

			base := s.referralBase(dec, c.events[p.ID])
			gen := c.generation[p.ID] + 1
			for _, ev := range res.Accepted() {
				ev.ReferredUserID = s.freeID(b, ev.ReferredUserID)
				joined := base.Add(eng.detector.ReferralDelayDuration())
				channel := s.pickChannel(eng)
				meta := map[string]interface{}{
					MetaGeneration: gen,
					MetaSynthetic:  true,
					MetaChannel:    channel,
				}
				if err := b.AddNode(ev.ReferredUserID, p.ID, joined, meta); err != nil {
					return nil, err
				}
				if err := b.AddEdge(p.ID, ev.ReferredUserID, joined, channel); err != nil {
					return nil, err
				}
				s.logger.Log(context.Background(), logging.LevelTrace, "invitation accepted",
					"referrer_id", p.ID,
					"referred_user_id", ev.ReferredUserID,
					"channel", channel)

				synth := s.syntheticPersona(ev.ReferredUserID, p)
				next.add(synth, gen, s.syntheticEvent(eng, synth.ID, p.ID, dec, joined))
			}
		}
	}
	return next, nil
}

// freeID returns id, or the next ids from the sequence while id is taken
// by a node or a reserved persona.
func (s *Simulator) freeID(b *graph.Builder, id string) string {
	for {
		_, taken := s.reserved[id]
		if !taken && !b.Has(id) {
			return id
		}
		id = s.ids.Next()
	}
}

func (s *Simulator) decide(eng engines, p models.PersonaProfile, events []models.TelemetryEvent) []trigger.Decision {
	if s.slice > 0 {
		return eng.detector.DetectBySlice(p, events, s.slice)
	}
	return []trigger.Decision{eng.detector.Detect(p, events)}
}

func (s *Simulator) observeDecision(stats *RunStats, dec trigger.Decision) {
	outcome := instrument.OutcomeDecline
	switch {
	case !dec.HasSignal:
		outcome = instrument.OutcomeNoSignal
		stats.NoSignal++
	case dec.ShouldRefer:
		outcome = instrument.OutcomeRefer
	}
	s.recorder.ObserveDecision(outcome)

	s.decisions.Log(map[string]any{
		"event":           "referral_decision",
		"persona_id":      dec.PersonaID,
		"outcome":         outcome,
		"probability":     dec.Probability,
		"delight":         dec.Delight,
		"trigger_action":  dec.TriggerAction,
		"trigger_matched": dec.TriggerMatched,
		"tech_adoption":   string(dec.TechAdoption),
		"collaboration":   string(dec.CollaborationStyle),
	})
	s.logger.Debug("referral decision",
		"persona_id", dec.PersonaID,
		"outcome", outcome,
		"probability", dec.Probability)
}

// referralBase is the moment a referral starts: the strongest delight
// event within the decision's slice, the slice start, or now.
func (s *Simulator) referralBase(dec trigger.Decision, events []models.TelemetryEvent) time.Time {
	for _, e := range events {
		if e.Action != dec.TriggerAction || e.Timestamp.IsZero() {
			continue
		}
		if !dec.SliceStart.IsZero() && !e.Timestamp.Truncate(s.slice).Equal(dec.SliceStart) {
			continue
		}
		if v, ok := e.DelightValue(); ok && v == dec.Delight {
			return e.Timestamp
		}
	}
	if !dec.SliceStart.IsZero() {
		return dec.SliceStart
	}
	return s.now()
}

func (s *Simulator) pickChannel(eng engines) string {
	ch := eng.config.Channels
	i := int(s.rng.Float64() * float64(len(ch)))
	if i >= len(ch) {
		i = len(ch) - 1
	}
	return ch[i]
}

// syntheticPersona builds the persona for a referred user under the
// simulator's policy.
func (s *Simulator) syntheticPersona(id string, referrer models.PersonaProfile) models.PersonaProfile {
	p := models.PersonaProfile{
		ID:         id,
		Attributes: map[string]interface{}{"referred_by": referrer.ID},
	}
	if s.policy == PolicyNeutral {
		p.TechAdoption = string(models.TechAdoptionUnknown)
		p.CollaborationStyle = string(models.CollaborationUnknown)
		return p
	}
	p.TechAdoption = referrer.TechAdoption
	p.CollaborationStyle = referrer.CollaborationStyle
	p.ReferralTriggers = append([]string(nil), referrer.ReferralTriggers...)
	p.DelightTriggers = append([]string(nil), referrer.DelightTriggers...)
	return p
}

// syntheticEvent gives a referred user a delight reading derived from its
// referrer's: decayed, then jittered uniformly.
func (s *Simulator) syntheticEvent(eng engines, id, referrerID string, dec trigger.Decision, at time.Time) models.TelemetryEvent {
	jitter := (s.rng.Float64()*2 - 1) * eng.config.SyntheticDelightJitter
	delight := math.Max(0, math.Min(1, dec.Delight*eng.config.SyntheticDelightDecay+jitter))
	return models.TelemetryEvent{
		PersonaID:      id,
		Action:         dec.TriggerAction,
		EmotionalState: models.EmotionalState{Delight: models.Float64Ptr(delight)},
		Timestamp:      at,
		Context: map[string]interface{}{
			"source":      "referral",
			"referrer_id": referrerID,
		},
	}
}
