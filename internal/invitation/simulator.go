// Package invitation simulates referral invitations and their acceptance.
package invitation

import (
	"errors"
	"fmt"
	"time"

	"github.com/nvandessel/viralsim/internal/network"
)

// ErrLengthMismatch is returned by SimulateBatchInvitations when the id and
// count slices differ in length.
var ErrLengthMismatch = errors.New("referrer ids and counts must have the same length")

// Event is one invitation. ReferredUserID is set only when it was accepted.
type Event struct {
	ReferrerID     string    `json:"referrer_id"`
	ReferredUserID string    `json:"referred_user_id,omitempty"`
	Accepted       bool      `json:"accepted"`
	Timestamp      time.Time `json:"timestamp"`
}

// Result summarizes a set of invitations.
type Result struct {
	InvitationsSent     int     `json:"invitations_sent"`
	InvitationsAccepted int     `json:"invitations_accepted"`
	AcceptanceRate      float64 `json:"acceptance_rate"`
	Events              []Event `json:"events"`
}

// Accepted returns the accepted events in order.
func (r Result) Accepted() []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Accepted {
			out = append(out, e)
		}
	}
	return out
}

func (r *Result) add(other Result) {
	r.InvitationsSent += other.InvitationsSent
	r.InvitationsAccepted += other.InvitationsAccepted
	r.Events = append(r.Events, other.Events...)
	r.AcceptanceRate = acceptanceRate(r.InvitationsAccepted, r.InvitationsSent)
}

func acceptanceRate(accepted, sent int) float64 {
	if sent <= 0 {
		return 0
	}
	return float64(accepted) / float64(sent)
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithIDSequence uses seq for new user ids instead of a fresh default one.
func WithIDSequence(seq *IDSequence) Option {
	return func(s *Simulator) {
		if seq != nil {
			s.ids = seq
		}
	}
}

// WithClock sets the time source for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		if now != nil {
			s.now = now
		}
	}
}

// Simulator draws invitation outcomes at the social proof adjusted rate.
type Simulator struct {
	socialProof *network.SocialProofEngine
	rng         network.RandomSource
	ids         *IDSequence
	now         func() time.Time
}

// NewSimulator creates a simulator bound to one social proof engine. A nil
// rng uses the entropy source.
func NewSimulator(engine *network.SocialProofEngine, rng network.RandomSource, opts ...Option) *Simulator {
	if rng == nil {
		rng = network.EntropySource()
	}
	s := &Simulator{
		socialProof: engine,
		rng:         rng,
		ids:         NewIDSequence(DefaultIDPrefix, 1),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IDs returns the simulator's id sequence.
func (s *Simulator) IDs() *IDSequence {
	return s.ids
}

// SimulateInvitations sends count invitations from referrerID. Each is
// accepted independently with the conversion rate for networkSize; accepted
// invitations get a new user id. A count <= 0 yields an empty result.
func (s *Simulator) SimulateInvitations(referrerID string, count, networkSize int) Result {
	result := Result{Events: []Event{}}
	if count <= 0 {
		return result
	}

	rate := s.socialProof.CalculateConversionRate(networkSize).AdjustedRate
	ts := s.now()
	result.Events = make([]Event, 0, count)
	for i := 0; i < count; i++ {
		ev := Event{ReferrerID: referrerID, Timestamp: ts}
		if s.rng.Float64() < rate {
			ev.Accepted = true
			ev.ReferredUserID = s.ids.Next()
			result.InvitationsAccepted++
		}
		result.Events = append(result.Events, ev)
	}
	result.InvitationsSent = count
	result.AcceptanceRate = acceptanceRate(result.InvitationsAccepted, result.InvitationsSent)
	return result
}

// SimulateBatchInvitations runs SimulateInvitations for each referrer with
// the matching count, all at the same network size, and combines the
// results. Nothing is drawn when the slices differ in length.
func (s *Simulator) SimulateBatchInvitations(referrerIDs []string, counts []int, networkSize int) (Result, error) {
	if len(referrerIDs) != len(counts) {
		return Result{}, fmt.Errorf("%w: %d referrer ids, %d counts", ErrLengthMismatch, len(referrerIDs), len(counts))
	}

	total := Result{Events: []Event{}}
	for i, id := range referrerIDs {
		total.add(s.SimulateInvitations(id, counts[i], networkSize))
	}
	return total, nil
}

// ResetUserIDCounter restarts synthetic user ids at start.
func (s *Simulator) ResetUserIDCounter(start int) {
	s.ids.Reset(start)
}
