package invitation

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/viralsim/internal/network"
)

var fixedNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newTestSimulator(t *testing.T, draws ...float64) *Simulator {
	t.Helper()
	engine := network.NewSocialProofEngine(network.DefaultConfig())
	return NewSimulator(engine, network.NewSequenceSource(draws...), WithClock(func() time.Time { return fixedNow }))
}

func TestSimulateInvitations_Zero(t *testing.T) {
	s := newTestSimulator(t, 0)
	for _, count := range []int{0, -3} {
		r := s.SimulateInvitations("ref", count, 100)
		if r.InvitationsSent != 0 || len(r.Events) != 0 || r.AcceptanceRate != 0 {
			t.Errorf("SimulateInvitations(count=%d) = %+v, want empty", count, r)
		}
	}
	if s.IDs().Peek() != 1 {
		t.Errorf("counter advanced to %d", s.IDs().Peek())
	}
}

func TestSimulateInvitations_Draws(t *testing.T) {
	// Network size 0 keeps the base rate 0.25.
	s := newTestSimulator(t, 0.1, 0.5, 0.2, 0.9)
	r := s.SimulateInvitations("ref", 4, 0)

	if r.InvitationsSent != 4 || r.InvitationsAccepted != 2 {
		t.Fatalf("sent/accepted = %d/%d, want 4/2", r.InvitationsSent, r.InvitationsAccepted)
	}
	if r.AcceptanceRate != 0.5 {
		t.Errorf("AcceptanceRate = %v, want 0.5", r.AcceptanceRate)
	}
	wantIDs := []string{"synthetic-user-1", "", "synthetic-user-2", ""}
	for i, e := range r.Events {
		if e.ReferredUserID != wantIDs[i] {
			t.Errorf("event %d ReferredUserID = %q, want %q", i, e.ReferredUserID, wantIDs[i])
		}
		if e.Accepted != (wantIDs[i] != "") {
			t.Errorf("event %d Accepted = %v", i, e.Accepted)
		}
		if e.ReferrerID != "ref" || !e.Timestamp.Equal(fixedNow) {
			t.Errorf("event %d = %+v", i, e)
		}
	}
	if got := len(r.Accepted()); got != 2 {
		t.Errorf("len(Accepted()) = %d, want 2", got)
	}
}

func TestSimulateInvitations_SocialProofRaisesRate(t *testing.T) {
	// 0.4 misses the base rate 0.25 but hits the saturated rate 0.5.
	small := newTestSimulator(t, 0.4).SimulateInvitations("ref", 5, 0)
	large := newTestSimulator(t, 0.4).SimulateInvitations("ref", 5, 1_000_000)
	if small.InvitationsAccepted != 0 {
		t.Errorf("small network accepted %d, want 0", small.InvitationsAccepted)
	}
	if large.InvitationsAccepted != 5 {
		t.Errorf("large network accepted %d, want 5", large.InvitationsAccepted)
	}
}

func TestSimulateInvitations_UniqueIDsUntilReset(t *testing.T) {
	s := newTestSimulator(t, 0) // accept everything
	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		for _, e := range s.SimulateInvitations("ref", 3, 10).Accepted() {
			if seen[e.ReferredUserID] {
				t.Fatalf("duplicate id %s", e.ReferredUserID)
			}
			seen[e.ReferredUserID] = true
		}
	}
	if len(seen) != 15 {
		t.Errorf("got %d unique ids, want 15", len(seen))
	}

	s.ResetUserIDCounter(1)
	r := s.SimulateInvitations("ref", 1, 10)
	if got := r.Events[0].ReferredUserID; got != "synthetic-user-1" {
		t.Errorf("after reset id = %q, want synthetic-user-1", got)
	}

	s.ResetUserIDCounter(100)
	r = s.SimulateInvitations("ref", 1, 10)
	if got := r.Events[0].ReferredUserID; got != "synthetic-user-100" {
		t.Errorf("after reset(100) id = %q, want synthetic-user-100", got)
	}
}

func TestSimulators_HaveIndependentCounters(t *testing.T) {
	a := newTestSimulator(t, 0)
	b := newTestSimulator(t, 0)
	a.SimulateInvitations("ref", 3, 1)
	r := b.SimulateInvitations("ref", 1, 1)
	if got := r.Events[0].ReferredUserID; got != "synthetic-user-1" {
		t.Errorf("second simulator id = %q, want synthetic-user-1", got)
	}
}

func TestSimulateBatchInvitations(t *testing.T) {
	t.Run("length mismatch", func(t *testing.T) {
		s := newTestSimulator(t, 0)
		_, err := s.SimulateBatchInvitations([]string{"a", "b"}, []int{5}, 10)
		if !errors.Is(err, ErrLengthMismatch) {
			t.Fatalf("error = %v, want ErrLengthMismatch", err)
		}
		if !strings.Contains(err.Error(), "2 referrer ids, 1 counts") {
			t.Errorf("error message %q lacks lengths", err)
		}
		if s.IDs().Peek() != 1 {
			t.Error("mismatch consumed ids")
		}
	})

	t.Run("empty", func(t *testing.T) {
		s := newTestSimulator(t, 0)
		r, err := s.SimulateBatchInvitations(nil, nil, 10)
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if r.InvitationsSent != 0 || len(r.Events) != 0 || r.AcceptanceRate != 0 {
			t.Errorf("result = %+v, want empty", r)
		}
	})

	t.Run("combines referrers", func(t *testing.T) {
		s := newTestSimulator(t, 0.1, 0.9)
		r, err := s.SimulateBatchInvitations([]string{"a", "b", "c"}, []int{2, 0, 2}, 0)
		if err != nil {
			t.Fatalf("error = %v", err)
		}
		if r.InvitationsSent != 4 || r.InvitationsAccepted != 2 || r.AcceptanceRate != 0.5 {
			t.Errorf("result totals = %d/%d/%v", r.InvitationsSent, r.InvitationsAccepted, r.AcceptanceRate)
		}
		if r.Events[0].ReferrerID != "a" || r.Events[3].ReferrerID != "c" {
			t.Errorf("events out of order: %+v", r.Events)
		}
	})
}

func TestIDSequence(t *testing.T) {
	seq := NewIDSequence("b2-", 7)
	if got := seq.Next(); got != "b2-7" {
		t.Errorf("Next() = %q, want b2-7", got)
	}
	if seq.Peek() != 8 {
		t.Errorf("Peek() = %d, want 8", seq.Peek())
	}
	if NewIDSequence("", 1).Prefix() != DefaultIDPrefix {
		t.Error("empty prefix did not fall back to the default")
	}
}
