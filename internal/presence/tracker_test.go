package presence

import (
	"testing"

	"sanctuary-client/internal/model"
)

func snapshot() model.Session {
	return model.Session{
		ID:     "s1",
		HostID: "h1",
		Participants: []model.Participant{
			{ID: "h1", Alias: "Host", IsHost: true},
			{ID: "p1", Alias: "Anon"},
		},
	}
}

func TestTracker_ReplaceAndRead(t *testing.T) {
	tr := NewTracker()
	tr.Replace(snapshot())

	if !tr.IsParticipant("p1") || tr.IsParticipant("ghost") {
		t.Fatalf("unexpected roster membership")
	}
	if len(tr.Roster()) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(tr.Roster()))
	}
}

func TestTracker_SessionReturnsCopy(t *testing.T) {
	tr := NewTracker()
	tr.Replace(snapshot())

	s := tr.Session()
	s.Participants[0].Alias = "mutated"

	if tr.Roster()[0].Alias != "Host" {
		t.Fatalf("expected internal state unchanged")
	}
}

func TestTracker_OptimisticMutations(t *testing.T) {
	tr := NewTracker()
	tr.Replace(snapshot())

	if !tr.SetMuted("p1", true) {
		t.Fatalf("expected mutation to apply")
	}
	if !tr.SetHandRaised("p1", true) {
		t.Fatalf("expected mutation to apply")
	}
	p, _ := tr.Session().Participant("p1")
	if !p.Muted || !p.HandRaised {
		t.Fatalf("expected optimistic flags set, got %+v", p)
	}

	if tr.SetMuted("ghost", true) {
		t.Fatalf("expected unknown participant rejected")
	}
}

func TestTracker_SnapshotSupersedesOptimisticState(t *testing.T) {
	tr := NewTracker()
	tr.Replace(snapshot())
	tr.SetMuted("p1", true)

	tr.Replace(snapshot())
	p, _ := tr.Session().Participant("p1")
	if p.Muted {
		t.Fatalf("expected snapshot to win over optimistic flag")
	}
}
