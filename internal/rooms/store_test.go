package rooms

import (
	"testing"

	"sanctuary-client/internal/model"
)

func room(id, name string, capacity int, participants ...string) model.BreakoutRoom {
	ps := make([]model.RoomParticipant, 0, len(participants))
	for _, p := range participants {
		ps = append(ps, model.RoomParticipant{ID: p})
	}
	return model.BreakoutRoom{
		ID:              id,
		Name:            name,
		MaxParticipants: capacity,
		Participants:    ps,
		Status:          model.RoomStatusActive,
	}
}

func TestStore_CreatedIsIdempotent(t *testing.T) {
	s := NewStore()

	s.ApplyCreated(room("r1", "Circle A", 4))
	s.ApplyCreated(room("r1", "Circle A renamed", 6))

	if s.Len() != 1 {
		t.Fatalf("expected 1 room, got %d", s.Len())
	}
	got, ok := s.Get("r1")
	if !ok {
		t.Fatalf("expected r1")
	}
	if got.Name != "Circle A renamed" || got.MaxParticipants != 6 {
		t.Fatalf("expected latest attributes, got %+v", got)
	}
}

func TestStore_ClosedIsTerminal(t *testing.T) {
	s := NewStore()

	s.ApplyCreated(room("r1", "Circle A", 4))
	s.ApplyClosed("r1")
	if _, ok := s.Get("r1"); ok {
		t.Fatalf("expected r1 removed")
	}

	// A stale duplicate delivered after the close must not resurrect it.
	if s.ApplyCreated(room("r1", "Circle A", 4)) {
		t.Fatalf("expected create for closed id to be dropped")
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d", s.Len())
	}
}

func TestStore_SnapshotOmissionClosesRoom(t *testing.T) {
	s := NewStore()

	s.ApplyCreated(room("r1", "Circle A", 4))
	s.ApplyCreated(room("r2", "Circle B", 4))

	s.Replace([]model.BreakoutRoom{room("r2", "Circle B", 4)})

	if s.Len() != 1 {
		t.Fatalf("expected 1 room, got %d", s.Len())
	}
	if _, ok := s.Get("r1"); ok {
		t.Fatalf("expected r1 removed by snapshot omission")
	}
	if s.ApplyCreated(room("r1", "Circle A", 4)) {
		t.Fatalf("omission counts as closed, late event must not re-insert")
	}
}

func TestStore_SnapshotIsAuthoritativeOverTombstone(t *testing.T) {
	s := NewStore()

	s.ApplyCreated(room("r1", "Circle A", 4))
	s.ApplyClosed("r1")

	// The same id in a fresh authoritative snapshot is a distinct entity.
	s.Replace([]model.BreakoutRoom{room("r1", "Circle A v2", 4)})
	got, ok := s.Get("r1")
	if !ok || got.Name != "Circle A v2" {
		t.Fatalf("expected snapshot to reinstall r1, got %+v ok=%v", got, ok)
	}
}

func TestStore_CreatedNeverRemovesOthers(t *testing.T) {
	s := NewStore()

	s.ApplyCreated(room("r1", "Circle A", 4))
	s.ApplyCreated(room("r2", "Circle B", 4))
	s.ApplyCreated(room("r3", "Circle C", 4))

	if s.Len() != 3 {
		t.Fatalf("expected 3 rooms, got %d", s.Len())
	}
}

func TestStore_ListCreationOrder(t *testing.T) {
	s := NewStore()

	s.ApplyCreated(room("r2", "B", 4))
	s.ApplyCreated(room("r1", "A", 4))
	s.ApplyCreated(room("r3", "C", 4))

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 rooms, got %d", len(list))
	}
	if list[0].ID != "r2" || list[1].ID != "r1" || list[2].ID != "r3" {
		t.Fatalf("expected creation order, got %v", []string{list[0].ID, list[1].ID, list[2].ID})
	}
}

func TestStore_EndedStatusDropped(t *testing.T) {
	s := NewStore()

	ended := room("r1", "Circle A", 4)
	ended.Status = model.RoomStatusEnded
	if s.ApplyCreated(ended) {
		t.Fatalf("expected ended room dropped")
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestStore_VisibleParticipantsFilteredByRoster(t *testing.T) {
	s := NewStore()
	s.ApplyCreated(room("r1", "Circle A", 4, "u1", "ghost"))

	session := model.Session{
		ID:           "s1",
		Participants: []model.Participant{{ID: "u1"}},
	}
	visible := s.ListVisible(session)
	if len(visible) != 1 {
		t.Fatalf("expected 1 room, got %d", len(visible))
	}
	if len(visible[0].Participants) != 1 || visible[0].Participants[0].ID != "u1" {
		t.Fatalf("expected roster-filtered participants, got %v", visible[0].Participants)
	}

	// The filter is a view: the store itself still holds the raw list.
	raw, _ := s.Get("r1")
	if len(raw.Participants) != 2 {
		t.Fatalf("expected raw participants untouched, got %v", raw.Participants)
	}
}
