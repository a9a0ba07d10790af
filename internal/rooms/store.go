// Package rooms holds the client-side cache of breakout rooms for a session
// and the lifecycle controller that mutates it.
package rooms

import (
	"sync"

	"sanctuary-client/internal/model"
)

// Store reconciles two update sources into one list keyed by room id: REST
// snapshots are a full replace, incremental events are targeted upserts or
// deletes. A room id that has ended stays tombstoned for the life of the
// store so a stale duplicate event can never resurrect it; the same id
// reappearing in an authoritative snapshot is a distinct entity and clears
// the tombstone.
type Store struct {
	mu         sync.RWMutex
	roomsByID  map[string]model.BreakoutRoom
	order      []string
	tombstones map[string]struct{}
}

func NewStore() *Store {
	return &Store{
		roomsByID:  make(map[string]model.BreakoutRoom),
		tombstones: make(map[string]struct{}),
	}
}

// Replace installs a snapshot as the whole truth. Rooms the snapshot omits
// are removed and tombstoned; rooms it contains are authoritative even for a
// previously tombstoned id.
func (s *Store) Replace(rooms []model.BreakoutRoom) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]model.BreakoutRoom, len(rooms))
	order := make([]string, 0, len(rooms))
	for _, r := range rooms {
		if r.ID == "" {
			continue
		}
		if _, dup := next[r.ID]; dup {
			next[r.ID] = r
			continue
		}
		next[r.ID] = r
		order = append(order, r.ID)
		delete(s.tombstones, r.ID)
	}

	for id := range s.roomsByID {
		if _, ok := next[id]; !ok {
			s.tombstones[id] = struct{}{}
		}
	}

	s.roomsByID = next
	s.order = order
}

// ApplyCreated upserts one room, idempotent on id. Events for a tombstoned
// or ended room are dropped: the lifecycle is monotonic.
func (s *Store) ApplyCreated(room model.BreakoutRoom) bool {
	if room.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dead := s.tombstones[room.ID]; dead {
		return false
	}
	if room.Status == model.RoomStatusEnded {
		s.removeLocked(room.ID)
		return false
	}

	if _, exists := s.roomsByID[room.ID]; !exists {
		s.order = append(s.order, room.ID)
	}
	s.roomsByID[room.ID] = room
	return true
}

// ApplyClosed removes the room unconditionally and tombstones the id.
func (s *Store) ApplyClosed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *Store) removeLocked(id string) {
	delete(s.roomsByID, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.tombstones[id] = struct{}{}
}

func (s *Store) Get(id string) (model.BreakoutRoom, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.roomsByID[id]
	if ok {
		room.Participants = copyParticipants(room.Participants)
	}
	return room, ok
}

// List returns rooms in creation order.
func (s *Store) List() []model.BreakoutRoom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.BreakoutRoom, 0, len(s.order))
	for _, id := range s.order {
		room := s.roomsByID[id]
		room.Participants = copyParticipants(room.Participants)
		out = append(out, room)
	}
	return out
}

// ListVisible is List with each room's participants filtered against the
// session roster. The roster is authoritative for who exists; a room-level
// entry with no roster counterpart is divergence and is hidden, not trusted.
func (s *Store) ListVisible(session model.Session) []model.BreakoutRoom {
	rooms := s.List()
	for i := range rooms {
		filtered := rooms[i].Participants[:0]
		for _, p := range rooms[i].Participants {
			if _, ok := session.Participant(p.ID); ok {
				filtered = append(filtered, p)
			}
		}
		rooms[i].Participants = filtered
	}
	return rooms
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.roomsByID)
}

func copyParticipants(in []model.RoomParticipant) []model.RoomParticipant {
	out := make([]model.RoomParticipant, len(in))
	copy(out, in)
	return out
}
