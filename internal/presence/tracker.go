// Package presence maintains the roster of main-session participants and
// their live attributes. The roster feeds the permission resolver and the
// breakout-room eligibility checks.
package presence

import (
	"sync"

	"sanctuary-client/internal/model"
)

// Tracker is rebuilt from REST snapshots; roster events are treated as
// refetch triggers by the owner rather than applied verbatim, so the only
// local mutations are the optimistic mute/hand-raise toggles.
type Tracker struct {
	mu      sync.RWMutex
	session model.Session
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Replace installs a fresh session snapshot, superseding all local state.
func (t *Tracker) Replace(session model.Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.session = session
}

// Session returns a copy of the current snapshot.
func (t *Tracker) Session() model.Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := t.session
	out.Participants = make([]model.Participant, len(t.session.Participants))
	copy(out.Participants, t.session.Participants)
	return out
}

func (t *Tracker) IsParticipant(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.session.Participant(id)
	return ok
}

func (t *Tracker) Roster() []model.Participant {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]model.Participant, len(t.session.Participants))
	copy(out, t.session.Participants)
	return out
}

// SetMuted applies an optimistic local mute toggle, reconciled by the next
// snapshot. Returns false when the participant is unknown.
func (t *Tracker) SetMuted(id string, muted bool) bool {
	return t.mutate(id, func(p *model.Participant) { p.Muted = muted })
}

// SetHandRaised applies an optimistic local hand-raise toggle.
func (t *Tracker) SetHandRaised(id string, raised bool) bool {
	return t.mutate(id, func(p *model.Participant) { p.HandRaised = raised })
}

func (t *Tracker) SetConnection(id string, status model.ConnectionStatus) bool {
	return t.mutate(id, func(p *model.Participant) { p.Connection = status })
}

func (t *Tracker) mutate(id string, fn func(*model.Participant)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.session.Participants {
		if t.session.Participants[i].ID == id {
			fn(&t.session.Participants[i])
			return true
		}
	}
	return false
}
