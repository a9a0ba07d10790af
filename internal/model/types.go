package model

type ConnectionStatus string

const (
	ConnStatusConnected    ConnectionStatus = "connected"
	ConnStatusReconnecting ConnectionStatus = "reconnecting"
	ConnStatusDisconnected ConnectionStatus = "disconnected"
)

type Participant struct {
	ID          string
	Alias       string
	IsHost      bool
	IsModerator bool
	Connection  ConnectionStatus
	Muted       bool
	HandRaised  bool
}

type SessionFlags struct {
	Moderation       bool
	Recording        bool
	AnonymousAllowed bool
}

type Session struct {
	ID           string
	HostID       string
	Participants []Participant
	Capacity     int
	Flags        SessionFlags
	CreatedAt    int64
	UpdatedAt    int64
}

func (s Session) Participant(id string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

type RoomStatus string

const (
	RoomStatusWaiting RoomStatus = "waiting"
	RoomStatusActive  RoomStatus = "active"
	RoomStatusEnded   RoomStatus = "ended"
)

// ChannelRef points at the audio transport for a room. The coordinator treats
// it as opaque: channel name and join token are handed to the media layer
// unmodified.
type ChannelRef struct {
	Name  string
	Token string
}

type RoomParticipant struct {
	ID    string
	Alias string
}

type BreakoutRoom struct {
	ID              string
	Name            string
	Topic           string
	CreatorID       string
	CreatorAlias    string
	MaxParticipants int
	Participants    []RoomParticipant
	Status          RoomStatus
	Channel         ChannelRef
	CreatedAt       int64
	ClosesAt        int64
}

// Joinable reports whether the room accepts new members. A waiting room has
// been created but has no participants yet and is join-eligible like an
// active one.
func (r BreakoutRoom) Joinable() bool {
	return r.Status == RoomStatusWaiting || r.Status == RoomStatusActive
}

func (r BreakoutRoom) Full() bool {
	return r.MaxParticipants > 0 && len(r.Participants) >= r.MaxParticipants
}

// Identity holds the claims the coordinator derives from a bearer token.
type Identity struct {
	UserID    string
	IssuedAt  int64
	ExpiresAt int64
}
