package rest

import "sanctuary-client/internal/model"

// Wire shapes as the backend serializes them. Fields are best effort: absent
// or malformed ones degrade to zero values, and callers refetch on ambiguity
// rather than guessing.

type participantDTO struct {
	ID          string `json:"id"`
	Alias       string `json:"alias"`
	IsHost      bool   `json:"isHost"`
	IsModerator bool   `json:"isModerator"`
	Connection  string `json:"connectionStatus"`
	Muted       bool   `json:"muted"`
	HandRaised  bool   `json:"handRaised"`
}

type sessionDTO struct {
	ID           string           `json:"id"`
	HostID       string           `json:"hostId"`
	Participants []participantDTO `json:"participants"`
	Capacity     int              `json:"capacity"`
	Flags        struct {
		Moderation       bool `json:"moderation"`
		Recording        bool `json:"recording"`
		AnonymousAllowed bool `json:"anonymousAllowed"`
	} `json:"flags"`
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

func (d sessionDTO) toModel() model.Session {
	participants := make([]model.Participant, 0, len(d.Participants))
	for _, p := range d.Participants {
		participants = append(participants, p.toModel())
	}
	return model.Session{
		ID:           d.ID,
		HostID:       d.HostID,
		Participants: participants,
		Capacity:     d.Capacity,
		Flags: model.SessionFlags{
			Moderation:       d.Flags.Moderation,
			Recording:        d.Flags.Recording,
			AnonymousAllowed: d.Flags.AnonymousAllowed,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (d participantDTO) toModel() model.Participant {
	conn := model.ConnectionStatus(d.Connection)
	switch conn {
	case model.ConnStatusConnected, model.ConnStatusReconnecting, model.ConnStatusDisconnected:
	default:
		conn = model.ConnStatusConnected
	}
	return model.Participant{
		ID:          d.ID,
		Alias:       d.Alias,
		IsHost:      d.IsHost,
		IsModerator: d.IsModerator,
		Connection:  conn,
		Muted:       d.Muted,
		HandRaised:  d.HandRaised,
	}
}

type roomParticipantDTO struct {
	ID    string `json:"id"`
	Alias string `json:"alias"`
}

type RoomDTO struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Topic           string               `json:"topic"`
	CreatorID       string               `json:"creatorId"`
	CreatorAlias    string               `json:"creatorAlias"`
	MaxParticipants int                  `json:"maxParticipants"`
	Participants    []roomParticipantDTO `json:"participants"`
	Status          string               `json:"status"`
	ChannelName     string               `json:"channelName"`
	ChannelToken    string               `json:"channelToken"`
	CreatedAt       int64                `json:"createdAt"`
	ClosesAt        int64                `json:"closesAt"`
}

func (d RoomDTO) ToModel() model.BreakoutRoom {
	participants := make([]model.RoomParticipant, 0, len(d.Participants))
	for _, p := range d.Participants {
		participants = append(participants, model.RoomParticipant{ID: p.ID, Alias: p.Alias})
	}
	status := model.RoomStatus(d.Status)
	switch status {
	case model.RoomStatusWaiting, model.RoomStatusActive, model.RoomStatusEnded:
	default:
		status = model.RoomStatusActive
	}
	return model.BreakoutRoom{
		ID:              d.ID,
		Name:            d.Name,
		Topic:           d.Topic,
		CreatorID:       d.CreatorID,
		CreatorAlias:    d.CreatorAlias,
		MaxParticipants: d.MaxParticipants,
		Participants:    participants,
		Status:          status,
		Channel:         model.ChannelRef{Name: d.ChannelName, Token: d.ChannelToken},
		CreatedAt:       d.CreatedAt,
		ClosesAt:        d.ClosesAt,
	}
}
