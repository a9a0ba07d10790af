package model

type Role int

const (
	RoleNone Role = iota
	RoleParticipant
	RoleModerator
	RoleHost
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleModerator:
		return "moderator"
	case RoleParticipant:
		return "participant"
	default:
		return "none"
	}
}

type Permission string

const (
	PermJoinRoom           Permission = "join_room"
	PermSendMessage        Permission = "send_message"
	PermCreateRoom         Permission = "create_room"
	PermModerate           Permission = "moderate"
	PermManageParticipants Permission = "manage_participants"
	PermEndSession         Permission = "end_session"
)
