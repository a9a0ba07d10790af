package model

// Socket event names shared by the coordinator and the backend. Outbound
// events are commands; inbound events are broadcasts the coordinator
// reconciles against.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventCreateRoom  = "create_room"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"

	EventRoomCreated             = "room_created"
	EventRoomJoined              = "room_joined"
	EventRoomLeft                = "room_left"
	EventRoomClosed              = "room_closed"
	EventAutoAssignmentCompleted = "auto_assignment_completed"
	EventParticipantJoined       = "participant_joined"
	EventParticipantLeft         = "participant_left"
)
