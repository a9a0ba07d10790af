package rooms

import "errors"

var (
	ErrClosed                 = errors.New("controller closed")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrInvalidName            = errors.New("room name must not be empty")
	ErrInvalidCapacity        = errors.New("room capacity must be between 2 and 20")
	ErrUnknownFacilitator     = errors.New("facilitator is not a session participant")
	ErrRoomNotFound           = errors.New("room not found")
	ErrRoomNotActive          = errors.New("room is not accepting participants")
	ErrRoomFull               = errors.New("room is full")
	ErrAlreadyInRoom          = errors.New("already in a room, leave it first")
	ErrNotInRoom              = errors.New("not in a room")
	ErrJoinPending            = errors.New("a join is already pending")
	ErrCreatePending          = errors.New("a room creation is already pending")
	ErrJoinTimeout            = errors.New("no join confirmation from server")
	ErrCreateTimeout          = errors.New("no creation confirmation from server")
	ErrRoomClosedWhilePending = errors.New("room closed before join confirmation")
	ErrNoRooms                = errors.New("no rooms to assign participants to")
)
