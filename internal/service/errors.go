package service

import "errors"

// Failure taxonomy shared by the chat, room and message services. Handlers
// map these onto HTTP statuses; the websocket layer reports them to the
// initiating connection only.
var (
	// ErrValidation indicates malformed or missing required input. Nothing
	// was persisted or delivered.
	ErrValidation = errors.New("invalid request")

	// ErrAuthorization indicates the sender is not allowed to act on the
	// target: not a room member, or not the message owner.
	ErrAuthorization = errors.New("not authorised")

	// ErrNotFound indicates the referenced room, message or user is absent.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a duplicate room name or an already-held
	// membership.
	ErrConflict = errors.New("conflict")

	// ErrCapacity indicates the room member limit has been reached.
	ErrCapacity = errors.New("room is full")

	// ErrAdminLeave indicates the admin tried to abandon a room that still
	// has other members.
	ErrAdminLeave = errors.New("admin cannot leave room with other members")

	// ErrInactiveRoom indicates the room has been deactivated.
	ErrInactiveRoom = errors.New("room is no longer active")

	// ErrNotMember indicates the user does not belong to the room.
	ErrNotMember = errors.New("not a member of this room")

	// ErrPersistence indicates the durable store rejected a write on the
	// critical send or create path.
	ErrPersistence = errors.New("persistence failure")
)
