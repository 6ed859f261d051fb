package database

import "errors"

// Domain errors surfaced by the transactional room operations. Handlers map
// these to HTTP status codes; the join/leave transactions are the single
// place the invariants are decided, so the errors originate here.
var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrRoomClosed       = errors.New("room is inactive or expired")
	ErrRoomFull         = errors.New("room is full")
	ErrAlreadyMember    = errors.New("user already in the room")
	ErrAlreadyElsewhere = errors.New("user already active in another room")
	ErrNotAMember       = errors.New("user not in the room")
	ErrDuplicateCode    = errors.New("room code already in use")
	ErrNotFound         = errors.New("not found")
)
