package coordinator

import (
	"errors"

	"github.com/wfunc/thegame/room"
)

var (
	ErrRoomNotFound     = room.ErrRoomNotFound
	ErrInvalidRoomName  = errors.New("invalid room name")
	ErrRoomExists       = errors.New("room already exists")
	ErrRoomLimitReached = errors.New("room limit reached")
	ErrRoomFull         = errors.New("room is full")
	ErrSpectatorsFull   = errors.New("no spectator slots left")
	ErrGameInProgress   = errors.New("game in progress")
	ErrAlreadyInRoom    = errors.New("already in room")
	ErrNotInRoom        = errors.New("not in room")
	ErrGameNotStarted   = errors.New("game did not start")
)

// Op names a coordinator operation for observers.
type Op string

const (
	OpCreate         Op = "create"
	OpJoin           Op = "join"
	OpSpectate       Op = "spectate"
	OpStart          Op = "start"
	OpLeave          Op = "leave"
	OpStopSpectating Op = "stop_spectating"
	OpGame           Op = "game"
	OpRetain         Op = "retain"
)
