package room

// Phase is the lifecycle stage of a room, derived from its membership and game state.
type Phase int

const (
	PhaseEmpty Phase = iota
	PhaseFilling
	PhaseInProgress
)

func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhaseFilling:
		return "filling"
	case PhaseInProgress:
		return "in_progress"
	default:
		return "unknown"
	}
}

// Role is the capacity in which an identity occupies a room.
type Role int

const (
	RolePlayer Role = iota
	RoleSpectator
)

func (r Role) String() string {
	if r == RoleSpectator {
		return "spectator"
	}
	return "player"
}
