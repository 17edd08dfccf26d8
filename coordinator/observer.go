package coordinator

import (
	"go.uber.org/zap"

	"github.com/wfunc/thegame/room"
)

// Observer receives every state transition the coordinator makes. Calls happen
// while the coordinator holds its lock, so implementations must not call back in.
type Observer interface {
	RoomCreated(roomName string)
	RoomCleared(roomName string)
	RoomDestroyed(roomName string)
	PhaseChanged(roomName string, from, to room.Phase)
	MemberJoined(roomName, name string, role room.Role)
	MemberLeft(roomName, name string, role room.Role)
	SpectatorKicked(roomName, name string)
	GameStarted(roomName string, players []string)
	Refused(op Op, roomName, name string, err error)
}

// NopObserver ignores everything. Embed it to implement a subset of Observer.
type NopObserver struct{}

func (NopObserver) RoomCreated(string)                          {}
func (NopObserver) RoomCleared(string)                          {}
func (NopObserver) RoomDestroyed(string)                        {}
func (NopObserver) PhaseChanged(string, room.Phase, room.Phase) {}
func (NopObserver) MemberJoined(string, string, room.Role)      {}
func (NopObserver) MemberLeft(string, string, room.Role)        {}
func (NopObserver) SpectatorKicked(string, string)              {}
func (NopObserver) GameStarted(string, []string)                {}
func (NopObserver) Refused(Op, string, string, error)           {}

// Observers fans each call out to every element.
type Observers []Observer

func (o Observers) RoomCreated(roomName string) {
	for _, ob := range o {
		ob.RoomCreated(roomName)
	}
}

func (o Observers) RoomCleared(roomName string) {
	for _, ob := range o {
		ob.RoomCleared(roomName)
	}
}

func (o Observers) RoomDestroyed(roomName string) {
	for _, ob := range o {
		ob.RoomDestroyed(roomName)
	}
}

func (o Observers) PhaseChanged(roomName string, from, to room.Phase) {
	for _, ob := range o {
		ob.PhaseChanged(roomName, from, to)
	}
}

func (o Observers) MemberJoined(roomName, name string, role room.Role) {
	for _, ob := range o {
		ob.MemberJoined(roomName, name, role)
	}
}

func (o Observers) MemberLeft(roomName, name string, role room.Role) {
	for _, ob := range o {
		ob.MemberLeft(roomName, name, role)
	}
}

func (o Observers) SpectatorKicked(roomName, name string) {
	for _, ob := range o {
		ob.SpectatorKicked(roomName, name)
	}
}

func (o Observers) GameStarted(roomName string, players []string) {
	for _, ob := range o {
		ob.GameStarted(roomName, players)
	}
}

func (o Observers) Refused(op Op, roomName, name string, err error) {
	for _, ob := range o {
		ob.Refused(op, roomName, name, err)
	}
}

// LogObserver writes coordinator events to a structured log.
type LogObserver struct {
	log *zap.SugaredLogger
}

func NewLogObserver(log *zap.SugaredLogger) *LogObserver {
	return &LogObserver{log: log}
}

func (l *LogObserver) RoomCreated(roomName string) {
	l.log.Infow("room created", "room", roomName)
}

func (l *LogObserver) RoomCleared(roomName string) {
	l.log.Infow("room cleared", "room", roomName)
}

func (l *LogObserver) RoomDestroyed(roomName string) {
	l.log.Infow("room removed", "room", roomName)
}

func (l *LogObserver) PhaseChanged(roomName string, from, to room.Phase) {
	l.log.Debugw("room phase changed", "room", roomName, "from", from.String(), "to", to.String())
}

func (l *LogObserver) MemberJoined(roomName, name string, role room.Role) {
	l.log.Infow("joined room", "room", roomName, "player", name, "role", role.String())
}

func (l *LogObserver) MemberLeft(roomName, name string, role room.Role) {
	l.log.Infow("left room", "room", roomName, "player", name, "role", role.String())
}

func (l *LogObserver) SpectatorKicked(roomName, name string) {
	l.log.Infow("kicking spectator", "room", roomName, "player", name)
}

func (l *LogObserver) GameStarted(roomName string, players []string) {
	l.log.Infow("game started", "room", roomName, "players", players)
}

func (l *LogObserver) Refused(op Op, roomName, name string, err error) {
	l.log.Warnw("request refused", "op", string(op), "room", roomName, "player", name, "reason", err.Error())
}
