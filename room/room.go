// room/room.go
package room

import (
	"encoding/json"
	"slices"
)

// Room 是一局游戏的容器：玩家、观战者以及游戏状态
type Room[G GameState] struct {
	name       string
	players    []string // 加入顺序
	spectators []string
	game       G
}

// NewRoom 创建一个没有成员的新房间
func NewRoom[G GameState](name string, game G) *Room[G] {
	return &Room[G]{
		name:       name,
		players:    make([]string, 0),
		spectators: make([]string, 0),
		game:       game,
	}
}

func (r *Room[G]) Name() string {
	return r.name
}

// Game returns the room's game state.
func (r *Room[G]) Game() G {
	return r.game
}

// Players returns a copy of the player list in join order.
func (r *Room[G]) Players() []string {
	return slices.Clone(r.players)
}

// Spectators returns a copy of the spectator list.
func (r *Room[G]) Spectators() []string {
	return slices.Clone(r.spectators)
}

func (r *Room[G]) PlayerCount() int {
	return len(r.players)
}

func (r *Room[G]) SpectatorCount() int {
	return len(r.spectators)
}

func (r *Room[G]) HasPlayer(name string) bool {
	return slices.Contains(r.players, name)
}

func (r *Room[G]) HasSpectator(name string) bool {
	return slices.Contains(r.spectators, name)
}

// IsMember reports whether name occupies the room in either role.
func (r *Room[G]) IsMember(name string) bool {
	return r.HasPlayer(name) || r.HasSpectator(name)
}

// IsInProgress reports whether the game engine considers the game started.
func (r *Room[G]) IsInProgress() bool {
	return r.game.IsInProgress()
}

// Phase derives the room's lifecycle stage.
func (r *Room[G]) Phase() Phase {
	switch {
	case r.game.IsInProgress():
		return PhaseInProgress
	case len(r.players) == 0 && len(r.spectators) == 0:
		return PhaseEmpty
	default:
		return PhaseFilling
	}
}

// AddPlayer 添加玩家；已经是成员时返回 false
func (r *Room[G]) AddPlayer(name string) bool {
	if r.IsMember(name) {
		return false
	}
	r.players = append(r.players, name)
	r.game.AddPlayer(name)
	return true
}

// RemovePlayer 移除玩家；不在房间中时返回 false
func (r *Room[G]) RemovePlayer(name string) bool {
	i := slices.Index(r.players, name)
	if i < 0 {
		return false
	}
	r.players = slices.Delete(r.players, i, i+1)
	r.game.RemovePlayer(name)
	return true
}

// AddSpectator 添加观战者；已经是成员时返回 false
func (r *Room[G]) AddSpectator(name string) bool {
	if r.IsMember(name) {
		return false
	}
	r.spectators = append(r.spectators, name)
	r.game.AddSpectator(name)
	return true
}

// RemoveSpectator 移除观战者；不在房间中时返回 false
func (r *Room[G]) RemoveSpectator(name string) bool {
	i := slices.Index(r.spectators, name)
	if i < 0 {
		return false
	}
	r.spectators = slices.Delete(r.spectators, i, i+1)
	r.game.RemoveSpectator(name)
	return true
}

// Clear empties both member lists and clears the game state.
func (r *Room[G]) Clear() {
	for _, s := range r.spectators {
		r.game.RemoveSpectator(s)
	}
	for _, p := range r.players {
		r.game.RemovePlayer(p)
	}
	r.players = r.players[:0]
	r.spectators = r.spectators[:0]
	r.game.Clear()
}

// Snapshot is the JSON view of a room sent to clients.
type Snapshot struct {
	Name       string          `json:"name"`
	Players    []string        `json:"players"`
	Spectators []string        `json:"spectators"`
	Phase      string          `json:"phase"`
	GameData   json.RawMessage `json:"gameData"`
}

// Snapshot captures the room, encoding the game state at this instant.
func (r *Room[G]) Snapshot() (Snapshot, error) {
	data, err := json.Marshal(r.game)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Name:       r.name,
		Players:    r.Players(),
		Spectators: r.Spectators(),
		Phase:      r.Phase().String(),
		GameData:   data,
	}, nil
}
