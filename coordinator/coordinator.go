// Package coordinator enforces room lifecycle and membership rules: who may
// join or watch a room, when a room is cleared, and when it is destroyed.
package coordinator

import (
	"slices"
	"strings"
	"sync"

	"github.com/wfunc/thegame/room"
)

// Kicker delivers the eviction signal to a spectator's connection.
type Kicker interface {
	Kick(roomName, name string)
}

type nopKicker struct{}

func (nopKicker) Kick(string, string) {}

// Settings 是协调器的容量与保留配置
type Settings struct {
	MaxPlayersPerRoom    int
	MaxSpectatorsPerRoom int
	RetainedRooms        []string // 这些房间清空后只重置，不删除
}

// Departure describes the result of someone leaving a room.
type Departure struct {
	Room    string
	Left    bool // the identity is no longer in the room
	Cleared bool // the room emptied of players and was reset
	Removed bool // the room no longer exists
}

// Coordinator owns the room registry. Every operation runs as one atomic step
// under a single lock, so capacity checks and cleanup cannot interleave.
type Coordinator[G room.GameState] struct {
	rooms       *room.Registry[G]
	settings    Settings
	retained    map[string]struct{}
	playerRooms map[string]map[string]struct{} // player -> rooms they play in
	kicker      Kicker
	observer    Observer
	mutex       sync.Mutex
}

func New[G room.GameState](rooms *room.Registry[G], settings Settings, kicker Kicker, observer Observer) *Coordinator[G] {
	if kicker == nil {
		kicker = nopKicker{}
	}
	if observer == nil {
		observer = NopObserver{}
	}
	retained := make(map[string]struct{}, len(settings.RetainedRooms))
	for _, name := range settings.RetainedRooms {
		retained[name] = struct{}{}
	}
	return &Coordinator[G]{
		rooms:       rooms,
		settings:    settings,
		retained:    retained,
		playerRooms: make(map[string]map[string]struct{}),
		kicker:      kicker,
		observer:    observer,
	}
}

// EnsureRetainedRooms creates every retained room that does not exist yet and
// returns the names that could not be created for lack of capacity.
func (c *Coordinator[G]) EnsureRetainedRooms() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var failed []string
	for _, name := range c.settings.RetainedRooms {
		existed := c.rooms.Exists(name)
		if !c.rooms.EnsureExists(name) {
			c.observer.Refused(OpRetain, name, "", ErrRoomLimitReached)
			failed = append(failed, name)
			continue
		}
		if !existed {
			c.observer.RoomCreated(name)
		}
	}
	return failed
}

func (c *Coordinator[G]) IsRetained(name string) bool {
	_, ok := c.retained[name]
	return ok
}

func (c *Coordinator[G]) RoomExists(name string) bool {
	return c.rooms.Exists(name)
}

// CreateRoom creates an empty room. Names are case sensitive and must not be empty.
func (c *Coordinator[G]) CreateRoom(name string) error {
	if strings.TrimSpace(name) == "" {
		c.observer.Refused(OpCreate, name, "", ErrInvalidRoomName)
		return ErrInvalidRoomName
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.rooms.IsAtCapacity() {
		c.observer.Refused(OpCreate, name, "", ErrRoomLimitReached)
		return ErrRoomLimitReached
	}
	if c.rooms.Exists(name) {
		c.observer.Refused(OpCreate, name, "", ErrRoomExists)
		return ErrRoomExists
	}
	if !c.rooms.Create(name) {
		c.observer.Refused(OpCreate, name, "", ErrRoomLimitReached)
		return ErrRoomLimitReached
	}
	c.observer.RoomCreated(name)
	return nil
}

// JoinRoom seats player in the room.
func (c *Coordinator[G]) JoinRoom(name, player string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	r, err := c.rooms.Get(name)
	if err != nil {
		c.observer.Refused(OpJoin, name, player, err)
		return err
	}
	if r.PlayerCount() >= c.settings.MaxPlayersPerRoom {
		c.observer.Refused(OpJoin, name, player, ErrRoomFull)
		return ErrRoomFull
	}
	if r.IsInProgress() {
		c.observer.Refused(OpJoin, name, player, ErrGameInProgress)
		return ErrGameInProgress
	}

	before := r.Phase()
	if !r.AddPlayer(player) {
		c.observer.Refused(OpJoin, name, player, ErrAlreadyInRoom)
		return ErrAlreadyInRoom
	}
	c.index(player, name)
	c.observer.MemberJoined(name, player, room.RolePlayer)
	c.notePhase(name, before, r.Phase())
	return nil
}

// SpectateRoom adds spectator to the room's watchers.
func (c *Coordinator[G]) SpectateRoom(name, spectator string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	r, err := c.rooms.Get(name)
	if err != nil {
		c.observer.Refused(OpSpectate, name, spectator, err)
		return err
	}
	if r.SpectatorCount() >= c.settings.MaxSpectatorsPerRoom {
		c.observer.Refused(OpSpectate, name, spectator, ErrSpectatorsFull)
		return ErrSpectatorsFull
	}
	if r.IsInProgress() {
		c.observer.Refused(OpSpectate, name, spectator, ErrGameInProgress)
		return ErrGameInProgress
	}

	before := r.Phase()
	if !r.AddSpectator(spectator) {
		c.observer.Refused(OpSpectate, name, spectator, ErrAlreadyInRoom)
		return ErrAlreadyInRoom
	}
	c.observer.MemberJoined(name, spectator, room.RoleSpectator)
	c.notePhase(name, before, r.Phase())
	return nil
}

// StartGame hands the start over to the game engine and reports whether a game is now running.
func (c *Coordinator[G]) StartGame(name string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	r, err := c.rooms.Get(name)
	if err != nil {
		c.observer.Refused(OpStart, name, "", err)
		return err
	}
	if r.IsInProgress() {
		c.observer.Refused(OpStart, name, "", ErrGameInProgress)
		return ErrGameInProgress
	}

	before := r.Phase()
	r.Game().Start()
	if !r.IsInProgress() {
		c.observer.Refused(OpStart, name, "", ErrGameNotStarted)
		return ErrGameNotStarted
	}
	c.observer.GameStarted(name, r.Players())
	c.notePhase(name, before, r.Phase())
	return nil
}

// WithGame runs fn against the room's game state while holding the coordinator lock.
func (c *Coordinator[G]) WithGame(name string, fn func(game G)) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	r, err := c.rooms.Get(name)
	if err != nil {
		c.observer.Refused(OpGame, name, "", err)
		return err
	}
	before := r.Phase()
	fn(r.Game())
	c.notePhase(name, before, r.Phase())
	return nil
}

// LeaveRoom removes player from the room and runs the cleanup cascade.
// Leaving a room that no longer exists is not an error.
func (c *Coordinator[G]) LeaveRoom(name, player string) Departure {
	return c.depart(name, player, room.RolePlayer, OpLeave)
}

// StopSpectating removes spectator from the room and runs the cleanup cascade.
func (c *Coordinator[G]) StopSpectating(name, spectator string) Departure {
	return c.depart(name, spectator, room.RoleSpectator, OpStopSpectating)
}

func (c *Coordinator[G]) depart(name, who string, role room.Role, op Op) Departure {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	r, err := c.rooms.Get(name)
	if err != nil {
		c.observer.Refused(op, name, who, err)
		return Departure{Room: name, Left: true, Removed: true}
	}

	before := r.Phase()
	var left bool
	if role == room.RolePlayer {
		left = r.RemovePlayer(who)
		c.unindex(who, name)
	} else {
		left = r.RemoveSpectator(who)
	}
	if left {
		c.observer.MemberLeft(name, who, role)
	} else {
		c.observer.Refused(op, name, who, ErrNotInRoom)
	}
	c.notePhase(name, before, r.Phase())

	cleared, removed := c.cleanLocked(name)
	return Departure{Room: name, Left: left, Cleared: cleared, Removed: removed}
}

// Disconnect removes player from every room they play in, running cleanup on
// each. Rooms where they only spectate are left alone.
func (c *Coordinator[G]) Disconnect(player string) []Departure {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	names := make([]string, 0, len(c.playerRooms[player]))
	for name := range c.playerRooms[player] {
		names = append(names, name)
	}
	slices.Sort(names)

	departures := make([]Departure, 0, len(names))
	for _, name := range names {
		c.unindex(player, name)
		r, err := c.rooms.Get(name)
		if err != nil {
			continue
		}
		before := r.Phase()
		if r.RemovePlayer(player) {
			c.observer.MemberLeft(name, player, room.RolePlayer)
		}
		c.notePhase(name, before, r.Phase())

		cleared, removed := c.cleanLocked(name)
		departures = append(departures, Departure{Room: name, Left: true, Cleared: cleared, Removed: removed})
	}
	return departures
}

// CleanRoom runs the cleanup cascade on demand.
func (c *Coordinator[G]) CleanRoom(name string) (cleared, removed bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.cleanLocked(name)
}

// cleanLocked resets a room once it has no players: spectators are kicked, the
// game is cleared and its rules reset, and the room is deleted unless retained.
func (c *Coordinator[G]) cleanLocked(name string) (cleared, removed bool) {
	r, err := c.rooms.Get(name)
	if err != nil || r.PlayerCount() > 0 {
		return false, false
	}

	before := r.Phase()
	for _, spectator := range r.Spectators() {
		c.observer.SpectatorKicked(name, spectator)
		c.kicker.Kick(name, spectator)
	}
	r.Clear()
	r.Game().ResetRules()
	c.observer.RoomCleared(name)
	c.notePhase(name, before, r.Phase())

	if c.IsRetained(name) {
		return true, false
	}
	c.rooms.Remove(name)
	c.observer.RoomDestroyed(name)
	return true, true
}

func (c *Coordinator[G]) index(player, roomName string) {
	rooms, ok := c.playerRooms[player]
	if !ok {
		rooms = make(map[string]struct{})
		c.playerRooms[player] = rooms
	}
	rooms[roomName] = struct{}{}
}

func (c *Coordinator[G]) unindex(player, roomName string) {
	rooms, ok := c.playerRooms[player]
	if !ok {
		return
	}
	delete(rooms, roomName)
	if len(rooms) == 0 {
		delete(c.playerRooms, player)
	}
}

func (c *Coordinator[G]) notePhase(name string, from, to room.Phase) {
	if from != to {
		c.observer.PhaseChanged(name, from, to)
	}
}

// RoomsOf returns the rooms player is seated in, sorted.
func (c *Coordinator[G]) RoomsOf(player string) []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	names := make([]string, 0, len(c.playerRooms[player]))
	for name := range c.playerRooms[player] {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Snapshot returns the client view of one room.
func (c *Coordinator[G]) Snapshot(name string) (room.Snapshot, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	r, err := c.rooms.Get(name)
	if err != nil {
		return room.Snapshot{}, err
	}
	return r.Snapshot()
}

// Snapshots returns the client view of every room, sorted by name.
func (c *Coordinator[G]) Snapshots() ([]room.Snapshot, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	rooms := c.rooms.List()
	slices.SortFunc(rooms, func(a, b *room.Room[G]) int {
		return strings.Compare(a.Name(), b.Name())
	})

	snaps := make([]room.Snapshot, 0, len(rooms))
	for _, r := range rooms {
		snap, err := r.Snapshot()
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func (c *Coordinator[G]) RoomCount() int {
	return c.rooms.Count()
}
