package room

// GameState is the per-room game object supplied by the game engine.
// The room only needs these hooks; everything else about the game is opaque here.
type GameState interface {
	IsInProgress() bool
	Start()
	Clear()
	ResetRules()
	AddPlayer(name string)
	RemovePlayer(name string)
	AddSpectator(name string)
	RemoveSpectator(name string)
}

// Factory builds a freshly initialised game state for a new room.
type Factory[G GameState] func(roomName string) G
