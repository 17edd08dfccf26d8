package network

// Inbound events.
const (
	EventJoinServer                  = "joinServer"
	EventAllPlayersData              = "allPlayersData"
	EventAllRoomData                 = "allRoomData"
	EventCreateRoom                  = "createRoom"
	EventJoinRoom                    = "joinRoom"
	EventSpectateRoom                = "spectateRoom"
	EventSetRuleSet                  = "setRuleSet"
	EventStartGame                   = "startGame"
	EventAddVoteForStartingPlayer    = "addVoteForStartingPlayer"
	EventRemoveVoteForStartingPlayer = "removeVoteForStartingPlayer"
	EventSortHand                    = "sortHand"
	EventSetCardToPlay               = "setCardToPlay"
	EventPlayCard                    = "playCard"
	EventMulligan                    = "mulligan"
	EventEndTurn                     = "endTurn"
	EventLeaveGame                   = "leaveGame"
	EventStopSpectating              = "stopSpectating"
	EventLeaveRoom                   = "leaveRoom"
	EventDisconnect                  = "disconnect"
)

// Outbound events.
const (
	EventJoinServerResult   = "joinServerResult"
	EventCreateRoomResult   = "createRoomResult"
	EventJoinRoomResult     = "joinRoomResult"
	EventSpectateRoomResult = "spectateRoomResult"
	EventLeaveGameResult    = "leaveGameResult"
	EventLeaveRoomResult    = "leaveRoomResult"
	EventRoomData           = "roomData"
	EventRemoveRoomData     = "removeRoomData"
	EventGameStarted        = "gameStarted"
	EventKick               = "kick"
)
