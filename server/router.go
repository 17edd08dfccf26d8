package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wfunc/thegame/coordinator"
	"github.com/wfunc/thegame/game"
	"github.com/wfunc/thegame/logger"
	"github.com/wfunc/thegame/network"
	"github.com/wfunc/thegame/session"
)

// RoomWith is the payload of every room-scoped event.
type RoomWith[T any] struct {
	RoomName string `json:"roomName"`
	Data     T      `json:"data"`
}

// decodeTuple unpacks a JSON array into the given targets, in order.
func decodeTuple(raw json.RawMessage, targets ...any) error {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return err
	}
	if len(items) < len(targets) {
		return fmt.Errorf("expected %d elements, got %d", len(targets), len(items))
	}
	for i, target := range targets {
		if err := json.Unmarshal(items[i], target); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

func (s *GameServer) route(sess *session.Session, msg *network.Message) {
	var err error
	switch msg.Event {
	case network.EventJoinServer:
		err = s.joinServer(sess, msg.Data)
	case network.EventAllPlayersData:
		err = s.allPlayersData(sess, msg.Data)
	case network.EventAllRoomData:
		err = s.allRoomData(sess, msg.Data)
	case network.EventCreateRoom:
		err = s.createRoom(sess, msg.Data)
	case network.EventJoinRoom:
		err = s.joinRoom(sess, msg.Data)
	case network.EventSpectateRoom:
		err = s.spectateRoom(sess, msg.Data)
	case network.EventSetRuleSet:
		err = s.setRuleSet(msg.Data)
	case network.EventStartGame:
		err = s.startGame(msg.Data)
	case network.EventAddVoteForStartingPlayer:
		err = s.addVoteForStartingPlayer(msg.Data)
	case network.EventRemoveVoteForStartingPlayer:
		err = s.removeVoteForStartingPlayer(msg.Data)
	case network.EventSortHand:
		err = s.sortHand(msg.Data)
	case network.EventSetCardToPlay:
		err = s.setCardToPlay(msg.Data)
	case network.EventPlayCard:
		err = s.playCard(msg.Data)
	case network.EventMulligan:
		err = s.mulligan(msg.Data)
	case network.EventEndTurn:
		err = s.endTurn(msg.Data)
	case network.EventLeaveGame:
		err = s.leaveGame(sess, msg.Data)
	case network.EventStopSpectating:
		err = s.stopSpectating(sess, msg.Data)
	case network.EventLeaveRoom:
		err = s.leaveRoom(sess, msg.Data)
	case network.EventDisconnect:
		// closing the socket ends the read loop, which queues the real disconnect
		sess.Close()
	default:
		logger.Log.Infof("Unknown event %q from session %s", msg.Event, sess.GetID())
	}

	if err != nil {
		logger.Log.Warnw("bad payload", "event", msg.Event, "session", sess.GetID(), "error", err)
	}
}

func (s *GameServer) sendAllPlayersData() {
	names := s.sessions.PlayerNames()
	s.metrics.SetBoundPlayers(len(names))
	s.broadcaster.BroadcastToAll(network.EventAllPlayersData, names)
}

// sendRoomData sends the room snapshot to every connection.
func (s *GameServer) sendRoomData(roomName string) {
	snap, err := s.coordinator.Snapshot(roomName)
	if err != nil {
		logger.Log.Warnw("no room data", "room", roomName, "error", err)
		return
	}
	s.broadcaster.BroadcastToAll(network.EventRoomData, snap)
}

func (s *GameServer) sendRemoveRoomData(roomName string) {
	s.broadcaster.BroadcastToAll(network.EventRemoveRoomData, roomName)
}

// sendDeparture announces what is left of a room after someone leaves it.
// Nothing is sent when the leave neither removed anyone nor cleaned the room.
func (s *GameServer) sendDeparture(d coordinator.Departure) {
	if !d.Left && !d.Cleared && !d.Removed {
		return
	}
	if d.Removed {
		s.sendRemoveRoomData(d.Room)
		return
	}
	s.sendRoomData(d.Room)
}

func reply(sess *session.Session, event string, payload any) {
	if err := sess.Send(event, payload); err != nil {
		logger.Log.Warnw("failed to reply", "event", event, "session", sess.GetID(), "error", err)
	}
}

func (s *GameServer) joinServer(sess *session.Session, raw json.RawMessage) error {
	var playerName string
	if err := json.Unmarshal(raw, &playerName); err != nil {
		return err
	}
	if strings.TrimSpace(playerName) == "" {
		logger.Log.Warnf("Session %s tried to join the server without a name!", sess.GetID())
		reply(sess, network.EventJoinServerResult, false)
		return nil
	}

	s.sessions.Bind(sess, playerName)
	logger.Log.Infof("Player %s joined the server!", playerName)

	reply(sess, network.EventJoinServerResult, true)
	s.sendAllPlayersData()
	return nil
}

func (s *GameServer) allPlayersData(sess *session.Session, raw json.RawMessage) error {
	var playerName string
	json.Unmarshal(raw, &playerName)
	logger.Log.Infof("Player %s refreshed player data.", playerName)

	reply(sess, network.EventAllPlayersData, s.sessions.PlayerNames())
	return nil
}

func (s *GameServer) allRoomData(sess *session.Session, raw json.RawMessage) error {
	var playerName string
	json.Unmarshal(raw, &playerName)
	logger.Log.Infof("Player %s refreshed room data.", playerName)

	snaps, err := s.coordinator.Snapshots()
	if err != nil {
		return err
	}
	reply(sess, network.EventAllRoomData, snaps)
	return nil
}

func (s *GameServer) createRoom(sess *session.Session, raw json.RawMessage) error {
	var roomName string
	if err := json.Unmarshal(raw, &roomName); err != nil {
		reply(sess, network.EventCreateRoomResult, false)
		return err
	}

	err := s.coordinator.CreateRoom(roomName)
	reply(sess, network.EventCreateRoomResult, err == nil)
	if err != nil {
		return nil
	}
	s.sendRoomData(roomName)
	return nil
}

func (s *GameServer) joinRoom(sess *session.Session, raw json.RawMessage) error {
	var req RoomWith[string]
	if err := json.Unmarshal(raw, &req); err != nil {
		reply(sess, network.EventJoinRoomResult, false)
		return err
	}

	err := s.coordinator.JoinRoom(req.RoomName, req.Data)
	reply(sess, network.EventJoinRoomResult, err == nil)
	if err != nil {
		return nil
	}
	sess.JoinAudience(req.RoomName)
	s.sendRoomData(req.RoomName)
	return nil
}

func (s *GameServer) spectateRoom(sess *session.Session, raw json.RawMessage) error {
	var req RoomWith[string]
	if err := json.Unmarshal(raw, &req); err != nil {
		reply(sess, network.EventSpectateRoomResult, false)
		return err
	}

	err := s.coordinator.SpectateRoom(req.RoomName, req.Data)
	reply(sess, network.EventSpectateRoomResult, err == nil)
	if err != nil {
		return nil
	}
	sess.JoinAudience(req.RoomName)
	s.sendRoomData(req.RoomName)
	return nil
}

// withGame runs fn on the room's game and broadcasts the result. A missing
// room is logged by the coordinator and needs no broadcast.
func (s *GameServer) withGame(roomName string, fn func(g *game.Data)) {
	if err := s.coordinator.WithGame(roomName, fn); err != nil {
		return
	}
	s.sendRoomData(roomName)
}

func (s *GameServer) setRuleSet(raw json.RawMessage) error {
	var req RoomWith[game.RuleSet]
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	s.withGame(req.RoomName, func(g *game.Data) {
		g.SetRuleSet(req.Data)
	})
	return nil
}

func (s *GameServer) startGame(raw json.RawMessage) error {
	var roomName string
	if err := json.Unmarshal(raw, &roomName); err != nil {
		return err
	}

	err := s.coordinator.StartGame(roomName)
	if errors.Is(err, coordinator.ErrRoomNotFound) {
		return nil
	}
	if err == nil {
		snap, serr := s.coordinator.Snapshot(roomName)
		if serr != nil {
			return serr
		}
		s.broadcaster.BroadcastToRoom(roomName, network.EventGameStarted, snap)
	}
	s.sendRoomData(roomName)
	return nil
}

func (s *GameServer) addVoteForStartingPlayer(raw json.RawMessage) error {
	var req RoomWith[json.RawMessage]
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	var playerName, startingPlayerName string
	if err := decodeTuple(req.Data, &playerName, &startingPlayerName); err != nil {
		return err
	}
	roomName := req.RoomName

	s.withGame(roomName, func(g *game.Data) {
		switch g.AddStartingPlayerVote(playerName, startingPlayerName) {
		case game.VoteSuccess:
			logger.Log.Infof("Player %s voted for %s to start game in room %s.", playerName, startingPlayerName, roomName)
		case game.VoteDenied:
			logger.Log.Infof("Player %s was not allowed to vote for a starting player in room %s.", playerName, roomName)
		case game.VoteClosed:
			logger.Log.Infof("Player %s could not cast their starting player vote in room %s because the vote is closed!", playerName, roomName)
		}

		if !g.IsStartingPlayerVoteComplete() {
			return
		}
		switch g.SetStartingPlayer() {
		case game.StartSuccess:
			logger.Log.Infof("Player %s has been voted to start the game in room %s.", g.StartingPlayer, roomName)
		case game.StartNoStartingPlayer:
			logger.Log.Infof("Could not set starting player in room %s as no player has won the vote!", roomName)
		}
	})
	return nil
}

func (s *GameServer) removeVoteForStartingPlayer(raw json.RawMessage) error {
	var req RoomWith[string]
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	playerName, roomName := req.Data, req.RoomName

	s.withGame(roomName, func(g *game.Data) {
		switch g.RemoveStartingPlayerVote(playerName) {
		case game.VoteSuccess:
			logger.Log.Infof("Player %s removed their starting player vote in room %s.", playerName, roomName)
		case game.VoteDenied:
			logger.Log.Infof("Player %s was not allowed to remove a vote for a starting player in room %s.", playerName, roomName)
		case game.VoteClosed:
			logger.Log.Infof("Player %s could not remove their starting player vote in room %s because the vote is closed!", playerName, roomName)
		}
	})
	return nil
}

func (s *GameServer) sortHand(raw json.RawMessage) error {
	var req RoomWith[string]
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	s.withGame(req.RoomName, func(g *game.Data) {
		g.SortHand(req.Data)
	})
	return nil
}

func (s *GameServer) setCardToPlay(raw json.RawMessage) error {
	var req RoomWith[*game.Card]
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	s.withGame(req.RoomName, func(g *game.Data) {
		g.SetCardToPlay(req.Data)
	})
	return nil
}

func (s *GameServer) playCard(raw json.RawMessage) error {
	var req RoomWith[json.RawMessage]
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	var (
		player    string
		card      game.Card
		pileIndex int
	)
	if err := decodeTuple(req.Data, &player, &card, &pileIndex); err != nil {
		return err
	}
	roomName := req.RoomName

	s.withGame(roomName, func(g *game.Data) {
		if !g.PlayCard(player, card, pileIndex) {
			logger.Log.Infof("Player %s could not play %d on pile %d in room %s.", player, card.Value, pileIndex, roomName)
			return
		}
		if g.IsWon() {
			logger.Log.Infof("The game in room %s has been won!", roomName)
			s.recorder.GameWon(roomName)
		}
	})
	return nil
}

func (s *GameServer) mulligan(raw json.RawMessage) error {
	var req RoomWith[json.RawMessage]
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	var (
		pileIndex    int
		player       string
		autoSortHand bool
	)
	if err := decodeTuple(req.Data, &pileIndex, &player, &autoSortHand); err != nil {
		return err
	}
	roomName := req.RoomName

	s.withGame(roomName, func(g *game.Data) {
		if !g.CanMulligan() {
			logger.Log.Infof("Player %s cannot mulligan in room %s because the limit has been reached!", player, roomName)
			return
		}

		result := g.Mulligan(pileIndex, player)
		if result.Success {
			logger.Log.Infof("Player %s mulliganed %d, which they played on %d.", player, result.Card.Value, result.PreviousCard.Value)
		} else {
			logger.Log.Infof("Player %s failed to take a mulligan!", player)
		}

		if autoSortHand {
			g.SortHand(player)
		}
	})
	return nil
}

func (s *GameServer) endTurn(raw json.RawMessage) error {
	var req RoomWith[json.RawMessage]
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	var passTurn, autoSortHand bool
	if err := decodeTuple(req.Data, &passTurn, &autoSortHand); err != nil {
		return err
	}
	roomName := req.RoomName

	s.withGame(roomName, func(g *game.Data) {
		currentPlayer, ok := g.GetCurrentPlayer()
		if !ok {
			logger.Log.Warnf("Cannot end turn in room %s because nobody has the turn!", roomName)
			return
		}

		if passTurn {
			g.PassTurn(currentPlayer)
			logger.Log.Infof("Player %s passed their turn in room %s", currentPlayer, roomName)
		} else {
			g.ClearPassedTurn(currentPlayer)
			logger.Log.Infof("Player %s cleared their passed turn in room %s", currentPlayer, roomName)
		}

		g.Replenish()
		if autoSortHand {
			g.SortHand(currentPlayer)
		}

		g.EndTurn()
		s.recorder.TurnEnded(roomName)

		nextPlayer := g.NextPlayer()
		logger.Log.Infof("It is now %s's turn in room %s", nextPlayer, roomName)
		g.StartTurn()

		if g.IsWon() {
			s.recorder.GameWon(roomName)
		}
	})
	return nil
}

func (s *GameServer) leaveGame(sess *session.Session, raw json.RawMessage) error {
	var req RoomWith[string]
	if err := json.Unmarshal(raw, &req); err != nil {
		reply(sess, network.EventLeaveGameResult, false)
		return err
	}

	d := s.coordinator.LeaveRoom(req.RoomName, req.Data)
	reply(sess, network.EventLeaveGameResult, d.Left)
	sess.LeaveAudience(req.RoomName)

	if d.Left {
		logger.Log.Infof("Player %s left game %s.", req.Data, req.RoomName)
	}
	s.sendDeparture(d)
	return nil
}

func (s *GameServer) stopSpectating(sess *session.Session, raw json.RawMessage) error {
	var req RoomWith[string]
	if err := json.Unmarshal(raw, &req); err != nil {
		reply(sess, network.EventLeaveRoomResult, false)
		return err
	}

	d := s.coordinator.StopSpectating(req.RoomName, req.Data)
	reply(sess, network.EventLeaveRoomResult, d.Left)
	sess.LeaveAudience(req.RoomName)

	if d.Left {
		logger.Log.Infof("Spectator %s left room %s.", req.Data, req.RoomName)
	}
	s.sendDeparture(d)
	return nil
}

func (s *GameServer) leaveRoom(sess *session.Session, raw json.RawMessage) error {
	var req RoomWith[string]
	if err := json.Unmarshal(raw, &req); err != nil {
		reply(sess, network.EventLeaveRoomResult, false)
		return err
	}

	d := s.coordinator.LeaveRoom(req.RoomName, req.Data)
	reply(sess, network.EventLeaveRoomResult, d.Left)
	sess.LeaveAudience(req.RoomName)

	if d.Left {
		logger.Log.Infof("Player %s left room %s.", req.Data, req.RoomName)
	}
	s.sendDeparture(d)
	return nil
}

// disconnect drops the connection and, if it claimed a name, removes that
// player from every room they play in.
func (s *GameServer) disconnect(sess *session.Session) {
	defer s.metrics.DecConnectedSockets()
	logger.Log.Infof("Connection closed from %s, session ID: %s", sess.Conn.RemoteAddr(), sess.GetID())

	playerName, bound := s.sessions.LookupIdentity(sess.GetID())
	s.sessions.Remove(sess.GetID())
	sess.Close()
	if !bound {
		return
	}

	for _, d := range s.coordinator.Disconnect(playerName) {
		s.sendDeparture(d)
	}
	s.sendAllPlayersData()

	logger.Log.Infof("Player %s left the server.", playerName)
}
