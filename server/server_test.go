package server

import (
	"encoding/json"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/thegame/config"
	"github.com/wfunc/thegame/game"
	"github.com/wfunc/thegame/network"
	"github.com/wfunc/thegame/session"
)

// MockConnection records every message sent to it.
type MockConnection struct {
	mu       sync.Mutex
	messages []*network.Message
	closed   bool
}

func (m *MockConnection) Send(frame []byte) error {
	msg, err := network.Decode(frame)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockConnection) RemoteAddr() net.Addr                   { return &net.TCPAddr{} }
func (m *MockConnection) ReadMessage() (*network.Message, error) { return nil, nil }

func (m *MockConnection) Events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]string, 0, len(m.messages))
	for _, msg := range m.messages {
		events = append(events, msg.Event)
	}
	return events
}

// Last decodes the payload of the most recent message with the given event.
func (m *MockConnection) Last(t *testing.T, event string, v any) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Event == event {
			require.NoError(t, json.Unmarshal(m.messages[i].Data, v))
			return
		}
	}
	t.Fatalf("no %q message received", event)
}

func (m *MockConnection) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

type recordingRecorder struct {
	turns map[string]int
	won   map[string]bool
}

func (r *recordingRecorder) TurnEnded(roomName string) { r.turns[roomName]++ }
func (r *recordingRecorder) GameWon(roomName string)   { r.won[roomName] = true }

type fixture struct {
	t        *testing.T
	srv      *GameServer
	recorder *recordingRecorder
}

func testConfig(retained ...string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 4001, HostName: "localhost"},
		Rooms: config.RoomsConfig{
			Names:                retained,
			MaxRooms:             3,
			MaxPlayersPerRoom:    3,
			MaxSpectatorsPerRoom: 3,
		},
	}
}

func newFixture(t *testing.T, retained ...string) *fixture {
	recorder := &recordingRecorder{turns: map[string]int{}, won: map[string]bool{}}
	srv := NewGameServer(testConfig(retained...),
		WithRecorder(recorder),
		WithGameOptions(game.WithRand(rand.New(rand.NewPCG(1, 2)))),
	)
	srv.coordinator.EnsureRetainedRooms()
	return &fixture{t: t, srv: srv, recorder: recorder}
}

func (f *fixture) connect() (*session.Session, *MockConnection) {
	conn := &MockConnection{}
	return f.srv.open(conn), conn
}

// player connects and claims a name.
func (f *fixture) player(name string) (*session.Session, *MockConnection) {
	sess, conn := f.connect()
	f.send(sess, network.EventJoinServer, name)
	return sess, conn
}

func (f *fixture) send(sess *session.Session, event string, payload any) {
	f.t.Helper()
	frame, err := network.Encode(event, payload)
	require.NoError(f.t, err)
	msg, err := network.Decode(frame)
	require.NoError(f.t, err)
	f.srv.dispatch(inbound{sess: sess, msg: msg})
}

func with(roomName string, data any) RoomWith[any] {
	return RoomWith[any]{RoomName: roomName, Data: data}
}

func (f *fixture) game(roomName string) *game.Data {
	var g *game.Data
	require.NoError(f.t, f.srv.coordinator.WithGame(roomName, func(d *game.Data) { g = d }))
	return g
}

func TestJoinServer(t *testing.T) {
	f := newFixture(t)
	_, watcher := f.connect()
	_, alice := f.player("alice")

	var ok bool
	alice.Last(t, network.EventJoinServerResult, &ok)
	assert.True(t, ok)

	var names []string
	watcher.Last(t, network.EventAllPlayersData, &names)
	assert.Equal(t, []string{"alice"}, names)
}

func TestJoinServer_BlankName(t *testing.T) {
	f := newFixture(t)
	_, conn := f.player("  ")

	var ok bool
	conn.Last(t, network.EventJoinServerResult, &ok)
	assert.False(t, ok)
	assert.Empty(t, f.srv.sessions.PlayerNames())
	assert.NotContains(t, conn.Events(), network.EventAllPlayersData)
}

func TestQueries(t *testing.T) {
	f := newFixture(t, "lobby")
	sess, conn := f.player("alice")

	f.send(sess, network.EventAllPlayersData, "alice")
	var names []string
	conn.Last(t, network.EventAllPlayersData, &names)
	assert.Equal(t, []string{"alice"}, names)

	f.send(sess, network.EventAllRoomData, "alice")
	var rooms []map[string]any
	conn.Last(t, network.EventAllRoomData, &rooms)
	require.Len(t, rooms, 1)
	assert.Equal(t, "lobby", rooms[0]["name"])
	assert.Equal(t, "empty", rooms[0]["phase"])
}

func TestCreateRoom(t *testing.T) {
	f := newFixture(t)
	sess, conn := f.player("alice")
	_, watcher := f.connect()

	f.send(sess, network.EventCreateRoom, "x")
	var ok bool
	conn.Last(t, network.EventCreateRoomResult, &ok)
	assert.True(t, ok)

	var snap map[string]any
	watcher.Last(t, network.EventRoomData, &snap)
	assert.Equal(t, "x", snap["name"])

	for _, name := range []string{"x", "", "   "} {
		conn.Reset()
		f.send(sess, network.EventCreateRoom, name)
		conn.Last(t, network.EventCreateRoomResult, &ok)
		assert.False(t, ok, name)
		assert.NotContains(t, conn.Events(), network.EventRoomData)
	}
}

func TestJoinAndSpectate(t *testing.T) {
	f := newFixture(t)
	alice, aliceConn := f.player("alice")
	carol, carolConn := f.player("carol")
	f.send(alice, network.EventCreateRoom, "x")

	f.send(alice, network.EventJoinRoom, with("x", "alice"))
	var ok bool
	aliceConn.Last(t, network.EventJoinRoomResult, &ok)
	assert.True(t, ok)
	assert.True(t, alice.InAudience("x"))

	f.send(carol, network.EventSpectateRoom, with("x", "carol"))
	carolConn.Last(t, network.EventSpectateRoomResult, &ok)
	assert.True(t, ok)
	assert.True(t, carol.InAudience("x"))

	var snap map[string]any
	aliceConn.Last(t, network.EventRoomData, &snap)
	assert.Equal(t, []any{"alice"}, snap["players"])
	assert.Equal(t, []any{"carol"}, snap["spectators"])

	f.send(alice, network.EventJoinRoom, with("missing", "alice"))
	aliceConn.Last(t, network.EventJoinRoomResult, &ok)
	assert.False(t, ok)
	assert.False(t, alice.InAudience("missing"))
}

func TestLastPlayerLeaving_KicksSpectatorsAndRemovesRoom(t *testing.T) {
	f := newFixture(t)
	alice, aliceConn := f.player("alice")
	carol, carolConn := f.player("carol")
	_, watcher := f.connect()

	f.send(alice, network.EventCreateRoom, "x")
	f.send(alice, network.EventJoinRoom, with("x", "alice"))
	f.send(carol, network.EventSpectateRoom, with("x", "carol"))
	watcher.Reset()

	f.send(alice, network.EventLeaveRoom, with("x", "alice"))

	var ok bool
	aliceConn.Last(t, network.EventLeaveRoomResult, &ok)
	assert.True(t, ok)
	assert.Contains(t, carolConn.Events(), network.EventKick)
	assert.False(t, carol.InAudience("x"))
	assert.False(t, f.srv.coordinator.RoomExists("x"))

	var removed string
	watcher.Last(t, network.EventRemoveRoomData, &removed)
	assert.Equal(t, "x", removed)
	assert.NotContains(t, watcher.Events(), network.EventRoomData)
}

func TestKick_SpectatorAlreadyGone(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.player("alice")
	carol, carolConn := f.player("carol")
	_, watcher := f.connect()
	f.send(alice, network.EventCreateRoom, "x")
	f.send(alice, network.EventJoinRoom, with("x", "alice"))
	f.send(carol, network.EventSpectateRoom, with("x", "carol"))
	f.srv.dispatch(inbound{sess: carol})
	watcher.Reset()

	f.send(alice, network.EventLeaveRoom, with("x", "alice"))

	assert.NotContains(t, carolConn.Events(), network.EventKick)
	assert.False(t, f.srv.coordinator.RoomExists("x"))
	var removed string
	watcher.Last(t, network.EventRemoveRoomData, &removed)
	assert.Equal(t, "x", removed)
}

func TestRetainedRoom_SurvivesEmptying(t *testing.T) {
	f := newFixture(t, "bababooey")
	alice, _ := f.player("alice")
	carol, carolConn := f.player("carol")
	_, watcher := f.connect()

	f.send(alice, network.EventJoinRoom, with("bababooey", "alice"))
	f.send(carol, network.EventSpectateRoom, with("bababooey", "carol"))
	f.send(alice, network.EventLeaveGame, with("bababooey", "alice"))

	assert.Contains(t, carolConn.Events(), network.EventKick)
	assert.True(t, f.srv.coordinator.RoomExists("bababooey"))

	var snap map[string]any
	watcher.Last(t, network.EventRoomData, &snap)
	assert.Equal(t, "bababooey", snap["name"])
	assert.Empty(t, snap["players"])
	assert.Empty(t, snap["spectators"])
	assert.NotContains(t, watcher.Events(), network.EventRemoveRoomData)
}

func TestStopSpectating(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.player("alice")
	carol, carolConn := f.player("carol")
	f.send(alice, network.EventCreateRoom, "x")
	f.send(alice, network.EventJoinRoom, with("x", "alice"))
	f.send(carol, network.EventSpectateRoom, with("x", "carol"))

	f.send(carol, network.EventStopSpectating, with("x", "carol"))

	var ok bool
	carolConn.Last(t, network.EventLeaveRoomResult, &ok)
	assert.True(t, ok)
	assert.False(t, carol.InAudience("x"))
	assert.NotContains(t, carolConn.Events(), network.EventKick)
	assert.True(t, f.srv.coordinator.RoomExists("x"))
}

func TestLeaveRoom_NotAMember(t *testing.T) {
	f := newFixture(t)
	alice, aliceConn := f.player("alice")
	bob, bobConn := f.player("bob")
	f.send(alice, network.EventCreateRoom, "x")
	f.send(alice, network.EventJoinRoom, with("x", "alice"))
	bobConn.Reset()

	f.send(bob, network.EventLeaveRoom, with("x", "bob"))

	var ok bool
	bobConn.Last(t, network.EventLeaveRoomResult, &ok)
	assert.False(t, ok)
	assert.Equal(t, []string{network.EventLeaveRoomResult}, bobConn.Events())
	assert.NotEmpty(t, aliceConn.Events())
	assert.True(t, f.srv.coordinator.RoomExists("x"))
}

func TestLeaveRoom_NotAMemberOfEmptyRoom(t *testing.T) {
	f := newFixture(t, "lobby")
	alice, _ := f.player("alice")
	bob, bobConn := f.player("bob")
	_, watcher := f.connect()
	f.send(alice, network.EventCreateRoom, "x")
	watcher.Reset()

	f.send(bob, network.EventLeaveRoom, with("x", "bob"))

	var ok bool
	bobConn.Last(t, network.EventLeaveRoomResult, &ok)
	assert.False(t, ok)
	assert.False(t, f.srv.coordinator.RoomExists("x"))
	var removed string
	watcher.Last(t, network.EventRemoveRoomData, &removed)
	assert.Equal(t, "x", removed)

	watcher.Reset()
	f.send(bob, network.EventStopSpectating, with("lobby", "bob"))

	assert.True(t, f.srv.coordinator.RoomExists("lobby"))
	var snap map[string]any
	watcher.Last(t, network.EventRoomData, &snap)
	assert.Equal(t, "lobby", snap["name"])
	assert.NotContains(t, watcher.Events(), network.EventRemoveRoomData)
}

func TestDisconnect_Cascade(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.player("alice")
	bob, _ := f.player("bob")
	carol, carolConn := f.player("carol")
	_, watcher := f.connect()

	f.send(alice, network.EventCreateRoom, "x")
	f.send(alice, network.EventCreateRoom, "y")
	f.send(alice, network.EventJoinRoom, with("x", "alice"))
	f.send(alice, network.EventJoinRoom, with("y", "alice"))
	f.send(bob, network.EventJoinRoom, with("y", "bob"))
	f.send(carol, network.EventSpectateRoom, with("x", "carol"))
	watcher.Reset()

	f.srv.dispatch(inbound{sess: alice})

	assert.False(t, f.srv.coordinator.RoomExists("x"))
	assert.True(t, f.srv.coordinator.RoomExists("y"))
	assert.Contains(t, carolConn.Events(), network.EventKick)

	var removed string
	watcher.Last(t, network.EventRemoveRoomData, &removed)
	assert.Equal(t, "x", removed)

	var snap map[string]any
	watcher.Last(t, network.EventRoomData, &snap)
	assert.Equal(t, "y", snap["name"])
	assert.Equal(t, []any{"bob"}, snap["players"])

	var names []string
	watcher.Last(t, network.EventAllPlayersData, &names)
	assert.Equal(t, []string{"bob", "carol"}, names)

	_, ok := f.srv.sessions.Get(alice.GetID())
	assert.False(t, ok)
}

func TestDisconnect_Anonymous(t *testing.T) {
	f := newFixture(t)
	sess, conn := f.connect()
	_, watcher := f.connect()

	f.srv.dispatch(inbound{sess: sess})

	assert.True(t, conn.closed)
	assert.Empty(t, watcher.Events())
	assert.Equal(t, 1, f.srv.sessions.Count())
}

func TestStartGame(t *testing.T) {
	f := newFixture(t)
	alice, aliceConn := f.player("alice")
	bob, _ := f.player("bob")
	_, watcher := f.connect()

	f.send(alice, network.EventCreateRoom, "x")
	f.send(alice, network.EventJoinRoom, with("x", "alice"))
	f.send(bob, network.EventJoinRoom, with("x", "bob"))

	f.send(alice, network.EventStartGame, "x")

	assert.Contains(t, aliceConn.Events(), network.EventGameStarted)
	assert.NotContains(t, watcher.Events(), network.EventGameStarted)

	var snap map[string]any
	watcher.Last(t, network.EventRoomData, &snap)
	assert.Equal(t, "in_progress", snap["phase"])

	g := f.game("x")
	assert.True(t, g.InProgress)
	assert.Len(t, g.Hands["alice"], 7)

	// a second start is refused but still refreshes the room
	aliceConn.Reset()
	f.send(alice, network.EventStartGame, "x")
	assert.NotContains(t, aliceConn.Events(), network.EventGameStarted)
	assert.Contains(t, aliceConn.Events(), network.EventRoomData)

	// nobody may join once the game runs
	carol, carolConn := f.player("carol")
	f.send(carol, network.EventJoinRoom, with("x", "carol"))
	var ok bool
	carolConn.Last(t, network.EventJoinRoomResult, &ok)
	assert.False(t, ok)
}

func TestGameFlow(t *testing.T) {
	f := newFixture(t)
	alice, _ := f.player("alice")
	bob, _ := f.player("bob")
	f.send(alice, network.EventCreateRoom, "x")
	f.send(alice, network.EventJoinRoom, with("x", "alice"))
	f.send(bob, network.EventJoinRoom, with("x", "bob"))
	f.send(alice, network.EventSetRuleSet, with("x", game.RuleSet{
		PairsOfPiles:    2,
		TopLimit:        100,
		JumpBackSize:    10,
		MinCardsPerTurn: 2,
		MulliganLimit:   1,
	}))
	f.send(alice, network.EventStartGame, "x")

	f.send(alice, network.EventAddVoteForStartingPlayer, with("x", []string{"alice", "alice"}))
	f.send(bob, network.EventAddVoteForStartingPlayer, with("x", []string{"bob", "alice"}))

	g := f.game("x")
	require.Equal(t, "alice", g.StartingPlayer)
	current, ok := g.GetCurrentPlayer()
	require.True(t, ok)
	require.Equal(t, "alice", current)

	first, second := g.Hands["alice"][0], g.Hands["alice"][1]
	f.send(alice, network.EventPlayCard, with("x", []any{"alice", first, 0}))
	f.send(alice, network.EventPlayCard, with("x", []any{"alice", second, 1}))
	assert.Len(t, f.game("x").Hands["alice"], 5)

	f.send(alice, network.EventMulligan, with("x", []any{1, "alice", true}))
	g = f.game("x")
	assert.Len(t, g.Hands["alice"], 6)
	assert.Equal(t, 1, g.MulligansUsed)
	f.send(alice, network.EventPlayCard, with("x", []any{"alice", second, 1}))

	f.send(alice, network.EventEndTurn, with("x", []bool{false, true}))

	g = f.game("x")
	current, _ = g.GetCurrentPlayer()
	assert.Equal(t, "bob", current)
	assert.Equal(t, 1, g.TurnsPlayed)
	assert.Len(t, g.Hands["alice"], 7)
	assert.True(t, isSorted(g.Hands["alice"]))
	assert.Equal(t, 1, f.recorder.turns["x"])
	assert.False(t, f.recorder.won["x"])
}

func TestSetRuleSet_OversizedValuesAreCapped(t *testing.T) {
	f := newFixture(t)
	alice, aliceConn := f.player("alice")
	bob, _ := f.player("bob")
	f.send(alice, network.EventCreateRoom, "x")
	f.send(alice, network.EventJoinRoom, with("x", "alice"))
	f.send(bob, network.EventJoinRoom, with("x", "bob"))

	f.send(alice, network.EventSetRuleSet, with("x", game.RuleSet{
		PairsOfPiles: 1 << 40,
		TopLimit:     1 << 40,
		HandSize:     1 << 62,
	}))
	f.send(alice, network.EventStartGame, "x")

	assert.Contains(t, aliceConn.Events(), network.EventGameStarted)
	g := f.game("x")
	require.True(t, g.InProgress)
	assert.Equal(t, 4, g.RuleSet.PairsOfPiles)
	assert.Equal(t, 1000, g.RuleSet.TopLimit)
	assert.Len(t, g.Piles, 8)
	assert.Len(t, g.Hands["alice"], 499)
	assert.Len(t, g.Hands["bob"], 499)
	assert.Empty(t, g.DrawPile)
}

func isSorted(hand []game.Card) bool {
	for i := 1; i < len(hand); i++ {
		if hand[i-1].Value > hand[i].Value {
			return false
		}
	}
	return true
}

func TestGameEvents_UnknownRoom(t *testing.T) {
	f := newFixture(t)
	alice, conn := f.player("alice")
	conn.Reset()

	f.send(alice, network.EventSortHand, with("missing", "alice"))
	f.send(alice, network.EventEndTurn, with("missing", []bool{true, false}))
	f.send(alice, network.EventStartGame, "missing")

	assert.Empty(t, conn.Events())
}

func TestMalformedPayloads(t *testing.T) {
	f := newFixture(t)
	alice, conn := f.player("alice")
	f.send(alice, network.EventCreateRoom, "x")
	conn.Reset()

	f.send(alice, network.EventJoinRoom, "not an object")
	f.send(alice, network.EventPlayCard, with("x", []any{"alice"}))
	f.send(alice, network.EventEndTurn, with("x", "nope"))
	f.send(alice, "noSuchEvent", nil)

	assert.Equal(t, []string{network.EventJoinRoomResult}, conn.Events())
}

func TestDecodeTuple(t *testing.T) {
	var (
		name string
		card game.Card
		pile int
	)
	require.NoError(t, decodeTuple(json.RawMessage(`["alice",{"value":42},3]`), &name, &card, &pile))
	assert.Equal(t, "alice", name)
	assert.Equal(t, 42, card.Value)
	assert.Equal(t, 3, pile)

	assert.Error(t, decodeTuple(json.RawMessage(`["alice"]`), &name, &pile))
	assert.Error(t, decodeTuple(json.RawMessage(`{"a":1}`), &name))
	assert.Error(t, decodeTuple(json.RawMessage(`[1]`), &name))
}

func TestHTTPEndpoints(t *testing.T) {
	f := newFixture(t, "lobby")
	handler := f.srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, 1.0, health["rooms"])

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebSocket_EndToEnd(t *testing.T) {
	srv := NewGameServer(testConfig("lobby"))
	srv.Prepare()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Shutdown(t.Context())

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	write := func(event string, payload any) {
		frame, err := network.Encode(event, payload)
		require.NoError(t, err)
		require.NoError(t, client.WriteMessage(websocket.TextMessage, frame))
	}
	read := func(event string) *network.Message {
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			_, data, err := client.ReadMessage()
			require.NoError(t, err)
			msg, err := network.Decode(data)
			require.NoError(t, err)
			if msg.Event == event {
				return msg
			}
		}
	}

	write(network.EventJoinServer, "alice")
	assert.Equal(t, "true", string(read(network.EventJoinServerResult).Data))
	assert.JSONEq(t, `["alice"]`, string(read(network.EventAllPlayersData).Data))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("garbage")))

	write(network.EventJoinRoom, with("lobby", "alice"))
	assert.Equal(t, "true", string(read(network.EventJoinRoomResult).Data))
	var snap map[string]any
	require.NoError(t, json.Unmarshal(read(network.EventRoomData).Data, &snap))
	assert.Equal(t, "lobby", snap["name"])
	assert.Equal(t, "filling", snap["phase"])
}
