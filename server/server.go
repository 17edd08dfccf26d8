package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/thegame/broadcast"
	"github.com/wfunc/thegame/config"
	"github.com/wfunc/thegame/coordinator"
	"github.com/wfunc/thegame/game"
	"github.com/wfunc/thegame/logger"
	"github.com/wfunc/thegame/network"
	"github.com/wfunc/thegame/room"
	"github.com/wfunc/thegame/session"
)

const eventQueueSize = 1024

// Metrics is what the server reports about connections and events.
type Metrics interface {
	IncConnectedSockets()
	DecConnectedSockets()
	SetBoundPlayers(count int)
	IncEventsReceived(event string)
	ObserveEventLatency(duration time.Duration)
}

// GameRecorder is told about game progress the coordinator cannot see.
type GameRecorder interface {
	TurnEnded(roomName string)
	GameWon(roomName string)
}

type nopMetrics struct{}

func (nopMetrics) IncConnectedSockets()              {}
func (nopMetrics) DecConnectedSockets()              {}
func (nopMetrics) SetBoundPlayers(int)               {}
func (nopMetrics) IncEventsReceived(string)          {}
func (nopMetrics) ObserveEventLatency(time.Duration) {}

type nopRecorder struct{}

func (nopRecorder) TurnEnded(string) {}
func (nopRecorder) GameWon(string)   {}

type Option func(*GameServer)

func WithMetrics(m Metrics) Option {
	return func(s *GameServer) {
		s.metrics = m
	}
}

func WithRecorder(r GameRecorder) Option {
	return func(s *GameServer) {
		s.recorder = r
	}
}

// WithObserver adds an observer of coordinator transitions.
func WithObserver(o coordinator.Observer) Option {
	return func(s *GameServer) {
		s.observers = append(s.observers, o)
	}
}

// WithGameOptions is applied to every game the server creates.
func WithGameOptions(opts ...game.Option) Option {
	return func(s *GameServer) {
		s.gameOptions = append(s.gameOptions, opts...)
	}
}

// inbound is one unit of work for the event loop. A nil msg means the
// connection has gone away.
type inbound struct {
	sess *session.Session
	msg  *network.Message
}

type GameServer struct {
	cfg         *config.Config
	upgrader    websocket.Upgrader
	httpServer  *http.Server
	sessions    *session.Manager
	broadcaster broadcast.Broadcaster
	coordinator *coordinator.Coordinator[*game.Data]
	metrics     Metrics
	recorder    GameRecorder
	observers   coordinator.Observers
	gameOptions []game.Option
	events      chan inbound

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewGameServer(cfg *config.Config, opts ...Option) *GameServer {
	s := &GameServer{
		cfg:          cfg,
		sessions:     session.NewManager(),
		metrics:      nopMetrics{},
		recorder:     nopRecorder{},
		events:       make(chan inbound, eventQueueSize),
		shutdownChan: make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	sb := broadcast.NewSessionBroadcaster(s.sessions)
	sb.OnError(func(sess *session.Session, err error) {
		logger.Log.Warnw("failed to deliver event", "session", sess.GetID(), "error", err)
	})
	s.broadcaster = sb

	rooms := room.NewRegistry[*game.Data](cfg.Rooms.MaxRooms, game.NewFactory(s.gameOptions...))
	s.coordinator = coordinator.New(rooms, coordinator.Settings{
		MaxPlayersPerRoom:    cfg.Rooms.MaxPlayersPerRoom,
		MaxSpectatorsPerRoom: cfg.Rooms.MaxSpectatorsPerRoom,
		RetainedRooms:        cfg.Rooms.Names,
	}, s, s.observers)

	return s
}

// Coordinator exposes the room coordinator for read-only consumers such as the admin RPC.
func (s *GameServer) Coordinator() *coordinator.Coordinator[*game.Data] {
	return s.coordinator
}

// Handler routes the HTTP endpoints.
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start creates the retained rooms, starts the event loop and serves HTTP
// until Shutdown.
func (s *GameServer) Start() error {
	s.Prepare()

	s.httpServer = &http.Server{
		Addr:    s.cfg.ListenAddress(),
		Handler: s.Handler(),
	}
	logger.Log.Infof("Listening on %s port %d", s.cfg.Server.HostName, s.cfg.Server.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Prepare creates the retained rooms and starts the event loop.
func (s *GameServer) Prepare() {
	for _, name := range s.coordinator.EnsureRetainedRooms() {
		logger.Log.Warnf("Could not create retained room %s because the room limit has been reached!", name)
	}
	go s.run()
}

func (s *GameServer) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
	})
	for _, sess := range s.sessions.All() {
		sess.Close()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *GameServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte("<h1>Welcome to the server!</h1>"))
}

func (s *GameServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":      "ok",
		"rooms":       s.coordinator.RoomCount(),
		"connections": s.sessions.Count(),
	})
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	go s.serveConnection(network.NewWSConnection(conn))
}

// open registers a new connection.
func (s *GameServer) open(conn network.Connection) *session.Session {
	sess := session.NewSession(uuid.New().String(), conn)
	s.sessions.Add(sess)
	s.metrics.IncConnectedSockets()
	logger.Log.Infof("New connection from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())
	return sess
}

// serveConnection is the read loop of one connection. Messages are handed to
// the event loop; the loop also handles the final disconnect.
func (s *GameServer) serveConnection(conn network.Connection) {
	sess := s.open(conn)
	defer s.enqueue(inbound{sess: sess})

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, network.ErrMalformedMessage) {
				logger.Log.Warnw("malformed message", "session", sess.GetID(), "error", err)
				continue
			}
			return
		}
		sess.Touch()
		if !s.enqueue(inbound{sess: sess, msg: msg}) {
			return
		}
	}
}

func (s *GameServer) enqueue(in inbound) bool {
	select {
	case s.events <- in:
		return true
	case <-s.shutdownChan:
		return false
	}
}

// run processes inbound events one at a time.
func (s *GameServer) run() {
	for {
		select {
		case in := <-s.events:
			s.dispatch(in)
		case <-s.shutdownChan:
			return
		}
	}
}

func (s *GameServer) dispatch(in inbound) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorw("panic while handling event", "session", in.sess.GetID(), "panic", r)
		}
		s.metrics.ObserveEventLatency(time.Since(start))
	}()

	if in.msg == nil {
		s.metrics.IncEventsReceived(network.EventDisconnect)
		s.disconnect(in.sess)
		return
	}
	s.metrics.IncEventsReceived(in.msg.Event)
	s.route(in.sess, in.msg)
}

// Kick tells a spectator's connection it has been evicted and stops its room broadcasts.
func (s *GameServer) Kick(roomName, name string) {
	logger.Log.Infof("Kicking spectator %s from room %s", name, roomName)
	if sess, ok := s.sessions.LookupConnection(name); ok {
		sess.LeaveAudience(roomName)
	}
	err := s.broadcaster.SendToPlayer(name, network.EventKick, nil)
	if err != nil && !errors.Is(err, broadcast.ErrPlayerNotConnected) {
		logger.Log.Warnw("failed to kick spectator", "room", roomName, "player", name, "error", err)
	}
}
