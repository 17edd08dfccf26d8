package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"time"

	"github.com/wfunc/thegame/logger"
	"github.com/wfunc/thegame/models"
	"github.com/wfunc/thegame/room"
)

const (
	defaultRecentLimit = 20
	queryTimeout       = 5 * time.Second
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	server   *rpc.Server
	address  string
}

// NewServer listens on addr and serves the given admin service. It uses its
// own rpc.Server so tests can run several side by side.
func NewServer(addr string, admin *AdminService) (*Server, error) {
	server := rpc.NewServer()
	if err := server.Register(admin); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		server:   server,
		address:  listener.Addr().String(),
	}, nil
}

// Addr is the bound listen address.
func (s *Server) Addr() string {
	return s.address
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.server.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// RoomLister is the read side of the room coordinator.
type RoomLister interface {
	Snapshots() ([]room.Snapshot, error)
}

// GameHistory is the read side of the game archive.
type GameHistory interface {
	RecentGames(ctx context.Context, limit int) ([]models.GameRecord, error)
}

// AdminService is the struct that exposes RPC methods.
// Methods follow the net/rpc signature: exported method, exported arguments,
// second argument is a pointer, return type is error.
type AdminService struct {
	rooms   RoomLister
	history GameHistory
}

func NewAdminService(rooms RoomLister, history GameHistory) *AdminService {
	return &AdminService{rooms: rooms, history: history}
}

// ListRoomsArgs filters by phase when Phase is set.
type ListRoomsArgs struct {
	Phase string
}

type ListRoomsReply struct {
	Rooms []RoomInfo
}

// RoomInfo is a room listing without the game payload.
type RoomInfo struct {
	Name       string
	Phase      string
	Players    []string
	Spectators []string
}

func (a *AdminService) ListRooms(args *ListRoomsArgs, reply *ListRoomsReply) error {
	snapshots, err := a.rooms.Snapshots()
	if err != nil {
		return err
	}
	reply.Rooms = make([]RoomInfo, 0, len(snapshots))
	for _, s := range snapshots {
		if args.Phase != "" && args.Phase != s.Phase {
			continue
		}
		reply.Rooms = append(reply.Rooms, RoomInfo{
			Name:       s.Name,
			Phase:      s.Phase,
			Players:    s.Players,
			Spectators: s.Spectators,
		})
	}
	return nil
}

type RecentGamesArgs struct {
	Limit int
}

type RecentGamesReply struct {
	Games []models.GameRecord
}

func (a *AdminService) RecentGames(args *RecentGamesArgs, reply *RecentGamesReply) error {
	limit := args.Limit
	if limit <= 0 {
		limit = defaultRecentLimit
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	games, err := a.history.RecentGames(ctx, limit)
	if err != nil {
		return err
	}
	reply.Games = games
	return nil
}
