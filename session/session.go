// session/session.go
package session

import (
	"sync"
	"time"

	"github.com/wfunc/thegame/network"
)

// Session 是一个在线连接
type Session struct {
	ID         string
	Conn       network.Connection
	CreatedAt  time.Time
	LastActive time.Time
	rooms      map[string]struct{} // 接收哪些房间的广播
	mutex      sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
		rooms:      make(map[string]struct{}),
	}
}

func (s *Session) GetID() string {
	return s.ID
}

// Send encodes and queues one event for this connection.
func (s *Session) Send(event string, payload any) error {
	frame, err := network.Encode(event, payload)
	if err != nil {
		return err
	}
	return s.SendFrame(frame)
}

// SendFrame queues an already encoded frame.
func (s *Session) SendFrame(frame []byte) error {
	return s.Conn.Send(frame)
}

func (s *Session) Touch() {
	s.mutex.Lock()
	s.LastActive = time.Now()
	s.mutex.Unlock()
}

// JoinAudience subscribes the connection to a room's broadcasts.
func (s *Session) JoinAudience(roomName string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.rooms[roomName] = struct{}{}
}

func (s *Session) LeaveAudience(roomName string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.rooms, roomName)
}

func (s *Session) InAudience(roomName string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, ok := s.rooms[roomName]
	return ok
}

func (s *Session) Close() error {
	return s.Conn.Close()
}
