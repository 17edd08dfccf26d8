// broadcast/broadcast.go
package broadcast

import (
	"errors"

	"github.com/wfunc/thegame/network"
	"github.com/wfunc/thegame/session"
)

var (
	ErrPlayerNotConnected = errors.New("player not connected")
)

// 广播接口
type Broadcaster interface {
	BroadcastToRoom(roomName, event string, payload any) error
	BroadcastToAll(event string, payload any) error
	SendToPlayer(name, event string, payload any) error
}

// SessionBroadcaster fans events out over the connection registry. Delivery is
// fire and forget: a failed send to one connection does not stop the rest.
type SessionBroadcaster struct {
	sessions *session.Manager
	onError  func(sess *session.Session, err error)
}

func NewSessionBroadcaster(sessions *session.Manager) *SessionBroadcaster {
	return &SessionBroadcaster{
		sessions: sessions,
		onError:  func(*session.Session, error) {},
	}
}

// OnError registers a callback for failed sends.
func (b *SessionBroadcaster) OnError(fn func(sess *session.Session, err error)) {
	b.onError = fn
}

// BroadcastToRoom sends to the connections subscribed to the room.
func (b *SessionBroadcaster) BroadcastToRoom(roomName, event string, payload any) error {
	frame, err := network.Encode(event, payload)
	if err != nil {
		return err
	}
	b.deliver(b.sessions.Audience(roomName), frame)
	return nil
}

// BroadcastToAll sends to every live connection, bound or not.
func (b *SessionBroadcaster) BroadcastToAll(event string, payload any) error {
	frame, err := network.Encode(event, payload)
	if err != nil {
		return err
	}
	b.deliver(b.sessions.All(), frame)
	return nil
}

// SendToPlayer sends to the connection currently holding the name.
func (b *SessionBroadcaster) SendToPlayer(name, event string, payload any) error {
	s, ok := b.sessions.LookupConnection(name)
	if !ok {
		return ErrPlayerNotConnected
	}
	return s.Send(event, payload)
}

func (b *SessionBroadcaster) deliver(targets []*session.Session, frame []byte) {
	for _, s := range targets {
		if err := s.SendFrame(frame); err != nil {
			b.onError(s, err)
		}
	}
}
