package session

import (
	"slices"
	"sync"
)

// Manager is the connection registry. It tracks every live connection and the
// player name each one has claimed.
//
// Names are not unique: a second connection claiming a name takes over the
// name->connection direction, while each connection keeps its own claim.
type Manager struct {
	sessions    map[string]*Session // session ID -> session
	identities  map[string]string   // session ID -> player name
	connections map[string]*Session // player name -> session, last writer wins
	mutex       sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions:    make(map[string]*Session),
		identities:  make(map[string]string),
		connections: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

// Remove forgets the connection and any binding it holds.
func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.unbindLocked(sessionID)
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// All returns every live connection.
func (m *Manager) All() []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		result = append(result, s)
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// Bind associates the connection with a claimed player name. Rebinding a
// connection to a new name releases its old name if it still points here.
func (m *Manager) Bind(session *Session, name string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.unbindLocked(session.ID)
	m.sessions[session.ID] = session
	m.identities[session.ID] = name
	m.connections[name] = session
}

// Unbind drops the connection's claim and returns the name it held.
func (m *Manager) Unbind(sessionID string) (string, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.unbindLocked(sessionID)
}

func (m *Manager) unbindLocked(sessionID string) (string, bool) {
	name, ok := m.identities[sessionID]
	if !ok {
		return "", false
	}
	delete(m.identities, sessionID)
	// a newer connection may have claimed the name since
	if current, exists := m.connections[name]; exists && current.ID == sessionID {
		delete(m.connections, name)
	}
	return name, true
}

// LookupIdentity returns the name claimed by the connection.
func (m *Manager) LookupIdentity(sessionID string) (string, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	name, ok := m.identities[sessionID]
	return name, ok
}

// LookupConnection returns the connection currently holding the name.
func (m *Manager) LookupConnection(name string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, ok := m.connections[name]
	return session, ok
}

// PlayerNames returns the distinct bound names, sorted.
func (m *Manager) PlayerNames() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	names := make([]string, 0, len(m.identities))
	for _, name := range m.identities {
		names = append(names, name)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Audience returns the connections subscribed to a room's broadcasts.
func (m *Manager) Audience(roomName string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, s := range m.sessions {
		if s.InAudience(roomName) {
			result = append(result, s)
		}
	}
	return result
}
