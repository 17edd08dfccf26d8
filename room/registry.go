package room

import (
	"errors"
	"sync"
)

var (
	ErrRoomNotFound = errors.New("room not found")
)

// Registry 管理所有房间，并限制房间总数
type Registry[G GameState] struct {
	rooms    map[string]*Room[G]
	maxRooms int
	newGame  Factory[G]
	mutex    sync.RWMutex
}

// NewRegistry 创建房间注册表
func NewRegistry[G GameState](maxRooms int, newGame Factory[G]) *Registry[G] {
	return &Registry[G]{
		rooms:    make(map[string]*Room[G]),
		maxRooms: maxRooms,
		newGame:  newGame,
	}
}

// Exists 判断房间是否存在
func (m *Registry[G]) Exists(name string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, exists := m.rooms[name]
	return exists
}

// Create inserts a fresh room under name. It refuses when the registry is full and
// never evicts. An existing room with the same name is replaced, so callers check
// Exists first.
func (m *Registry[G]) Create(name string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if len(m.rooms) >= m.maxRooms {
		return false
	}
	m.rooms[name] = NewRoom(name, m.newGame(name))
	return true
}

// EnsureExists creates the room only when absent. It returns whether the room exists afterwards.
func (m *Registry[G]) EnsureExists(name string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.rooms[name]; exists {
		return true
	}
	if len(m.rooms) >= m.maxRooms {
		return false
	}
	m.rooms[name] = NewRoom(name, m.newGame(name))
	return true
}

// Get 获取房间，不存在时返回 ErrRoomNotFound
func (m *Registry[G]) Get(name string) (*Room[G], error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	room, exists := m.rooms[name]
	if !exists {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Remove 删除房间
func (m *Registry[G]) Remove(name string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.rooms, name)
	return true
}

// List returns the rooms in no particular order.
func (m *Registry[G]) List() []*Room[G] {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	rooms := make([]*Room[G], 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

func (m *Registry[G]) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// IsAtCapacity 房间数是否已达上限
func (m *Registry[G]) IsAtCapacity() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms) >= m.maxRooms
}
