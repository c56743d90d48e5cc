// Package chat implements named chat rooms: lazy creation, membership
// tracking, and fan-out recipient resolution. Delivery itself is the
// adapter layer's job; this package only answers "who hears this".
package chat

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotMember reports a send to a room the sender has not joined. A
// nonexistent room is the same error: an empty room is deleted, so nobody
// is a member of it.
var ErrNotMember = errors.New("not a member of that room")

// Manager owns all chat rooms. It is safe for concurrent use. Rooms are
// created lazily on first join and deleted when the last member leaves.
type Manager struct {
	mu     sync.RWMutex
	rooms  map[string]map[uuid.UUID]struct{}
	byConn map[uuid.UUID]map[string]struct{}
	logger *zap.Logger
}

// NewManager creates an empty room table.
//
// Precondition: logger must be non-nil.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		rooms:  make(map[string]map[uuid.UUID]struct{}),
		byConn: make(map[uuid.UUID]map[string]struct{}),
		logger: logger,
	}
}

// Join adds conn to room, creating the room if needed. Joining twice is a
// no-op.
func (m *Manager) Join(conn uuid.UUID, room string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.rooms[room]
	if !ok {
		members = make(map[uuid.UUID]struct{})
		m.rooms[room] = members
		m.logger.Info("room created", zap.String("room", room))
	}
	members[conn] = struct{}{}

	joined, ok := m.byConn[conn]
	if !ok {
		joined = make(map[string]struct{})
		m.byConn[conn] = joined
	}
	joined[room] = struct{}{}
}

// Leave removes conn from room. Leaving a room the connection is not in is
// a no-op; an emptied room is deleted.
func (m *Manager) Leave(conn uuid.UUID, room string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(conn, room)
}

// LeaveAll removes conn from every room it joined and returns those rooms.
// Used when a connection closes.
func (m *Manager) LeaveAll(conn uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	joined := m.byConn[conn]
	rooms := make([]string, 0, len(joined))
	for room := range joined {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	for _, room := range rooms {
		m.leaveLocked(conn, room)
	}
	return rooms
}

// Recipients resolves the fan-out set for a message from conn to room: all
// current members except the sender, who never receives their own echo.
//
// Postcondition: returns ErrNotMember when conn has not joined room.
func (m *Manager) Recipients(conn uuid.UUID, room string) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members, ok := m.rooms[room]
	if !ok {
		return nil, ErrNotMember
	}
	if _, member := members[conn]; !member {
		return nil, ErrNotMember
	}

	out := make([]uuid.UUID, 0, len(members)-1)
	for id := range members {
		if id != conn {
			out = append(out, id)
		}
	}
	return out, nil
}

// Members returns the member set of room, empty for an unknown room.
func (m *Manager) Members(room string) []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]uuid.UUID, 0, len(m.rooms[room]))
	for id := range m.rooms[room] {
		out = append(out, id)
	}
	return out
}

// Rooms returns the rooms conn has joined, sorted by name.
func (m *Manager) Rooms(conn uuid.UUID) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.byConn[conn]))
	for room := range m.byConn[conn] {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) leaveLocked(conn uuid.UUID, room string) {
	members, ok := m.rooms[room]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(m.rooms, room)
		m.logger.Info("room deleted", zap.String("room", room))
	}
	if joined, ok := m.byConn[conn]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(m.byConn, conn)
		}
	}
}
