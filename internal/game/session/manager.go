package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cairnhall/takserver/internal/game"
)

// State is a session's protocol phase.
type State int

const (
	// StateUnauthenticated is a fresh connection before login.
	StateUnauthenticated State = iota
	// StateIdle is an authenticated session with no seek and no game.
	StateIdle
	// StateSeeking is an authenticated session with an open seek.
	StateSeeking
	// StateInGame is a session bound to a live game.
	StateInGame
)

// String returns a short name for logs.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateIdle:
		return "idle"
	case StateSeeking:
		return "seeking"
	default:
		return "in_game"
	}
}

var (
	// ErrUnknownSession reports an id with no open session.
	ErrUnknownSession = errors.New("unknown session")
	// ErrAlreadyLoggedIn reports a login for a player with a live session.
	ErrAlreadyLoggedIn = errors.New("player already logged in")
)

// Session is one client connection's state. The disconnect overlay is the
// Connected flag: a disconnected session keeps its player, seek, and game
// bindings until the reap window closes.
type Session struct {
	ID     uuid.UUID
	Player game.Player // zero until authenticated

	State     State
	Connected bool
	LastSeen  time.Time

	GameID game.GameID // 0 = not bound to a game

	Outbox *Outbox
}

// Resumed describes the bindings a reconnecting player inherits from their
// disconnected session.
type Resumed struct {
	State  State
	GameID game.GameID
}

// Manager tracks all sessions. All methods are safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	byPlayer map[game.PlayerID]uuid.UUID
	logger   *zap.Logger
}

// NewManager creates an empty session Manager.
//
// Precondition: logger must be non-nil.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[uuid.UUID]*Session),
		byPlayer: make(map[game.PlayerID]uuid.UUID),
		logger:   logger,
	}
}

// Open registers a new unauthenticated session.
//
// Postcondition: the returned session is Connected with an open Outbox.
func (m *Manager) Open() *Session {
	id := uuid.New()
	s := &Session{
		ID:        id,
		State:     StateUnauthenticated,
		Connected: true,
		LastSeen:  time.Now(),
		Outbox:    NewOutbox(id, 64),
	}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.logger.Info("session opened", zap.String("session_id", id.String()))
	return s
}

// Authenticate binds a verified player to the session. If the player has a
// disconnected prior session, its seek/game bindings move to this one and
// the old session is removed; the inherited bindings are returned so the
// caller can resume them. A player with a live connected session cannot log
// in again.
//
// Precondition: the session exists and is unauthenticated.
// Postcondition: on success the session is Idle (or the resumed state) and
// the player maps to it.
func (m *Manager) Authenticate(id uuid.UUID, player game.Player) (*Resumed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}

	var resumed *Resumed
	if oldID, ok := m.byPlayer[player.ID]; ok && oldID != id {
		old := m.sessions[oldID]
		if old != nil && old.Connected {
			return nil, ErrAlreadyLoggedIn
		}
		if old != nil {
			resumed = &Resumed{State: old.State, GameID: old.GameID}
			// Disconnect cancels any open seek, so Seeking cannot
			// survive into the resumed session.
			if resumed.State == StateSeeking {
				resumed.State = StateIdle
			}
			s.State = resumed.State
			s.GameID = old.GameID
			old.Outbox.Close()
			delete(m.sessions, oldID)
			m.logger.Info("session resumed",
				zap.String("player", string(player.ID)),
				zap.String("old_session_id", oldID.String()),
				zap.String("session_id", id.String()),
				zap.String("state", s.State.String()),
			)
		}
	}

	s.Player = player
	if resumed == nil {
		s.State = StateIdle
	}
	s.LastSeen = time.Now()
	m.byPlayer[player.ID] = id

	m.logger.Info("session authenticated",
		zap.String("session_id", id.String()),
		zap.String("player", string(player.ID)),
		zap.Bool("guest", player.Guest),
	)
	return resumed, nil
}

// Heartbeat refreshes the session's liveness timestamp.
func (m *Manager) Heartbeat(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.LastSeen = time.Now()
	}
}

// Get returns the session with the given id.
func (m *Manager) Get(id uuid.UUID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// ByPlayer returns the session bound to a player.
func (m *Manager) ByPlayer(p game.PlayerID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPlayer[p]
	if !ok {
		return nil, false
	}
	s, ok := m.sessions[id]
	return s, ok
}

// ConnectedByPlayer returns p's session only while its transport is live.
func (m *Manager) ConnectedByPlayer(p game.PlayerID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPlayer[p]
	if !ok {
		return nil, false
	}
	s, ok := m.sessions[id]
	if !ok || !s.Connected {
		return nil, false
	}
	return s, true
}

// GameOf returns the session's game binding, 0 when unbound. Bindings are
// written from the matching opponent's goroutine, so reads go through the
// manager's lock.
func (m *Manager) GameOf(id uuid.UUID) game.GameID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok {
		return s.GameID
	}
	return 0
}

// Gagged reports whether the session's player is gagged. Moderation flips
// the flag from the admin's goroutine, so reads go through the manager's
// lock.
func (m *Manager) Gagged(id uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok {
		return s.Player.Gagged
	}
	return false
}

// SetPlayerGagged updates the gag flag on a player's live session, if any.
func (m *Manager) SetPlayerGagged(p game.PlayerID, gagged bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPlayer[p]
	if !ok {
		return false
	}
	s, ok := m.sessions[id]
	if !ok {
		return false
	}
	s.Player.Gagged = gagged
	return true
}

// SetState transitions the session's protocol phase.
func (m *Manager) SetState(id uuid.UUID, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.State = state
	}
}

// BindGame binds the session to a game and moves it to StateInGame.
//
// Precondition: the session is not already bound to a different game.
func (m *Manager) BindGame(id uuid.UUID, gameID game.GameID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	if s.GameID != 0 && s.GameID != gameID {
		panic("session: BindGame() precondition violated: session already bound to a game")
	}
	s.GameID = gameID
	s.State = StateInGame
}

// UnbindGame clears the game binding, returning the session to Idle.
func (m *Manager) UnbindGame(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.GameID = 0
		if s.State == StateInGame {
			s.State = StateIdle
		}
	}
}

// UnbindIfGame clears p's game binding when it matches gameID. A session
// already rebound to a newer game is left alone.
func (m *Manager) UnbindIfGame(p game.PlayerID, gameID game.GameID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPlayer[p]
	if !ok {
		return
	}
	s, ok := m.sessions[id]
	if !ok || s.GameID != gameID {
		return
	}
	s.GameID = 0
	if s.State == StateInGame {
		s.State = StateIdle
	}
}

// MarkDisconnected flips the disconnect overlay on without destroying the
// session's bindings. Its outbox is closed; a reconnect gets a fresh one.
func (m *Manager) MarkDisconnected(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !s.Connected {
		return
	}
	s.Connected = false
	s.Outbox.Close()
	m.logger.Info("session disconnected",
		zap.String("session_id", id.String()),
		zap.String("player", string(s.Player.ID)),
		zap.String("state", s.State.String()),
	)
}

// Close removes the session entirely.
func (m *Manager) Close(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked(id)
}

func (m *Manager) closeLocked(id uuid.UUID) {
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	s.Outbox.Close()
	delete(m.sessions, id)
	if s.Player.ID != "" && m.byPlayer[s.Player.ID] == id {
		delete(m.byPlayer, s.Player.ID)
	}
	m.logger.Info("session closed", zap.String("session_id", id.String()))
}

// SweepStale marks connected sessions without liveness inside the window
// as disconnected and returns them, so the caller can notify their games.
func (m *Manager) SweepStale(window time.Duration) []*Session {
	cutoff := time.Now().Add(-window)

	m.mu.Lock()
	defer m.mu.Unlock()

	var stale []*Session
	for _, s := range m.sessions {
		if s.Connected && s.LastSeen.Before(cutoff) {
			s.Connected = false
			s.Outbox.Close()
			stale = append(stale, s)
			m.logger.Info("session timed out",
				zap.String("session_id", s.ID.String()),
				zap.String("player", string(s.Player.ID)),
				zap.Duration("liveness_window", window),
			)
		}
	}
	return stale
}

// ReapDisconnected removes sessions that have been disconnected longer than
// grace. Their reconnect window is over.
func (m *Manager) ReapDisconnected(grace time.Duration) []*Session {
	cutoff := time.Now().Add(-grace)

	m.mu.Lock()
	defer m.mu.Unlock()

	var reaped []*Session
	for id, s := range m.sessions {
		if !s.Connected && s.LastSeen.Before(cutoff) {
			reaped = append(reaped, s)
			m.closeLocked(id)
		}
	}
	return reaped
}

// Connected returns all connected, authenticated sessions. Used for
// broadcast fan-out such as global shouts and seek announcements.
func (m *Manager) Connected() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.Connected && s.State != StateUnauthenticated {
			out = append(out, s)
		}
	}
	return out
}
