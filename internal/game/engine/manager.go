package engine

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cairnhall/takserver/internal/game"
	"github.com/cairnhall/takserver/internal/game/clock"
	"github.com/cairnhall/takserver/internal/game/rules"
	"github.com/cairnhall/takserver/internal/game/seek"
)

// Manager owns the game table: id allocation, creation from matches and
// rematch agreements, and player-to-game binding. It is safe for concurrent
// use.
type Manager struct {
	mu       sync.RWMutex
	nextID   game.GameID
	games    map[game.GameID]*Game
	byPlayer map[game.PlayerID]game.GameID // live games only

	rules   rules.Engine
	presets game.Presets
	policy  Policy
	notify  Notify
	logger  *zap.Logger
}

// NewManager creates an empty game table.
//
// Precondition: engine, presets, notify and logger must be non-nil.
func NewManager(engine rules.Engine, presets game.Presets, policy Policy, notify Notify, logger *zap.Logger) *Manager {
	return &Manager{
		nextID:   1,
		games:    make(map[game.GameID]*Game),
		byPlayer: make(map[game.PlayerID]game.GameID),
		rules:    engine,
		presets:  presets,
		policy:   policy,
		notify:   notify,
		logger:   logger,
	}
}

// CreateFromMatch builds a Pending game from a seek match. It runs inside
// the registry's match callback, so it emits nothing; the caller announces
// and activates the game once both players have been told about it.
func (m *Manager) CreateFromMatch(match seek.Match) *Game {
	spec := match.Seek.Spec
	return m.create(match.White, match.Black, spec.Size, spec.TimeControl, spec.Rated)
}

// CreateRematch builds the follow-up game for a completed one: colors
// swapped, same board and time control.
func (m *Manager) CreateRematch(prev *Game) *Game {
	return m.create(prev.Black(), prev.White(), prev.Size(), prev.TimeControl(), prev.Rated())
}

func (m *Manager) create(white, black game.PlayerID, size int, tc game.TimeControl, rated bool) *Game {
	m.mu.Lock()
	id := m.nextID
	m.nextID++

	g := &Game{
		id:        id,
		white:     white,
		black:     black,
		preset:    m.presets[size],
		tc:        tc,
		rated:     rated,
		state:     StatePending,
		rules:     m.rules,
		policy:    m.policy,
		createdAt: time.Now(),
		logger:    m.logger,
	}
	g.notify = m.interceptCompletion
	g.clock = clock.New(tc, g.onFlag)
	if m.policy.PendingTimeout > 0 {
		g.pendingTimer = newDeferredTimer(m.policy.PendingTimeout, g.onPendingExpired)
	}

	m.games[id] = g
	m.byPlayer[white] = id
	m.byPlayer[black] = id
	m.mu.Unlock()

	m.logger.Info("game created",
		zap.Uint32("game_id", uint32(id)),
		zap.String("white", string(white)),
		zap.String("black", string(black)),
		zap.Int("size", size),
		zap.String("time_control", tc.String()),
		zap.Bool("rated", rated),
	)
	return g
}

// interceptCompletion unbinds both players on the terminal event before
// forwarding it, so a completed game no longer blocks new matches.
func (m *Manager) interceptCompletion(ev Event) {
	if ev.Type == EventCompleted {
		m.mu.Lock()
		if m.byPlayer[ev.White] == ev.GameID {
			delete(m.byPlayer, ev.White)
		}
		if m.byPlayer[ev.Black] == ev.GameID {
			delete(m.byPlayer, ev.Black)
		}
		m.mu.Unlock()

		// Completed games stay addressable for the rematch window, then
		// leave the table.
		if m.policy.RematchWindow > 0 {
			id := ev.GameID
			newDeferredTimer(m.policy.RematchWindow, func() {
				m.mu.Lock()
				delete(m.games, id)
				m.mu.Unlock()
			})
		}
	}
	m.notify(ev)
}

// Get returns the game with the given id.
func (m *Manager) Get(id game.GameID) (*Game, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	return g, ok
}

// LiveGameOf returns the pending, active, or paused game p participates in.
func (m *Manager) LiveGameOf(p game.PlayerID) (*Game, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byPlayer[p]
	if !ok {
		return nil, false
	}
	g, ok := m.games[id]
	return g, ok
}

// RequestRematch records p's offer on a completed game and, on agreement,
// creates the follow-up game.
func (m *Manager) RequestRematch(id game.GameID, p game.PlayerID) (*Game, error) {
	g, ok := m.Get(id)
	if !ok {
		return nil, ErrGameOver
	}
	agreed, err := g.RequestRematch(p)
	if err != nil || !agreed {
		return nil, err
	}
	return m.CreateRematch(g), nil
}
