package session

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cairnhall/takserver/internal/game"
)

func newTestManager(t *testing.T) *Manager {
	return NewManager(zaptest.NewLogger(t))
}

func alice() game.Player {
	return game.Player{ID: "alice", Name: "alice", Rating: 1000}
}

func TestOpenAndAuthenticate(t *testing.T) {
	m := newTestManager(t)
	s := m.Open()

	assert.Equal(t, StateUnauthenticated, s.State)
	assert.True(t, s.Connected)

	resumed, err := m.Authenticate(s.ID, alice())
	require.NoError(t, err)
	assert.Nil(t, resumed)
	assert.Equal(t, StateIdle, s.State)

	got, ok := m.ByPlayer("alice")
	require.True(t, ok)
	assert.Equal(t, s.ID, got.ID)
}

func TestAuthenticateUnknownSession(t *testing.T) {
	m := newTestManager(t)
	s := m.Open()
	m.Close(s.ID)

	_, err := m.Authenticate(s.ID, alice())
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestDuplicateLoginRejectedWhileConnected(t *testing.T) {
	m := newTestManager(t)
	first := m.Open()
	_, err := m.Authenticate(first.ID, alice())
	require.NoError(t, err)

	second := m.Open()
	_, err = m.Authenticate(second.ID, alice())
	assert.ErrorIs(t, err, ErrAlreadyLoggedIn)
}

func TestReconnectInheritsBindings(t *testing.T) {
	m := newTestManager(t)
	first := m.Open()
	_, err := m.Authenticate(first.ID, alice())
	require.NoError(t, err)

	m.BindGame(first.ID, 42)
	m.MarkDisconnected(first.ID)
	assert.True(t, first.Outbox.IsClosed())

	second := m.Open()
	resumed, err := m.Authenticate(second.ID, alice())
	require.NoError(t, err)
	require.NotNil(t, resumed)
	assert.Equal(t, StateInGame, resumed.State)
	assert.Equal(t, game.GameID(42), resumed.GameID)
	assert.Equal(t, StateInGame, second.State)
	assert.Equal(t, game.GameID(42), second.GameID)

	// The old session is gone; the player maps to the new one.
	_, ok := m.Get(first.ID)
	assert.False(t, ok)
	got, ok := m.ByPlayer("alice")
	require.True(t, ok)
	assert.Equal(t, second.ID, got.ID)
}

func TestReconnectDropsSeekingState(t *testing.T) {
	m := newTestManager(t)
	first := m.Open()
	_, err := m.Authenticate(first.ID, alice())
	require.NoError(t, err)

	m.SetState(first.ID, StateSeeking)
	m.MarkDisconnected(first.ID)

	// The seek died with the connection; the new session starts over.
	second := m.Open()
	resumed, err := m.Authenticate(second.ID, alice())
	require.NoError(t, err)
	require.NotNil(t, resumed)
	assert.Equal(t, StateIdle, resumed.State)
	assert.Equal(t, StateIdle, second.State)
}

func TestBindAndUnbindGame(t *testing.T) {
	m := newTestManager(t)
	s := m.Open()
	_, err := m.Authenticate(s.ID, alice())
	require.NoError(t, err)

	m.BindGame(s.ID, 7)
	assert.Equal(t, StateInGame, s.State)
	assert.Equal(t, game.GameID(7), s.GameID)

	// Rebinding to the same game is fine; a different one violates the
	// one-game-per-connection invariant.
	m.BindGame(s.ID, 7)
	assert.Panics(t, func() { m.BindGame(s.ID, 8) })

	m.UnbindGame(s.ID)
	assert.Equal(t, StateIdle, s.State)
	assert.Equal(t, game.GameID(0), s.GameID)
}

func TestUnbindIfGameIgnoresNewerBinding(t *testing.T) {
	m := newTestManager(t)
	s := m.Open()
	_, err := m.Authenticate(s.ID, alice())
	require.NoError(t, err)
	m.BindGame(s.ID, 3)

	m.UnbindIfGame("alice", 99)
	assert.Equal(t, game.GameID(3), m.GameOf(s.ID), "a stale completion must not clear a newer binding")

	m.UnbindIfGame("alice", 3)
	assert.Equal(t, game.GameID(0), m.GameOf(s.ID))
	assert.Equal(t, StateIdle, s.State)
}

func TestSetPlayerGaggedTracksLiveSession(t *testing.T) {
	m := newTestManager(t)
	s := m.Open()
	_, err := m.Authenticate(s.ID, alice())
	require.NoError(t, err)

	assert.False(t, m.SetPlayerGagged("nobody", true))
	assert.False(t, m.Gagged(s.ID))

	assert.True(t, m.SetPlayerGagged("alice", true))
	assert.True(t, m.Gagged(s.ID))

	assert.True(t, m.SetPlayerGagged("alice", false))
	assert.False(t, m.Gagged(s.ID))
}

func TestAccessorsAreSafeUnderConcurrency(t *testing.T) {
	m := newTestManager(t)
	s := m.Open()
	_, err := m.Authenticate(s.ID, alice())
	require.NoError(t, err)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 4; i++ {
		on := i%2 == 0
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 200; j++ {
				m.SetPlayerGagged("alice", on)
				m.Gagged(s.ID)
				m.GameOf(s.ID)
				m.ConnectedByPlayer("alice")
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		for j := 0; j < 200; j++ {
			m.BindGame(s.ID, 3)
			m.UnbindIfGame("alice", 3)
		}
	}()
	close(start)
	wg.Wait()

	assert.Equal(t, game.GameID(0), m.GameOf(s.ID))
}

func TestMarkDisconnectedKeepsBindings(t *testing.T) {
	m := newTestManager(t)
	s := m.Open()
	_, err := m.Authenticate(s.ID, alice())
	require.NoError(t, err)
	m.BindGame(s.ID, 9)

	m.MarkDisconnected(s.ID)
	m.MarkDisconnected(s.ID) // idempotent

	got, ok := m.Get(s.ID)
	require.True(t, ok)
	assert.False(t, got.Connected)
	assert.Equal(t, game.GameID(9), got.GameID)
	assert.Equal(t, StateInGame, got.State)
}

func TestSweepStale(t *testing.T) {
	m := newTestManager(t)
	fresh := m.Open()
	stale := m.Open()
	_, err := m.Authenticate(stale.ID, alice())
	require.NoError(t, err)

	// Backdate the stale session's liveness.
	m.mu.Lock()
	m.sessions[stale.ID].LastSeen = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	swept := m.SweepStale(time.Minute)
	require.Len(t, swept, 1)
	assert.Equal(t, stale.ID, swept[0].ID)
	assert.False(t, swept[0].Connected)

	got, ok := m.Get(fresh.ID)
	require.True(t, ok)
	assert.True(t, got.Connected)

	assert.Empty(t, m.SweepStale(time.Minute), "a second sweep finds nothing")
}

func TestReapDisconnected(t *testing.T) {
	m := newTestManager(t)
	s := m.Open()
	_, err := m.Authenticate(s.ID, alice())
	require.NoError(t, err)
	m.MarkDisconnected(s.ID)

	assert.Empty(t, m.ReapDisconnected(time.Minute), "still inside the grace window")

	m.mu.Lock()
	m.sessions[s.ID].LastSeen = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	reaped := m.ReapDisconnected(time.Minute)
	require.Len(t, reaped, 1)
	_, ok := m.Get(s.ID)
	assert.False(t, ok)
	_, ok = m.ByPlayer("alice")
	assert.False(t, ok)
}

func TestConnectedListsAuthenticatedOnly(t *testing.T) {
	m := newTestManager(t)
	m.Open() // stays unauthenticated
	s := m.Open()
	_, err := m.Authenticate(s.ID, alice())
	require.NoError(t, err)

	conns := m.Connected()
	require.Len(t, conns, 1)
	assert.Equal(t, s.ID, conns[0].ID)
}

func TestOutbox(t *testing.T) {
	o := NewOutbox(uuid.New(), 2)

	require.NoError(t, o.Push("OK"))
	require.NoError(t, o.Push("NOK"))
	assert.Error(t, o.Push("overflow"), "a full buffer is an error, not a block")

	assert.Equal(t, "OK", <-o.Lines())

	o.Close()
	o.Close() // idempotent
	assert.True(t, o.IsClosed())
	assert.Error(t, o.Push("after close"))

	// The channel drains what was queued, then reports closed.
	assert.Equal(t, "NOK", <-o.Lines())
	_, open := <-o.Lines()
	assert.False(t, open)
}
