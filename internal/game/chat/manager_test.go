package chat

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestManager(t *testing.T) *Manager {
	return NewManager(zaptest.NewLogger(t))
}

func TestJoinAndRecipients(t *testing.T) {
	m := newTestManager(t)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	m.Join(a, "Global")
	m.Join(b, "Global")
	m.Join(c, "Global")

	recipients, err := m.Recipients(a, "Global")
	require.NoError(t, err)
	assert.Len(t, recipients, 2)
	assert.NotContains(t, recipients, a, "the sender never hears their own echo")
	assert.Contains(t, recipients, b)
	assert.Contains(t, recipients, c)
}

func TestRecipientsRequiresMembership(t *testing.T) {
	m := newTestManager(t)
	a, b := uuid.New(), uuid.New()

	m.Join(b, "Global")

	_, err := m.Recipients(a, "Global")
	assert.ErrorIs(t, err, ErrNotMember)

	_, err = m.Recipients(a, "nowhere")
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestLeaveIsIdempotentAndDeletesEmptyRooms(t *testing.T) {
	m := newTestManager(t)
	a, b := uuid.New(), uuid.New()

	m.Join(a, "Global")
	m.Join(b, "Global")

	m.Leave(a, "Global")
	m.Leave(a, "Global") // no-op
	assert.Empty(t, m.Rooms(a))
	assert.Len(t, m.Members("Global"), 1)

	m.Leave(b, "Global")
	assert.Empty(t, m.Members("Global"))

	// The emptied room is gone: a former member can no longer send to it.
	_, err := m.Recipients(b, "Global")
	assert.ErrorIs(t, err, ErrNotMember)

	// Re-joining recreates it lazily.
	m.Join(a, "Global")
	assert.Len(t, m.Members("Global"), 1)
}

func TestDoubleJoinIsNoOp(t *testing.T) {
	m := newTestManager(t)
	a := uuid.New()

	m.Join(a, "Global")
	m.Join(a, "Global")
	assert.Len(t, m.Members("Global"), 1)
	assert.Equal(t, []string{"Global"}, m.Rooms(a))
}

func TestLeaveAll(t *testing.T) {
	m := newTestManager(t)
	a, b := uuid.New(), uuid.New()

	m.Join(a, "Global")
	m.Join(a, "Game42")
	m.Join(b, "Global")

	rooms := m.LeaveAll(a)
	assert.Equal(t, []string{"Game42", "Global"}, rooms)
	assert.Empty(t, m.Rooms(a))
	assert.Len(t, m.Members("Global"), 1, "other members are unaffected")
	assert.Empty(t, m.Members("Game42"), "the emptied room is deleted")

	assert.Empty(t, m.LeaveAll(a), "a second LeaveAll finds nothing")
}
