package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairnhall/takserver/internal/game"
	"github.com/cairnhall/takserver/internal/storage/postgres"
	"github.com/cairnhall/takserver/internal/testutil"
)

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}

func TestAccountRepository_CreateAndAuthenticate(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewAccountRepository(pool)
	ctx := context.Background()

	name := uniqueName("alice")
	created, err := repo.Create(ctx, name, "password123")
	require.NoError(t, err)
	assert.Greater(t, created.ID, int64(0))
	assert.Equal(t, name, created.Username)
	assert.False(t, created.Banned)
	assert.False(t, created.Gagged)
	assert.False(t, created.Admin)
	assert.Zero(t, created.GamesPlayed)

	acct, err := repo.Authenticate(ctx, name, "password123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, acct.ID)

	_, err = repo.Authenticate(ctx, name, "wrong")
	assert.ErrorIs(t, err, postgres.ErrInvalidCredentials)

	_, err = repo.Authenticate(ctx, uniqueName("nobody"), "password123")
	assert.ErrorIs(t, err, postgres.ErrAccountNotFound)
}

func TestAccountRepository_DuplicateUsername(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewAccountRepository(pool)
	ctx := context.Background()

	name := uniqueName("bob")
	_, err := repo.Create(ctx, name, "password123")
	require.NoError(t, err)

	_, err = repo.Create(ctx, name, "otherpass")
	assert.ErrorIs(t, err, postgres.ErrAccountExists)
}

func TestAccountRepository_ModerationFlags(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewAccountRepository(pool)
	ctx := context.Background()

	name := uniqueName("mallory")
	_, err := repo.Create(ctx, name, "password123")
	require.NoError(t, err)

	require.NoError(t, repo.SetBanned(ctx, name, true))
	require.NoError(t, repo.SetGagged(ctx, name, true))
	require.NoError(t, repo.SetAdmin(ctx, name, true))

	acct, err := repo.GetByUsername(ctx, name)
	require.NoError(t, err)
	assert.True(t, acct.Banned)
	assert.True(t, acct.Gagged)
	assert.True(t, acct.Admin)

	require.NoError(t, repo.SetBanned(ctx, name, false))
	acct, err = repo.GetByUsername(ctx, name)
	require.NoError(t, err)
	assert.False(t, acct.Banned)

	err = repo.SetBanned(ctx, uniqueName("ghost"), true)
	assert.ErrorIs(t, err, postgres.ErrAccountNotFound)
}

func TestAccountRepository_IncrementGamesPlayed(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewAccountRepository(pool)
	ctx := context.Background()

	white := uniqueName("white")
	black := uniqueName("black")
	_, err := repo.Create(ctx, white, "password123")
	require.NoError(t, err)
	_, err = repo.Create(ctx, black, "password123")
	require.NoError(t, err)

	require.NoError(t, repo.IncrementGamesPlayed(ctx, white, black))

	acct, err := repo.GetByUsername(ctx, white)
	require.NoError(t, err)
	assert.Equal(t, 1, acct.GamesPlayed)

	err = repo.IncrementGamesPlayed(ctx, white, uniqueName("ghost"))
	assert.ErrorIs(t, err, postgres.ErrAccountNotFound)
}

func TestGameRepository_Lifecycle(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewGameRepository(pool)
	ctx := context.Background()

	tc := game.TimeControl{Contingent: 600 * time.Second, Increment: 10 * time.Second}
	id, err := repo.Insert(ctx, "alice", "bob", 5, tc, true)
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	require.NoError(t, repo.RecordMove(ctx, id, 0, "P A1"))
	require.NoError(t, repo.RecordMove(ctx, id, 1, "P E5"))
	require.NoError(t, repo.RecordMove(ctx, id, 2, "P C3 C"))

	// Replaying a ply must not corrupt the history.
	err = repo.RecordMove(ctx, id, 2, "P D4")
	require.Error(t, err)

	require.NoError(t, repo.Complete(ctx, id, game.ResultRoadWhite, "road"))

	rec, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.White)
	assert.Equal(t, "bob", rec.Black)
	assert.Equal(t, 5, rec.Size)
	assert.Equal(t, 600, rec.Contingent)
	assert.Equal(t, 10, rec.Increment)
	assert.True(t, rec.Rated)
	assert.Equal(t, string(game.ResultRoadWhite), rec.Result)
	assert.Equal(t, "road", rec.Reason)
	require.NotNil(t, rec.EndedAt)

	moves, err := repo.Moves(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"P A1", "P E5", "P C3 C"}, moves)
}

func TestGameRepository_CompleteIsExactlyOnce(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewGameRepository(pool)
	ctx := context.Background()

	tc := game.TimeControl{Contingent: 300 * time.Second}
	id, err := repo.Insert(ctx, "alice", "bob", 6, tc, false)
	require.NoError(t, err)

	require.NoError(t, repo.Complete(ctx, id, game.ResultWinBlack, "resignation"))
	err = repo.Complete(ctx, id, game.ResultWinWhite, "timeout")
	assert.ErrorIs(t, err, postgres.ErrGameNotFound)

	rec, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, string(game.ResultWinBlack), rec.Result)
	assert.Equal(t, "resignation", rec.Reason)
}

func TestGameRepository_GetMissing(t *testing.T) {
	pool := testutil.NewPool(t)
	repo := postgres.NewGameRepository(pool)

	_, err := repo.Get(context.Background(), 999999)
	assert.ErrorIs(t, err, postgres.ErrGameNotFound)
}
