package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cairnhall/takserver/internal/config"
	"github.com/cairnhall/takserver/internal/storage/postgres"
)

// fakeStore serves canned accounts without a database.
type fakeStore struct {
	accounts map[string]postgres.Account
	password string
	down     bool
}

func (f *fakeStore) Authenticate(_ context.Context, username, password string) (postgres.Account, error) {
	if f.down {
		return postgres.Account{}, errors.New("connection refused")
	}
	acct, ok := f.accounts[username]
	if !ok {
		return postgres.Account{}, postgres.ErrAccountNotFound
	}
	if password != f.password {
		return postgres.Account{}, postgres.ErrInvalidCredentials
	}
	return acct, nil
}

func (f *fakeStore) GetByUsername(_ context.Context, username string) (postgres.Account, error) {
	if f.down {
		return postgres.Account{}, errors.New("connection refused")
	}
	acct, ok := f.accounts[username]
	if !ok {
		return postgres.Account{}, postgres.ErrAccountNotFound
	}
	return acct, nil
}

const signingKey = "test-signing-key"

func newTestVerifier(t *testing.T, store *fakeStore) *Verifier {
	t.Helper()
	cfg := config.IdentityConfig{
		TokenSigningKey: signingKey,
		AllowGuests:     true,
	}
	return NewVerifier(store, cfg, zaptest.NewLogger(t))
}

func storeWith(accounts ...postgres.Account) *fakeStore {
	s := &fakeStore{accounts: map[string]postgres.Account{}, password: "hunter2"}
	for _, a := range accounts {
		s.accounts[a.Username] = a
	}
	return s
}

func TestLoginWithPassword(t *testing.T) {
	store := storeWith(postgres.Account{
		Username: "alice", Rating: 1500, GamesPlayed: 12, Admin: true,
	})
	v := newTestVerifier(t, store)

	p, err := v.Login(context.Background(), "alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Name)
	assert.Equal(t, 1500, p.Rating)
	assert.Equal(t, 12, p.Games)
	assert.True(t, p.Admin)
	assert.False(t, p.Guest)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	store := storeWith(postgres.Account{Username: "alice"})
	v := newTestVerifier(t, store)

	_, err := v.Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = v.Login(context.Background(), "nobody", "hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsBanned(t *testing.T) {
	store := storeWith(postgres.Account{Username: "mallory", Banned: true})
	v := newTestVerifier(t, store)

	_, err := v.Login(context.Background(), "mallory", "hunter2")
	assert.ErrorIs(t, err, ErrBanned)
}

func TestLoginStoreDownIsRetryable(t *testing.T) {
	store := storeWith(postgres.Account{Username: "alice"})
	store.down = true
	v := newTestVerifier(t, store)

	_, err := v.Login(context.Background(), "alice", "hunter2")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestLoginWithToken(t *testing.T) {
	store := storeWith(postgres.Account{Username: "alice", Rating: 1400})
	v := newTestVerifier(t, store)

	token, err := IssueToken("alice", []byte(signingKey), time.Minute)
	require.NoError(t, err)

	p, err := v.Login(context.Background(), "alice", token)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Name)
}

func TestLoginTokenSubjectMustMatchUsername(t *testing.T) {
	store := storeWith(postgres.Account{Username: "alice"}, postgres.Account{Username: "bob"})
	v := newTestVerifier(t, store)

	token, err := IssueToken("bob", []byte(signingKey), time.Minute)
	require.NoError(t, err)

	_, err = v.Login(context.Background(), "alice", token)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginRejectsForgedToken(t *testing.T) {
	store := storeWith(postgres.Account{Username: "alice"})
	v := newTestVerifier(t, store)

	forged, err := IssueToken("alice", []byte("other-key"), time.Minute)
	require.NoError(t, err)

	_, err = v.Login(context.Background(), "alice", forged)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	token, err := IssueToken("alice", []byte(signingKey), -time.Minute)
	require.NoError(t, err)

	_, err = VerifyToken(token, []byte(signingKey))
	assert.Error(t, err)
}

func TestGuestIdentitiesAreUnique(t *testing.T) {
	v := newTestVerifier(t, storeWith())

	a, err := v.Guest()
	require.NoError(t, err)
	b, err := v.Guest()
	require.NoError(t, err)

	assert.True(t, a.Guest)
	assert.True(t, b.Guest)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestGuestsCanBeDisabled(t *testing.T) {
	cfg := config.IdentityConfig{AllowGuests: false}
	v := NewVerifier(storeWith(), cfg, zaptest.NewLogger(t))

	_, err := v.Guest()
	assert.ErrorIs(t, err, ErrGuestsDisabled)
}
