// Package identity verifies who is on the other end of a connection:
// password credentials against stored accounts, signed session tokens,
// and ephemeral guest identities.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/cairnhall/takserver/internal/config"
	"github.com/cairnhall/takserver/internal/game"
	"github.com/cairnhall/takserver/internal/storage/postgres"
)

var (
	// ErrInvalidCredentials is returned for a bad username/password pair.
	// Callers must not reveal which half was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrBanned is returned when the account exists but is banned.
	ErrBanned = errors.New("account is banned")
	// ErrGuestsDisabled is returned for "Login Guest" when guest sessions
	// are switched off.
	ErrGuestsDisabled = errors.New("guest logins are disabled")
	// ErrServiceUnavailable is returned when the account store cannot be
	// reached. The client may retry without being counted as a failure.
	ErrServiceUnavailable = errors.New("identity service unavailable")
)

// AccountStore is the slice of account persistence identity relies on.
type AccountStore interface {
	Authenticate(ctx context.Context, username, password string) (postgres.Account, error)
	GetByUsername(ctx context.Context, username string) (postgres.Account, error)
}

// Verifier resolves login commands to players.
type Verifier struct {
	store    AccountStore
	cfg      config.IdentityConfig
	logger   *zap.Logger
	guestSeq atomic.Uint32
}

// NewVerifier creates a Verifier backed by the given account store.
//
// Precondition: store and logger must be non-nil.
func NewVerifier(store AccountStore, cfg config.IdentityConfig, logger *zap.Logger) *Verifier {
	return &Verifier{store: store, cfg: cfg, logger: logger}
}

// Login verifies a username/credential pair and returns the player.
// The credential may be either the account password or a signed session
// token issued for the same username.
//
// Postcondition: Returns ErrInvalidCredentials, ErrBanned, or
// ErrServiceUnavailable on failure; never a raw storage error.
func (v *Verifier) Login(ctx context.Context, username, credential string) (game.Player, error) {
	acct, err := v.verify(ctx, username, credential)
	if err != nil {
		return game.Player{}, err
	}
	if acct.Banned {
		v.logger.Info("banned account refused",
			zap.String("username", username),
		)
		return game.Player{}, ErrBanned
	}

	return game.Player{
		ID:     game.PlayerID(acct.Username),
		Name:   acct.Username,
		Rating: acct.Rating,
		Games:  acct.GamesPlayed,
		Gagged: acct.Gagged,
		Admin:  acct.Admin,
	}, nil
}

func (v *Verifier) verify(ctx context.Context, username, credential string) (postgres.Account, error) {
	if v.cfg.TokenSigningKey != "" && looksLikeToken(credential) {
		subject, err := VerifyToken(credential, []byte(v.cfg.TokenSigningKey))
		if err != nil || subject != username {
			return postgres.Account{}, ErrInvalidCredentials
		}
		acct, err := v.store.GetByUsername(ctx, username)
		return acct, v.mapStoreError(err)
	}

	acct, err := v.store.Authenticate(ctx, username, credential)
	return acct, v.mapStoreError(err)
}

func (v *Verifier) mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, postgres.ErrAccountNotFound),
		errors.Is(err, postgres.ErrInvalidCredentials):
		return ErrInvalidCredentials
	default:
		v.logger.Error("account store unavailable", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
}

// Guest mints an ephemeral guest identity. Guests have no account row,
// carry the pending rating, and may not play rated games.
//
// Postcondition: Returns a player whose name is unique for this process,
// or ErrGuestsDisabled.
func (v *Verifier) Guest() (game.Player, error) {
	if !v.cfg.AllowGuests {
		return game.Player{}, ErrGuestsDisabled
	}
	n := v.guestSeq.Add(1)
	name := fmt.Sprintf("Guest%d", n)
	return game.Player{
		ID:    game.PlayerID(name),
		Name:  name,
		Guest: true,
	}, nil
}

// looksLikeToken reports whether the credential has JWT shape. Account
// passwords containing two dots are indistinguishable from tokens, so
// token login takes precedence when a signing key is configured.
func looksLikeToken(credential string) bool {
	return strings.Count(credential, ".") == 2
}
