package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// Account represents a registered player account.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	Rating       int
	GamesPlayed  int
	Banned       bool
	Gagged       bool
	Admin        bool
	CreatedAt    time.Time
}

// ErrAccountNotFound is returned when an account lookup yields no results.
var ErrAccountNotFound = errors.New("account not found")

// ErrAccountExists is returned when attempting to create a duplicate username.
var ErrAccountExists = errors.New("account already exists")

// ErrInvalidCredentials is returned when authentication fails.
var ErrInvalidCredentials = errors.New("invalid credentials")

const accountColumns = `id, username, password_hash, rating, games_played, banned, gagged, admin, created_at`

// AccountRepository provides account persistence operations.
type AccountRepository struct {
	db *pgxpool.Pool
}

// NewAccountRepository creates an AccountRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewAccountRepository(db *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account with a bcrypt-hashed password.
//
// Precondition: username must be non-empty; password must be non-empty.
// Postcondition: Returns the created Account with ID and CreatedAt set,
// or ErrAccountExists if the username is taken.
func (r *AccountRepository) Create(ctx context.Context, username, password string) (Account, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return Account{}, fmt.Errorf("hashing password: %w", err)
	}

	var acct Account
	err = r.db.QueryRow(ctx,
		`INSERT INTO accounts (username, password_hash)
		 VALUES ($1, $2)
		 RETURNING `+accountColumns,
		username, hash,
	).Scan(&acct.ID, &acct.Username, &acct.PasswordHash, &acct.Rating,
		&acct.GamesPlayed, &acct.Banned, &acct.Gagged, &acct.Admin, &acct.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return Account{}, ErrAccountExists
		}
		return Account{}, fmt.Errorf("inserting account: %w", err)
	}

	return acct, nil
}

// Authenticate verifies credentials and returns the matching account.
//
// Precondition: username and password must be non-empty.
// Postcondition: Returns the Account if credentials are valid,
// ErrAccountNotFound if the username doesn't exist,
// or ErrInvalidCredentials if the password is wrong.
func (r *AccountRepository) Authenticate(ctx context.Context, username, password string) (Account, error) {
	acct, err := r.GetByUsername(ctx, username)
	if err != nil {
		return Account{}, err
	}
	if !CheckPassword(password, acct.PasswordHash) {
		return Account{}, ErrInvalidCredentials
	}
	return acct, nil
}

// GetByUsername retrieves an account by username.
//
// Precondition: username must be non-empty.
// Postcondition: Returns the Account or ErrAccountNotFound.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (Account, error) {
	var acct Account
	err := r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1`,
		username,
	).Scan(&acct.ID, &acct.Username, &acct.PasswordHash, &acct.Rating,
		&acct.GamesPlayed, &acct.Banned, &acct.Gagged, &acct.Admin, &acct.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("querying account: %w", err)
	}
	return acct, nil
}

// SetBanned updates the ban flag for the given account. Banned accounts
// are refused at login; existing sessions are kicked by the caller.
//
// Postcondition: The flag is updated, or ErrAccountNotFound is returned.
func (r *AccountRepository) SetBanned(ctx context.Context, username string, banned bool) error {
	return r.setFlag(ctx, "banned", username, banned)
}

// SetGagged updates the gag flag for the given account. Gagged accounts
// may play but their chat lines are dropped.
//
// Postcondition: The flag is updated, or ErrAccountNotFound is returned.
func (r *AccountRepository) SetGagged(ctx context.Context, username string, gagged bool) error {
	return r.setFlag(ctx, "gagged", username, gagged)
}

// SetAdmin updates the admin flag for the given account.
//
// Postcondition: The flag is updated, or ErrAccountNotFound is returned.
func (r *AccountRepository) SetAdmin(ctx context.Context, username string, admin bool) error {
	return r.setFlag(ctx, "admin", username, admin)
}

func (r *AccountRepository) setFlag(ctx context.Context, column, username string, value bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET `+column+` = $1 WHERE username = $2`,
		value, username,
	)
	if err != nil {
		return fmt.Errorf("updating %s flag: %w", column, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// IncrementGamesPlayed bumps the finished-game counter for both players
// of a rated game. Rating values are written separately by the rating
// service once it has consumed the completion event.
func (r *AccountRepository) IncrementGamesPlayed(ctx context.Context, usernames ...string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET games_played = games_played + 1 WHERE username = ANY($1)`,
		usernames,
	)
	if err != nil {
		return fmt.Errorf("incrementing games played: %w", err)
	}
	if int(tag.RowsAffected()) != len(usernames) {
		return ErrAccountNotFound
	}
	return nil
}

// HashPassword creates a bcrypt hash of the given password.
//
// Precondition: password must be non-empty.
// Postcondition: Returns a bcrypt hash string.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
//
// Postcondition: Returns true if password matches the hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	// pgx wraps PostgreSQL errors; check for SQLSTATE 23505 (unique_violation)
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
