// Package repository persists accounts, coin balances and leaderboard records.
//
// Two implementations are provided: PostgresStore for production and MemoryStore
// for tests and single-instance development runs. Both honour the same contract:
// everything executed through InTx commits or rolls back as a unit.
package repository

import (
	"context"
	"errors"
	"time"

	"minesweeperAPI/internal/leaderboard"
	"minesweeperAPI/internal/user"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("duplicate record")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Queries is the set of single-statement operations available both on the store
// and inside a transaction.
type Queries interface {
	// CreateUser inserts u. ErrDuplicate is returned if the username or email is taken.
	CreateUser(ctx context.Context, u *user.User) error
	GetUserByID(ctx context.Context, id string) (*user.User, error)
	GetUserByUsername(ctx context.Context, username string) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	ListUsers(ctx context.Context) ([]*user.User, error)
	DeleteUser(ctx context.Context, id string) error

	// SetVerified marks the account verified and clears its one-time code.
	SetVerified(ctx context.Context, id string) error
	SetVerificationCode(ctx context.Context, id string, code *string) error
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	SetTwoFactorSecret(ctx context.Context, id string, secret *string) error
	SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error

	// AddCoins atomically increments the balance and returns the new value.
	AddCoins(ctx context.Context, id string, amount int) (int, error)
	// SpendCoins atomically decrements the balance if it covers amount and
	// returns the new value. ErrInsufficientFunds leaves the balance untouched.
	SpendCoins(ctx context.Context, id string, amount int) (int, error)
	// AddOwnedItem appends itemID to the owned items. ErrDuplicate if already owned.
	AddOwnedItem(ctx context.Context, id string, itemID string) error

	// LockDifficulty serializes leaderboard writers of one difficulty until the
	// surrounding transaction ends. Outside a transaction it is a no-op.
	LockDifficulty(ctx context.Context, d leaderboard.Difficulty) error
	GetRecord(ctx context.Context, userID string, d leaderboard.Difficulty) (*leaderboard.Record, error)
	// InsertRecord stores r and assigns r.ID. ErrDuplicate if the user already
	// holds a record for the difficulty.
	InsertRecord(ctx context.Context, r *leaderboard.Record) error
	UpdateRecord(ctx context.Context, id int64, milliseconds int, at time.Time) error
	// TopRecords returns up to limit records ordered by milliseconds, created_at
	// and id. Records of excludeUserID are skipped when it is not empty.
	TopRecords(ctx context.Context, d leaderboard.Difficulty, limit int, excludeUserID string) ([]*leaderboard.Record, error)
	CountRecords(ctx context.Context, d leaderboard.Difficulty) (int, error)
	// DeleteWorstRecord removes the slowest record of the difficulty, the most
	// recently created one on ties.
	DeleteWorstRecord(ctx context.Context, d leaderboard.Difficulty) (*leaderboard.Record, error)
	ListUserRecords(ctx context.Context, userID string) ([]*leaderboard.Record, error)
}

type Store interface {
	Queries
	// InTx runs fn inside a transaction. Returning an error from fn rolls back
	// every write made through q.
	InTx(ctx context.Context, fn func(q Queries) error) error
	Ping(ctx context.Context) error
}
