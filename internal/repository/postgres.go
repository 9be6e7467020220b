package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"minesweeperAPI/internal/leaderboard"
	"minesweeperAPI/internal/user"
)

const uniqueViolation = "23505"

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	*pgQueries
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pgQueries: &pgQueries{db: pool}, pool: pool}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgQueries{db: tx, inTx: true}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type pgQueries struct {
	db   dbtx
	inTx bool
}

const userColumns = `id, username, email, password_hash, role, coins, is_verified,
	verification_code, secret_2fa, enabled_2fa, owned_items, created_at`

func scanUser(row pgx.Row) (*user.User, error) {
	u := &user.User{}
	var role string
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&role,
		&u.Coins,
		&u.IsVerified,
		&u.VerificationCode,
		&u.Secret2FA,
		&u.Enabled2FA,
		&u.OwnedItems,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if u.Role, err = user.ParseRole(role); err != nil {
		return nil, err
	}
	return u, nil
}

func (q *pgQueries) CreateUser(ctx context.Context, u *user.User) error {
	if u.OwnedItems == nil {
		u.OwnedItems = []string{}
	}
	query := `
	INSERT INTO users (` + userColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := q.db.Exec(ctx, query,
		u.ID,
		u.Username,
		u.Email,
		u.PasswordHash,
		u.Role.String(),
		u.Coins,
		u.IsVerified,
		u.VerificationCode,
		u.Secret2FA,
		u.Enabled2FA,
		u.OwnedItems,
		u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (q *pgQueries) GetUserByID(ctx context.Context, id string) (*user.User, error) {
	return scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (q *pgQueries) GetUserByUsername(ctx context.Context, username string) (*user.User, error) {
	return scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
}

func (q *pgQueries) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return scanUser(q.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (q *pgQueries) ListUsers(ctx context.Context) ([]*user.User, error) {
	rows, err := q.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*user.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// execOne runs an UPDATE/DELETE that must touch exactly one user row.
func (q *pgQueries) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := q.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *pgQueries) DeleteUser(ctx context.Context, id string) error {
	return q.execOne(ctx, `DELETE FROM users WHERE id = $1`, id)
}

func (q *pgQueries) SetVerified(ctx context.Context, id string) error {
	return q.execOne(ctx, `UPDATE users SET is_verified = TRUE, verification_code = NULL WHERE id = $1`, id)
}

func (q *pgQueries) SetVerificationCode(ctx context.Context, id string, code *string) error {
	return q.execOne(ctx, `UPDATE users SET verification_code = $2 WHERE id = $1`, id, code)
}

func (q *pgQueries) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	return q.execOne(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
}

func (q *pgQueries) SetTwoFactorSecret(ctx context.Context, id string, secret *string) error {
	return q.execOne(ctx, `UPDATE users SET secret_2fa = $2 WHERE id = $1`, id, secret)
}

func (q *pgQueries) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error {
	return q.execOne(ctx, `UPDATE users SET enabled_2fa = $2 WHERE id = $1`, id, enabled)
}

func (q *pgQueries) userExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (q *pgQueries) AddCoins(ctx context.Context, id string, amount int) (int, error) {
	var balance int
	err := q.db.QueryRow(ctx, `UPDATE users SET coins = coins + $2 WHERE id = $1 RETURNING coins`, id, amount).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to add coins: %w", err)
	}
	return balance, nil
}

func (q *pgQueries) SpendCoins(ctx context.Context, id string, amount int) (int, error) {
	var balance int
	err := q.db.QueryRow(ctx, `
		UPDATE users SET coins = coins - $2
		WHERE id = $1 AND coins >= $2
		RETURNING coins
	`, id, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("failed to spend coins: %w", err)
	}

	exists, err := q.userExists(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return 0, ErrNotFound
	}
	return 0, ErrInsufficientFunds
}

func (q *pgQueries) AddOwnedItem(ctx context.Context, id string, itemID string) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE users SET owned_items = array_append(owned_items, $2)
		WHERE id = $1 AND NOT ($2 = ANY(owned_items))
	`, id, itemID)
	if err != nil {
		return fmt.Errorf("failed to add owned item: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	exists, err := q.userExists(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrDuplicate
}

func (q *pgQueries) LockDifficulty(ctx context.Context, d leaderboard.Difficulty) error {
	if !q.inTx {
		return nil
	}
	_, err := q.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "leaderboard:"+d.String())
	if err != nil {
		return fmt.Errorf("failed to lock %s leaderboard: %w", d, err)
	}
	return nil
}

const recordColumns = `id, user_id, username, difficulty, milliseconds, created_at`

func scanRecord(row pgx.Row) (*leaderboard.Record, error) {
	r := &leaderboard.Record{}
	var difficulty string
	err := row.Scan(&r.ID, &r.UserID, &r.Username, &difficulty, &r.Milliseconds, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if r.Difficulty, err = leaderboard.ParseDifficulty(difficulty); err != nil {
		return nil, err
	}
	return r, nil
}

func collectRecords(rows pgx.Rows) ([]*leaderboard.Record, error) {
	defer rows.Close()

	records := []*leaderboard.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func (q *pgQueries) GetRecord(ctx context.Context, userID string, d leaderboard.Difficulty) (*leaderboard.Record, error) {
	return scanRecord(q.db.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM leaderboard_records
		WHERE user_id = $1 AND difficulty = $2
	`, userID, d.String()))
}

func (q *pgQueries) InsertRecord(ctx context.Context, r *leaderboard.Record) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO leaderboard_records (user_id, username, difficulty, milliseconds, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, r.UserID, r.Username, r.Difficulty.String(), r.Milliseconds, r.CreatedAt).Scan(&r.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func (q *pgQueries) UpdateRecord(ctx context.Context, id int64, milliseconds int, at time.Time) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE leaderboard_records SET milliseconds = $2, created_at = $3 WHERE id = $1
	`, id, milliseconds, at)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *pgQueries) TopRecords(ctx context.Context, d leaderboard.Difficulty, limit int, excludeUserID string) ([]*leaderboard.Record, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM leaderboard_records
		WHERE difficulty = $1 AND ($3 = '' OR user_id <> $3)
		ORDER BY milliseconds ASC, created_at ASC, id ASC
		LIMIT $2
	`, d.String(), limit, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch top records: %w", err)
	}
	return collectRecords(rows)
}

func (q *pgQueries) CountRecords(ctx context.Context, d leaderboard.Difficulty) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM leaderboard_records WHERE difficulty = $1`, d.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

func (q *pgQueries) DeleteWorstRecord(ctx context.Context, d leaderboard.Difficulty) (*leaderboard.Record, error) {
	return scanRecord(q.db.QueryRow(ctx, `
		DELETE FROM leaderboard_records
		WHERE id = (
			SELECT id FROM leaderboard_records
			WHERE difficulty = $1
			ORDER BY milliseconds DESC, created_at DESC, id DESC
			LIMIT 1
		)
		RETURNING `+recordColumns, d.String()))
}

func (q *pgQueries) ListUserRecords(ctx context.Context, userID string) ([]*leaderboard.Record, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+recordColumns+`
		FROM leaderboard_records
		WHERE user_id = $1
		ORDER BY CASE difficulty WHEN 'easy' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch personal records: %w", err)
	}
	return collectRecords(rows)
}
