package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                TEXT PRIMARY KEY,
		username          VARCHAR(50)  NOT NULL UNIQUE,
		email             VARCHAR(120) NOT NULL UNIQUE,
		password_hash     VARCHAR(60)  NOT NULL,
		role              VARCHAR(20)  NOT NULL DEFAULT 'player' CHECK (role IN ('player', 'admin')),
		coins             INTEGER      NOT NULL DEFAULT 10 CHECK (coins >= 0),
		is_verified       BOOLEAN      NOT NULL DEFAULT FALSE,
		verification_code VARCHAR(6),
		secret_2fa        VARCHAR(64),
		enabled_2fa       BOOLEAN      NOT NULL DEFAULT FALSE,
		owned_items       TEXT[]       NOT NULL DEFAULT '{}',
		created_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS leaderboard_records (
		id           BIGSERIAL PRIMARY KEY,
		user_id      TEXT        NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		username     VARCHAR(50) NOT NULL,
		difficulty   VARCHAR(10) NOT NULL CHECK (difficulty IN ('easy', 'medium', 'hard')),
		milliseconds INTEGER     NOT NULL CHECK (milliseconds > 0),
		created_at   TIMESTAMPTZ NOT NULL,
		UNIQUE (user_id, difficulty)
	)`,
	`CREATE INDEX IF NOT EXISTS leaderboard_records_rank_idx
		ON leaderboard_records (difficulty, milliseconds, created_at, id)`,
}

// EnsureSchema creates the tables if they do not exist. It is safe to run on
// every start and must complete before the server accepts requests.
func EnsureSchema(ctx context.Context, db execer) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
