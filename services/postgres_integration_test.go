package services

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"minesweeperAPI/internal/leaderboard"
	"minesweeperAPI/internal/repository"
	"minesweeperAPI/internal/store"
	"minesweeperAPI/internal/user"
)

// setupPostgresLeaderboard wires the leaderboard over TEST_DATABASE_URL. The
// hard board is emptied first and the test users are removed afterwards.
func setupPostgresLeaderboard(t *testing.T) (*LeaderboardService, *repository.PostgresStore) {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	require.NoError(t, repository.EnsureSchema(ctx, pool))

	_, err = pool.Exec(ctx, "DELETE FROM leaderboard_records WHERE difficulty = $1", leaderboard.Hard.String())
	require.NoError(t, err)

	t.Cleanup(func() {
		_, err := pool.Exec(ctx, "DELETE FROM users WHERE email LIKE 'pgrace-%@example.com'")
		if err != nil {
			t.Logf("Warning: failed to cleanup test data: %v", err)
		}
		pool.Close()
	})

	repo := repository.NewPostgresStore(pool)
	logger := zap.NewNop()
	economy := NewEconomyService(repo, store.DefaultCatalog(), logger)
	return NewLeaderboardService(repo, economy, nil, logger), repo
}

func seedPostgresUser(t *testing.T, repo *repository.PostgresStore, name string) *user.User {
	t.Helper()
	suffix := uuid.NewString()[:8]
	u := &user.User{
		ID:           uuid.NewString(),
		Username:     "pgrace-" + name + "-" + suffix,
		Email:        "pgrace-" + name + "-" + suffix + "@example.com",
		PasswordHash: "x",
		Role:         user.RolePlayer,
		Coins:        user.StartingCoins,
		IsVerified:   true,
		OwnedItems:   []string{},
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.CreateUser(context.Background(), u))
	return u
}

func TestPostgresSubmitRecordConcurrentUsers(t *testing.T) {
	svc, repo := setupPostgresLeaderboard(t)
	ctx := context.Background()

	const n = 30
	users := make([]*user.User, n)
	for i := range users {
		users[i] = seedPostgresUser(t, repo, fmt.Sprintf("racer%02d", i))
	}

	results := make([]*leaderboard.SubmitResult, n)
	var wg sync.WaitGroup
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.SubmitRecord(ctx, users[i].ID, leaderboard.Hard, 10000-i*100)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		require.NotNil(t, res)
		want := user.StartingCoins + leaderboard.FlatReward
		if res.Outcome == leaderboard.AdmittedTopTen {
			want += leaderboard.TopReward
		}
		got, err := repo.GetUserByID(ctx, users[i].ID)
		require.NoError(t, err)
		assert.Equal(t, want, got.Coins, users[i].Username)
	}

	top, err := svc.GetTop(ctx, leaderboard.Hard, 10)
	require.NoError(t, err)
	require.Len(t, top, 10)
	for i, r := range top {
		assert.Equal(t, 10000-(n-1-i)*100, r.Milliseconds)
	}
}

func TestPostgresSubmitRecordConcurrentSameUser(t *testing.T) {
	svc, repo := setupPostgresLeaderboard(t)
	ctx := context.Background()
	u := seedPostgresUser(t, repo, "solo")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(ms int) {
			defer wg.Done()
			_, err := svc.SubmitRecord(ctx, u.ID, leaderboard.Hard, ms)
			assert.NoError(t, err)
		}(3000 + i*10)
	}
	wg.Wait()

	records, err := repo.ListUserRecords(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 3000, records[0].Milliseconds)
}
