package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"minesweeperAPI/internal/notification"
	"minesweeperAPI/internal/repository"
	"minesweeperAPI/internal/store"
	"minesweeperAPI/internal/token"
	"minesweeperAPI/internal/user"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []notification.Message
	err  error
	// onSend runs before delivery, outside the mailer's lock.
	onSend func(msg notification.Message)
}

func (m *fakeMailer) Send(ctx context.Context, msg notification.Message) error {
	if m.onSend != nil {
		m.onSend(msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) last() notification.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return notification.Message{}
	}
	return m.sent[len(m.sent)-1]
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

var errSMTPDown = errors.New("smtp down")

type testEnv struct {
	repo        *repository.MemoryStore
	mailer      *fakeMailer
	tokens      *token.Manager
	auth        *AuthService
	twoFactor   *TwoFactorService
	economy     *EconomyService
	leaderboard *LeaderboardService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := repository.NewMemoryStore()
	mailer := &fakeMailer{}
	logger := zap.NewNop()

	tokens, err := token.NewManager("test-secret")
	require.NoError(t, err)

	twoFactor := NewTwoFactorService(repo, "Minesweeper", logger)
	auth := NewAuthService(repo, mailer, tokens, twoFactor, logger, time.Second)
	auth.bcryptCost = bcrypt.MinCost
	economy := NewEconomyService(repo, store.DefaultCatalog(), logger)

	return &testEnv{
		repo:        repo,
		mailer:      mailer,
		tokens:      tokens,
		auth:        auth,
		twoFactor:   twoFactor,
		economy:     economy,
		leaderboard: NewLeaderboardService(repo, economy, nil, logger),
	}
}

// seedUser stores a verified player directly, skipping registration.
func (e *testEnv) seedUser(t *testing.T, username string, coins int) *user.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)

	u := &user.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		Role:         user.RolePlayer,
		Coins:        coins,
		IsVerified:   true,
		OwnedItems:   []string{},
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, e.repo.CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) balance(t *testing.T, userID string) int {
	t.Helper()
	b, err := e.economy.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}
