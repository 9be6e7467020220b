package services

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minesweeperAPI/internal/notification"
	"minesweeperAPI/internal/repository"
	"minesweeperAPI/internal/user"
)

func fixedCode(code string) func() (string, error) {
	return func() (string, error) { return code, nil }
}

func TestRegisterAndVerify(t *testing.T) {
	env := newTestEnv(t)
	env.auth.newCode = fixedCode("123456")
	ctx := context.Background()

	u, err := env.auth.Register(ctx, "alice", "hunter2", "alice@example.com")
	require.NoError(t, err)
	assert.False(t, u.IsVerified)
	assert.Equal(t, user.StartingCoins, u.Coins)
	assert.Equal(t, user.RolePlayer, u.Role)

	require.Equal(t, 1, env.mailer.count())
	msg := env.mailer.last()
	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, notification.NotificationEmailVerification, msg.Type)
	assert.Contains(t, msg.Body, "123456")

	_, err = env.auth.Login(ctx, "alice", "hunter2", "")
	assert.ErrorIs(t, err, ErrNotVerified)

	assert.ErrorIs(t, env.auth.VerifyEmail(ctx, "alice@example.com", "000000"), ErrInvalidCode)
	require.NoError(t, env.auth.VerifyEmail(ctx, "alice@example.com", "123456"))
	assert.ErrorIs(t, env.auth.VerifyEmail(ctx, "alice@example.com", "123456"), ErrAlreadyVerified)
	assert.ErrorIs(t, env.auth.VerifyEmail(ctx, "nobody@example.com", "123456"), ErrNotFound)

	stored, err := env.repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsVerified)
	assert.Nil(t, stored.VerificationCode)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct{ username, password, email string }{
		{"", "pw", "a@b.c"},
		{"bob", "", "a@b.c"},
		{"bob", "pw", ""},
		{"bob", "pw", "not-an-email"},
		{"bob", "pw", "a@bc"},
	}
	for _, c := range cases {
		_, err := env.auth.Register(ctx, c.username, c.password, c.email)
		assert.ErrorIs(t, err, ErrInvalidSubmission, "%+v", c)
	}
	assert.Zero(t, env.mailer.count())
}

func TestRegisterDuplicate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.auth.Register(ctx, "bob", "pw", "bob@example.com")
	require.NoError(t, err)

	_, err = env.auth.Register(ctx, "bob", "pw", "other@example.com")
	assert.ErrorIs(t, err, ErrDuplicateIdentity)
	_, err = env.auth.Register(ctx, "other", "pw", "bob@example.com")
	assert.ErrorIs(t, err, ErrDuplicateIdentity)
}

func TestRegisterMailFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.mailer.err = errSMTPDown
	ctx := context.Background()

	_, err := env.auth.Register(ctx, "carol", "pw", "carol@example.com")
	assert.ErrorIs(t, err, ErrNotificationFailure)

	_, err = env.repo.GetUserByUsername(ctx, "carol")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// The identity is free again once mail works.
	env.mailer.err = nil
	_, err = env.auth.Register(ctx, "carol", "pw", "carol@example.com")
	assert.NoError(t, err)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "dave", user.StartingCoins)

	resp, err := env.auth.Login(ctx, "dave", "password", "")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	resolved, err := env.auth.ResolveSession(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, resolved.ID)

	_, err = env.auth.Login(ctx, "dave", "wrong", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.auth.Login(ctx, "nobody", "password", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.auth.Login(ctx, "", "", "")
	assert.ErrorIs(t, err, ErrInvalidSubmission)
}

func TestLoginWithTwoFactor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "erin", user.StartingCoins)

	enrollment, err := env.twoFactor.GenerateSecret(ctx, u.ID)
	require.NoError(t, err)
	require.NoError(t, env.twoFactor.Enable(ctx, u.ID))

	_, err = env.auth.Login(ctx, "erin", "password", "")
	assert.ErrorIs(t, err, ErrTwoFactorRequired)
	_, err = env.auth.Login(ctx, "erin", "password", "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	_, err = env.auth.Login(ctx, "erin", "password", code)
	assert.NoError(t, err)
}

func TestResolveSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "fred", user.StartingCoins)

	_, err := env.auth.ResolveSession(ctx, "garbage")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	signed, _, err := env.tokens.Issue(u)
	require.NoError(t, err)
	require.NoError(t, env.repo.DeleteUser(ctx, u.ID))

	_, err = env.auth.ResolveSession(ctx, signed)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestPasswordReset(t *testing.T) {
	env := newTestEnv(t)
	env.auth.newCode = fixedCode("654321")
	ctx := context.Background()
	env.seedUser(t, "gina", user.StartingCoins)

	assert.ErrorIs(t, env.auth.RequestPasswordReset(ctx, "nobody@example.com"), ErrNotFound)

	require.NoError(t, env.auth.RequestPasswordReset(ctx, "gina@example.com"))
	assert.Equal(t, notification.NotificationPasswordReset, env.mailer.last().Type)
	assert.Contains(t, env.mailer.last().Body, "654321")

	require.NoError(t, env.auth.ResetPassword(ctx, "gina@example.com", "654321", "newpass"))

	_, err := env.auth.Login(ctx, "gina", "password", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = env.auth.Login(ctx, "gina", "newpass", "")
	assert.NoError(t, err)

	// The code is single use.
	assert.ErrorIs(t, env.auth.ResetPassword(ctx, "gina@example.com", "654321", "again"), ErrInvalidCode)
}

func TestPasswordResetWrongCodeConsumesIt(t *testing.T) {
	env := newTestEnv(t)
	env.auth.newCode = fixedCode("111111")
	ctx := context.Background()
	env.seedUser(t, "hank", user.StartingCoins)

	require.NoError(t, env.auth.RequestPasswordReset(ctx, "hank@example.com"))
	assert.ErrorIs(t, env.auth.ResetPassword(ctx, "hank@example.com", "999999", "newpass"), ErrInvalidCode)
	assert.ErrorIs(t, env.auth.ResetPassword(ctx, "hank@example.com", "111111", "newpass"), ErrInvalidCode)

	_, err := env.auth.Login(ctx, "hank", "password", "")
	assert.NoError(t, err)

	assert.ErrorIs(t, env.auth.ResetPassword(ctx, "nobody@example.com", "111111", "x"), ErrNotFound)
	assert.ErrorIs(t, env.auth.ResetPassword(ctx, "hank@example.com", "", "x"), ErrInvalidSubmission)
}

func TestPasswordResetMailFailureKeepsOldCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "ivy", user.StartingCoins)

	env.mailer.err = errSMTPDown
	assert.ErrorIs(t, env.auth.RequestPasswordReset(ctx, "ivy@example.com"), ErrNotificationFailure)

	stored, err := env.repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.VerificationCode)
}

func TestEnsureAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.auth.EnsureAdmin(ctx, "root", "rootpw", "root@example.com"))
	require.NoError(t, env.auth.EnsureAdmin(ctx, "root", "rootpw", "root@example.com"))

	admin, err := env.repo.GetUserByUsername(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, admin.Role)
	assert.True(t, admin.IsVerified)

	users, err := env.auth.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	_, err = env.auth.Login(ctx, "root", "rootpw", "")
	assert.NoError(t, err)
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		assert.GreaterOrEqual(t, code, "100000")
		assert.LessOrEqual(t, code, "999999")
	}
}

// storeUsableDuringSend fails the test unless the store answers a read while
// the mailer is busy, i.e. no transaction is held across delivery.
func storeUsableDuringSend(t *testing.T, env *testEnv) {
	env.mailer.onSend = func(msg notification.Message) {
		done := make(chan error, 1)
		go func() {
			_, err := env.repo.GetUserByEmail(context.Background(), msg.To)
			done <- err
		}()
		select {
		case err := <-done:
			assert.NoError(t, err, "the account is committed before the mail goes out")
		case <-time.After(time.Second):
			t.Error("store stayed locked while the mail was being sent")
		}
	}
}

func TestRegisterDoesNotHoldStoreWhileSending(t *testing.T) {
	env := newTestEnv(t)
	storeUsableDuringSend(t, env)

	_, err := env.auth.Register(context.Background(), "judy", "pw", "judy@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, env.mailer.count())
}

func TestRequestPasswordResetDoesNotHoldStoreWhileSending(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "kate", user.StartingCoins)
	storeUsableDuringSend(t, env)

	require.NoError(t, env.auth.RequestPasswordReset(context.Background(), "kate@example.com"))
}

func TestRequestPasswordResetMailFailureRestoresPendingCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "liam", user.StartingCoins)
	pending := "111111"
	require.NoError(t, env.repo.SetVerificationCode(ctx, u.ID, &pending))

	env.mailer.err = errSMTPDown
	assert.ErrorIs(t, env.auth.RequestPasswordReset(ctx, "liam@example.com"), ErrNotificationFailure)

	stored, err := env.repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.VerificationCode)
	assert.Equal(t, pending, *stored.VerificationCode)
}
