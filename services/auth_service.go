package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"minesweeperAPI/internal/notification"
	"minesweeperAPI/internal/repository"
	"minesweeperAPI/internal/token"
	"minesweeperAPI/internal/user"
)

const (
	maxUsernameLen = 50
	maxEmailLen    = 120
	maxPasswordLen = 72 // bcrypt ignores anything longer
)

// dummyHash is compared against when the username is unknown so a failed
// login costs the same whether or not the account exists.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("minesweeper-dummy-password"), bcrypt.DefaultCost)

type AuthService struct {
	repo          repository.Store
	mailer        notification.Mailer
	tokens        *token.Manager
	twoFactor     *TwoFactorService
	logger        *zap.Logger
	notifyTimeout time.Duration
	bcryptCost    int
	newCode       func() (string, error)
	now           func() time.Time
}

func NewAuthService(
	repo repository.Store,
	mailer notification.Mailer,
	tokens *token.Manager,
	twoFactor *TwoFactorService,
	logger *zap.Logger,
	notifyTimeout time.Duration,
) *AuthService {
	if notifyTimeout <= 0 {
		notifyTimeout = 10 * time.Second
	}
	return &AuthService{
		repo:          repo,
		mailer:        mailer,
		tokens:        tokens,
		twoFactor:     twoFactor,
		logger:        logger,
		notifyTimeout: notifyTimeout,
		bcryptCost:    bcrypt.DefaultCost,
		newCode:       generateCode,
		now:           time.Now,
	}
}

// generateCode returns a uniformly random six digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

func validEmail(email string) bool {
	return strings.Contains(email, "@") && strings.Contains(email, ".")
}

func (s *AuthService) hashPassword(password string) (string, error) {
	if password == "" || len(password) > maxPasswordLen {
		return "", fmt.Errorf("%w: password must be 1 to %d bytes", ErrInvalidSubmission, maxPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// deliver sends msg with the configured timeout. Any failure is reported as
// ErrNotificationFailure.
func (s *AuthService) deliver(ctx context.Context, msg notification.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationFailure, err)
	}
	return nil
}

// Register creates an unverified account and mails its verification code. If
// the mail cannot be sent the account is removed again.
func (s *AuthService) Register(ctx context.Context, username, password, email string) (*user.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" || password == "" || email == "" {
		return nil, fmt.Errorf("%w: username, password, and email are required", ErrInvalidSubmission)
	}
	if len(username) > maxUsernameLen || len(email) > maxEmailLen {
		return nil, fmt.Errorf("%w: username or email too long", ErrInvalidSubmission)
	}
	if !validEmail(email) {
		return nil, fmt.Errorf("%w: invalid email format", ErrInvalidSubmission)
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}
	code, err := s.newCode()
	if err != nil {
		return nil, err
	}

	u := &user.User{
		ID:               uuid.New().String(),
		Username:         username,
		Email:            email,
		PasswordHash:     hash,
		Role:             user.RolePlayer,
		Coins:            user.StartingCoins,
		VerificationCode: &code,
		OwnedItems:       []string{},
		CreatedAt:        s.now().UTC(),
	}

	err = s.register(ctx, u, code)
	authEvents.WithLabelValues("register", result(err)).Inc()
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.String("user_id", u.ID), zap.String("username", u.Username))
	return u, nil
}

// register stores u and then mails its code. Delivery runs outside any
// transaction; a failed mail removes the account again.
func (s *AuthService) register(ctx context.Context, u *user.User, code string) error {
	if err := s.repo.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrDuplicateIdentity
		}
		return err
	}

	sendErr := s.deliver(ctx, notification.VerificationEmail(u.Email, u.Username, code))
	if sendErr == nil {
		return nil
	}
	if err := s.compensate(ctx, func(ctx context.Context) error {
		return s.repo.DeleteUser(ctx, u.ID)
	}); err != nil {
		s.logger.Error("failed to remove account after mail failure", zap.String("user_id", u.ID), zap.Error(err))
	}
	return sendErr
}

// compensate undoes a write after a failed delivery. It gets its own deadline
// because ctx may be the one that expired.
func (s *AuthService) compensate(ctx context.Context, undo func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return undo(ctx)
}

func (s *AuthService) VerifyEmail(ctx context.Context, email, code string) error {
	u, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return translateRepoErr(err)
	}
	if u.IsVerified {
		return ErrAlreadyVerified
	}
	if !codeMatches(u.VerificationCode, code) {
		authEvents.WithLabelValues("verify_email", "failure").Inc()
		return ErrInvalidCode
	}
	if err := s.repo.SetVerified(ctx, u.ID); err != nil {
		return translateRepoErr(err)
	}
	authEvents.WithLabelValues("verify_email", "success").Inc()
	s.logger.Info("email verified", zap.String("user_id", u.ID))
	return nil
}

func codeMatches(stored *string, given string) bool {
	if stored == nil || given == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(strings.TrimSpace(given))) == 1
}

// Login checks credentials and, when enabled, the second factor, and issues a
// session token.
func (s *AuthService) Login(ctx context.Context, username, password, otpCode string) (*user.LoginResponse, error) {
	resp, err := s.login(ctx, strings.TrimSpace(username), password, otpCode)
	authEvents.WithLabelValues("login", result(err)).Inc()
	return resp, err
}

func (s *AuthService) login(ctx context.Context, username, password, otpCode string) (*user.LoginResponse, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalidSubmission)
	}

	u, err := s.repo.GetUserByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsVerified {
		return nil, ErrNotVerified
	}

	if u.Enabled2FA {
		if strings.TrimSpace(otpCode) == "" {
			return nil, ErrTwoFactorRequired
		}
		if u.Secret2FA == nil || !s.twoFactor.Validate(*u.Secret2FA, strings.TrimSpace(otpCode)) {
			return nil, ErrInvalidCode
		}
	}

	signed, expiresAt, err := s.tokens.Issue(u)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", zap.String("user_id", u.ID))
	return &user.LoginResponse{AccessToken: signed, ExpiresAt: expiresAt}, nil
}

// RequestPasswordReset mails a fresh one-time code. The code replaces any
// pending one, which is put back if the mail fails.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidSubmission)
	}
	code, err := s.newCode()
	if err != nil {
		return err
	}

	err = s.requestPasswordReset(ctx, email, code)
	authEvents.WithLabelValues("request_password_reset", result(err)).Inc()
	return err
}

func (s *AuthService) requestPasswordReset(ctx context.Context, email, code string) error {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return translateRepoErr(err)
	}
	if err := s.repo.SetVerificationCode(ctx, u.ID, &code); err != nil {
		return translateRepoErr(err)
	}

	sendErr := s.deliver(ctx, notification.PasswordResetEmail(u.Email, u.Username, code))
	if sendErr == nil {
		return nil
	}
	if err := s.compensate(ctx, func(ctx context.Context) error {
		return s.repo.SetVerificationCode(ctx, u.ID, u.VerificationCode)
	}); err != nil {
		s.logger.Error("failed to restore code after mail failure", zap.String("user_id", u.ID), zap.Error(err))
	}
	return sendErr
}

// ResetPassword replaces the password if code matches the pending one. Any
// attempt consumes the pending code, so a wrong guess requires a new request.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = strings.TrimSpace(email)
	if email == "" || code == "" || newPassword == "" {
		return fmt.Errorf("%w: email, code, and new_password are required", ErrInvalidSubmission)
	}
	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}

	mismatch := false
	err = s.repo.InTx(ctx, func(q repository.Queries) error {
		u, err := q.GetUserByEmail(ctx, email)
		if err != nil {
			return translateRepoErr(err)
		}
		if u.VerificationCode == nil {
			return ErrInvalidCode
		}
		if err := q.SetVerificationCode(ctx, u.ID, nil); err != nil {
			return err
		}
		if !codeMatches(u.VerificationCode, code) {
			mismatch = true
			return nil
		}
		return q.UpdatePassword(ctx, u.ID, hash)
	})
	if err == nil && mismatch {
		err = ErrInvalidCode
	}
	authEvents.WithLabelValues("reset_password", result(err)).Inc()
	return err
}

// ResolveSession maps a bearer token to the account it was issued for.
func (s *AuthService) ResolveSession(ctx context.Context, raw string) (*user.User, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	u, err := s.repo.GetUserByID(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: user no longer exists", ErrUnauthenticated)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *AuthService) GetUser(ctx context.Context, userID string) (*user.User, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return u, nil
}

func (s *AuthService) ListUsers(ctx context.Context) ([]*user.User, error) {
	return s.repo.ListUsers(ctx)
}

// EnsureAdmin creates a verified administrator unless the username is taken.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password, email string) error {
	existing, err := s.repo.GetUserByUsername(ctx, username)
	if err == nil {
		if existing.Role != user.RoleAdmin {
			s.logger.Warn("admin bootstrap skipped, username belongs to a non-admin account",
				zap.String("username", username))
		}
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	admin := &user.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         user.RoleAdmin,
		Coins:        user.StartingCoins,
		IsVerified:   true,
		OwnedItems:   []string{},
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("admin bootstrap: %w", ErrDuplicateIdentity)
		}
		return err
	}
	s.logger.Info("admin account created", zap.String("username", username))
	return nil
}
