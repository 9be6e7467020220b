package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"minesweeperAPI/internal/repository"
	"minesweeperAPI/internal/user"
)

const totpPeriod = 30

type TwoFactorService struct {
	repo   repository.Store
	issuer string
	logger *zap.Logger
	now    func() time.Time
}

func NewTwoFactorService(repo repository.Store, issuer string, logger *zap.Logger) *TwoFactorService {
	if issuer == "" {
		issuer = "Minesweeper"
	}
	return &TwoFactorService{repo: repo, issuer: issuer, logger: logger, now: time.Now}
}

// GenerateSecret stores a fresh TOTP secret for the user and returns what an
// authenticator app needs to enrol it. Two-factor stays off until Enable.
func (s *TwoFactorService) GenerateSecret(ctx context.Context, userID string) (*user.TwoFactorEnrollment, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translateRepoErr(err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: u.Username,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp key: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	secret := key.Secret()
	err = s.repo.InTx(ctx, func(q repository.Queries) error {
		if err := q.SetTwoFactorSecret(ctx, u.ID, &secret); err != nil {
			return err
		}
		return q.SetTwoFactorEnabled(ctx, u.ID, false)
	})
	if err != nil {
		return nil, translateRepoErr(err)
	}

	return &user.TwoFactorEnrollment{
		Secret:       secret,
		OTPAuthURL:   key.URL(),
		QRCodeBase64: base64.StdEncoding.EncodeToString(png),
	}, nil
}

// Enable turns two-factor on. A secret must have been generated first.
func (s *TwoFactorService) Enable(ctx context.Context, userID string) error {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return translateRepoErr(err)
	}
	if u.Secret2FA == nil {
		return fmt.Errorf("%w: generate a 2FA secret first", ErrInvalidSubmission)
	}
	if err := s.repo.SetTwoFactorEnabled(ctx, u.ID, true); err != nil {
		return translateRepoErr(err)
	}
	s.logger.Info("2fa enabled", zap.String("user_id", u.ID))
	return nil
}

// Disable turns two-factor off and discards the secret.
func (s *TwoFactorService) Disable(ctx context.Context, userID string) error {
	err := s.repo.InTx(ctx, func(q repository.Queries) error {
		if err := q.SetTwoFactorEnabled(ctx, userID, false); err != nil {
			return err
		}
		return q.SetTwoFactorSecret(ctx, userID, nil)
	})
	if err != nil {
		return translateRepoErr(err)
	}
	s.logger.Info("2fa disabled", zap.String("user_id", userID))
	return nil
}

// Verify checks code against the user's stored secret.
func (s *TwoFactorService) Verify(ctx context.Context, userID string, code string) error {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return translateRepoErr(err)
	}
	if u.Secret2FA == nil || !s.Validate(*u.Secret2FA, code) {
		return ErrInvalidCode
	}
	return nil
}

// Validate accepts codes from the current period and one on either side.
func (s *TwoFactorService) Validate(secret, code string) bool {
	ok, err := totp.ValidateCustom(code, secret, s.now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
