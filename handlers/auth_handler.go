package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"minesweeperAPI/internal/user"
	"minesweeperAPI/middleware"
	"minesweeperAPI/services"
)

type AuthHandler struct {
	authService      *services.AuthService
	twoFactorService *services.TwoFactorService
	logger           *zap.Logger
}

func NewAuthHandler(authService *services.AuthService, twoFactorService *services.TwoFactorService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService:      authService,
		twoFactorService: twoFactorService,
		logger:           logger,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	// Covers the mail round trip.
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	var req user.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := h.authService.Register(ctx, req.Username, req.Password, req.Email); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithMessage(w, http.StatusCreated, "Please check your email for verification.")
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req user.VerifyEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Code == "" {
		respondWithError(w, http.StatusBadRequest, "Email and code are required")
		return
	}

	if err := h.authService.VerifyEmail(ctx, req.Email, req.Code); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithMessage(w, http.StatusOK, "Email verified successfully.")
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req user.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.authService.Login(ctx, req.Username, req.Password, req.OTP)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	var req user.PasswordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.authService.RequestPasswordReset(ctx, req.Email); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithMessage(w, http.StatusOK, "Password reset code sent to your email.")
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req user.ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.authService.ResetPassword(ctx, req.Email, req.Code, req.NewPassword); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	respondWithMessage(w, http.StatusOK, "Password has been reset successfully.")
}

// Protected returns the caller's own profile.
func (h *AuthHandler) Protected(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	respondWithJSON(w, http.StatusOK, u)
}

func (h *AuthHandler) Enable2FA(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	if err := h.twoFactorService.Enable(ctx, u.ID); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithMessage(w, http.StatusOK, "2FA enabled successfully.")
}

func (h *AuthHandler) Disable2FA(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	if err := h.twoFactorService.Disable(ctx, u.ID); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithMessage(w, http.StatusOK, "2FA disabled successfully.")
}

func (h *AuthHandler) Generate2FASecret(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	enrollment, err := h.twoFactorService.GenerateSecret(ctx, u.ID)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, enrollment)
}

func (h *AuthHandler) Verify2FA(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req user.VerifyOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.twoFactorService.Verify(ctx, u.ID, req.OTP); err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithMessage(w, http.StatusOK, "2FA code is valid.")
}
