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

type AdminHandler struct {
	authService *services.AuthService
	logger      *zap.Logger
}

func NewAdminHandler(authService *services.AuthService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{authService: authService, logger: logger}
}

func (h *AdminHandler) Admin(w http.ResponseWriter, r *http.Request) {
	u, ok := middleware.UserFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	respondWithMessage(w, http.StatusOK, "Welcome, admin "+u.Username+"!")
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	users, err := h.authService.ListUsers(ctx)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	if users == nil {
		users = []*user.User{}
	}
	respondWithJSON(w, http.StatusOK, map[string][]*user.User{"users": users})
}
