package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"minesweeperAPI/internal/leaderboard"
	"minesweeperAPI/internal/user"
	"minesweeperAPI/middleware"
	"minesweeperAPI/services"
)

type GameHandler struct {
	leaderboardService *services.LeaderboardService
	economyService     *services.EconomyService
	logger             *zap.Logger
}

func NewGameHandler(leaderboardService *services.LeaderboardService, economyService *services.EconomyService, logger *zap.Logger) *GameHandler {
	return &GameHandler{
		leaderboardService: leaderboardService,
		economyService:     economyService,
		logger:             logger,
	}
}

func (h *GameHandler) NewRecord(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req leaderboard.SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	difficulty, err := leaderboard.ParseDifficulty(req.Difficulty)
	if err != nil || req.Milliseconds <= 0 || req.Milliseconds > leaderboard.MaxMilliseconds {
		respondWithError(w, http.StatusBadRequest,
			"Invalid data. Requires: milliseconds (positive 32-bit integer), difficulty (easy, medium, hard)")
		return
	}

	result, err := h.leaderboardService.SubmitRecord(ctx, u.ID, difficulty, req.Milliseconds)
	if errors.Is(err, services.ErrNotVerified) {
		respondWithError(w, http.StatusBadRequest, "User is not verified")
		return
	}
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == leaderboard.AdmittedTopTen {
		status = http.StatusCreated
	}
	respondWithJSON(w, status, result)
}

// GetRecords lists the top records of every difficulty. No token is needed.
func (h *GameHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	records, err := h.leaderboardService.GetAllTop(ctx)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, records)
}

func (h *GameHandler) GetPersonalRecords(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	records, err := h.leaderboardService.GetPersonal(ctx, u.ID)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, records)
}

func (h *GameHandler) OpenMine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	balance, err := h.economyService.OpenCell(ctx, u.ID)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, user.CoinsResponse{Coins: balance})
}

func (h *GameHandler) GetCoins(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	balance, err := h.economyService.Balance(ctx, u.ID)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, user.CoinsResponse{Coins: balance})
}
