package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"minesweeperAPI/internal/store"
	"minesweeperAPI/middleware"
	"minesweeperAPI/services"
)

type StoreHandler struct {
	economyService *services.EconomyService
	logger         *zap.Logger
}

func NewStoreHandler(economyService *services.EconomyService, logger *zap.Logger) *StoreHandler {
	return &StoreHandler{
		economyService: economyService,
		logger:         logger,
	}
}

func (h *StoreHandler) GetStore(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.economyService.Catalog())
}

func (h *StoreHandler) GetAvailableBG(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	owned, err := h.economyService.OwnedItems(ctx, u.ID)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusOK, store.AvailableItemsResponse{AvailableBG: owned})
}

func (h *StoreHandler) PurchaseStoreItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, ok := middleware.UserFromContext(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	var req store.PurchaseItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ItemID == "" {
		respondWithError(w, http.StatusBadRequest, "item_id is required")
		return
	}

	purchase, err := h.economyService.PurchaseItem(ctx, u.ID, req.ItemID)
	if err != nil {
		respondWithServiceError(w, h.logger, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, purchase)
}
