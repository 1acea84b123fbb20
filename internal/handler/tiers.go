package handler

import (
	"net/http"

	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/domain"
)

// TiersHandler handles sponsorship tier endpoints.
type TiersHandler struct{}

// NewTiersHandler creates a new TiersHandler.
func NewTiersHandler() *TiersHandler {
	return &TiersHandler{}
}

// List handles GET /api/tiers.
func (h *TiersHandler) List(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, domain.AvailableTiers())
}
