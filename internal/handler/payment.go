package handler

import (
	"net/http"

	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/contextkeys"
	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/service"
	"github.com/go-chi/chi/v5"
)

type PaymentHandler struct {
	svc *service.SubscriptionService
}

func NewPaymentHandler(svc *service.SubscriptionService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

// GetSubscription handles GET /api/payment/subscription.
func (h *PaymentHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(contextkeys.UserID).(string)
	if !ok || userID == "" {
		JSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	sub, err := h.svc.GetCurrentSubscription(r.Context(), userID)
	if err != nil {
		Error(w, err)
		return
	}

	if sub == nil {
		JSON(w, http.StatusOK, map[string]interface{}{"status": "none"})
		return
	}

	JSON(w, http.StatusOK, sub)
}

// GetImpact handles GET /api/sponsors/{id}/impact.
func (h *PaymentHandler) GetImpact(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value(contextkeys.UserID).(string)
	role, _ := r.Context().Value(contextkeys.UserRole).(string)

	metrics, err := h.svc.GetImpact(r.Context(), chi.URLParam(r, "id"), userID, role)
	if err != nil {
		Error(w, err)
		return
	}

	JSON(w, http.StatusOK, metrics)
}
