package handler

import (
	"io"
	"log"
	"net/http"

	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/domain"
	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/service"
	"github.com/stripe/stripe-go/v82/webhook"
)

// maxWebhookBody caps the raw payload size read from the provider.
const maxWebhookBody = 1 << 20

// WebhookHandler receives signed payment provider events and hands them to
// the reconciler.
type WebhookHandler struct {
	reconciler    *service.Reconciler
	webhookSecret string
}

func NewWebhookHandler(reconciler *service.Reconciler, webhookSecret string) *WebhookHandler {
	return &WebhookHandler{
		reconciler:    reconciler,
		webhookSecret: webhookSecret,
	}
}

// HandleStripe handles POST /api/payment/webhook.
//
// The signature check is the sole trust boundary: a bad signature is rejected
// before the payload is even parsed. Processing errors also return 400 so the
// provider's own retry mechanism redelivers the event — the handler performs
// no retries or queueing of its own.
func (h *WebhookHandler) HandleStripe(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		JSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
		return
	}

	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		log.Printf("[Webhook] Signature verification failed: %v", err)
		JSON(w, http.StatusBadRequest, map[string]string{"error": "invalid signature"})
		return
	}

	if err := h.reconciler.Process(r.Context(), string(event.Type), event.Data.Raw); err != nil {
		if appErr, ok := domain.AsAppError(err); ok {
			JSON(w, http.StatusBadRequest, map[string]string{"error": appErr.Message})
			return
		}
		log.Printf("[Webhook] Processing %s failed: %v", event.Type, err)
		JSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	JSON(w, http.StatusOK, map[string]bool{"received": true})
}
