package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KingMansaMusaMarketplace/wealth-hub-backend/internal/service"
	stripe "github.com/stripe/stripe-go/v82"
)

const testWebhookSecret = "whsec_test_secret"

// signPayload produces a Stripe-Signature header value for the given body,
// matching the provider's t=...,v1=... scheme.
func signPayload(secret string, body []byte, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func eventEnvelope(t *testing.T, eventType string, object map[string]interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"id":          "evt_test_1",
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        eventType,
		"data":        map[string]interface{}{"object": object},
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return body
}

func newTestHandler() *WebhookHandler {
	// None of the handler-level paths exercised here reach the stores.
	reconciler := service.NewReconciler(nil, nil, nil, nil, nil, service.NewLogNotifier())
	return NewWebhookHandler(reconciler, testWebhookSecret)
}

func postWebhook(h *WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/payment/webhook", strings.NewReader(string(body)))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	h.HandleStripe(rec, req)
	return rec
}

func TestWebhookAcceptsSignedUnknownEvent(t *testing.T) {
	h := newTestHandler()
	body := eventEnvelope(t, "invoice.finalized", map[string]interface{}{"id": "in_1"})

	rec := postWebhook(h, body, signPayload(testWebhookSecret, body, time.Now()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp["received"] {
		t.Errorf("response: got %s, want received=true", rec.Body.String())
	}
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	h := newTestHandler()
	body := eventEnvelope(t, "checkout.session.completed", map[string]interface{}{"id": "cs_1"})

	tests := []struct {
		name      string
		signature string
	}{
		{"missing header", ""},
		{"garbage header", "t=123,v1=deadbeef"},
		{"wrong secret", signPayload("whsec_other", body, time.Now())},
		{"stale timestamp", signPayload(testWebhookSecret, body, time.Now().Add(-time.Hour))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postWebhook(h, body, tt.signature)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "invalid signature") {
				t.Errorf("body: got %s, want invalid signature error", rec.Body.String())
			}
		})
	}
}

func TestWebhookRejectsTamperedBody(t *testing.T) {
	h := newTestHandler()
	body := eventEnvelope(t, "checkout.session.completed", map[string]interface{}{"id": "cs_1"})
	signature := signPayload(testWebhookSecret, body, time.Now())

	tampered := []byte(strings.Replace(string(body), "cs_1", "cs_2", 1))
	rec := postWebhook(h, tampered, signature)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestWebhookRejectsInvalidPayloadForKnownType(t *testing.T) {
	h := newTestHandler()
	// Recognized type, but the object is missing its required id.
	body := eventEnvelope(t, "customer.subscription.updated", map[string]interface{}{"status": "active"})

	rec := postWebhook(h, body, signPayload(testWebhookSecret, body, time.Now()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400 (body: %s)", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "invalid customer.subscription.updated payload") {
		t.Errorf("body: got %s, want field validation error", rec.Body.String())
	}
}
