package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"
)

// RealtimeHandler mints short-lived credentials for direct client connections
// to the speech service, so the server API key never reaches a client.
type RealtimeHandler struct {
	apiKey     string
	model      string
	voice      string
	sessionURL string
	client     *http.Client
}

func NewRealtimeHandler(apiKey, model, voice string) *RealtimeHandler {
	return &RealtimeHandler{
		apiKey:     apiKey,
		model:      model,
		voice:      voice,
		sessionURL: "https://api.openai.com/v1/realtime/sessions",
		client:     &http.Client{Timeout: 15 * time.Second},
	}
}

// MintToken handles POST /api/realtime/token. The request body is ignored;
// session parameters come from server config.
func (h *RealtimeHandler) MintToken(w http.ResponseWriter, r *http.Request) {
	if h.apiKey == "" {
		JSON(w, http.StatusServiceUnavailable, map[string]string{"error": "realtime voice is not configured"})
		return
	}

	payload, _ := json.Marshal(map[string]string{
		"model": h.model,
		"voice": h.voice,
	})

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, h.sessionURL, bytes.NewReader(payload))
	if err != nil {
		Error(w, err)
		return
	}
	req.Header.Set("Authorization", "Bearer "+h.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		log.Printf("[Realtime] Session mint failed: %v", err)
		JSON(w, http.StatusBadGateway, map[string]string{"error": "failed to create realtime session"})
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		JSON(w, http.StatusBadGateway, map[string]string{"error": "failed to read realtime session response"})
		return
	}

	if resp.StatusCode != http.StatusOK {
		// Never relay the raw provider error; it can echo request auth details.
		log.Printf("[Realtime] Session mint returned %d: %s", resp.StatusCode, body)
		JSON(w, http.StatusBadGateway, map[string]string{"error": "realtime session rejected"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
