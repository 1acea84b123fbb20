package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultBaseURL is the speech service API root.
const DefaultBaseURL = "https://api.openai.com"

// TokenSource obtains a short-lived client secret for one session. The
// long-lived server key never travels with the SDP exchange.
type TokenSource interface {
	EphemeralKey(ctx context.Context) (string, error)
}

type clientSecretResponse struct {
	ClientSecret struct {
		Value string `json:"value"`
	} `json:"client_secret"`
}

// BackendTokenSource fetches an ephemeral secret from a backend token
// endpoint with an empty POST body (the endpoint shape served by
// /api/realtime/token).
type BackendTokenSource struct {
	URL       string
	AuthToken string // caller's bearer token for the backend
	Client    *http.Client
}

func (s *BackendTokenSource) EphemeralKey(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	if s.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.AuthToken)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch ephemeral token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var parsed clientSecretResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if parsed.ClientSecret.Value == "" {
		return "", fmt.Errorf("token response missing client secret")
	}
	return parsed.ClientSecret.Value, nil
}

// APITokenSource mints an ephemeral secret directly from the speech service
// sessions API using the server key. Used by server-side sessions where no
// backend hop is needed.
type APITokenSource struct {
	APIKey  string
	Model   string
	Voice   string
	BaseURL string
	Client  *http.Client
}

func (s *APITokenSource) EphemeralKey(ctx context.Context) (string, error) {
	base := s.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	payload, _ := json.Marshal(map[string]string{
		"model": s.Model,
		"voice": s.Voice,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/realtime/sessions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to create realtime session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("sessions API returned status %d: %s", resp.StatusCode, body)
	}

	var parsed clientSecretResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode session response: %w", err)
	}
	if parsed.ClientSecret.Value == "" {
		return "", fmt.Errorf("session response missing client secret")
	}
	return parsed.ClientSecret.Value, nil
}

// exchangeSDP posts the local offer as raw SDP text, bearer-authenticated
// with the ephemeral secret, and returns the remote answer SDP.
func exchangeSDP(ctx context.Context, client *http.Client, baseURL, model, ephemeralKey, offerSDP string) (string, error) {
	url := fmt.Sprintf("%s/v1/realtime?model=%s", baseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(offerSDP))
	if err != nil {
		return "", fmt.Errorf("failed to build SDP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+ephemeralKey)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("SDP exchange failed: %w", err)
	}
	defer resp.Body.Close()

	answer, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read SDP answer: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("SDP exchange returned status %d: %s", resp.StatusCode, answer)
	}
	return string(answer), nil
}
