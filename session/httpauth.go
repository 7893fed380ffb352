package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const loginTimeout = 15 * time.Second

// HTTPAuthenticator logs in against the remote service's JSON login
// endpoint. Status mapping: 401 is bad credentials, any other non-200 is a
// server rejection, and transport failures are network unavailability.
type HTTPAuthenticator struct {
	url    string
	client *http.Client
}

// NewHTTPAuthenticator creates an authenticator for the given login URL.
func NewHTTPAuthenticator(url string) *HTTPAuthenticator {
	return &HTTPAuthenticator{
		url:    url,
		client: &http.Client{Timeout: loginTimeout},
	}
}

func (a *HTTPAuthenticator) Login(ctx context.Context, identity, secret string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"identity": identity,
		"secret":   secret,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrServerRejected, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		return "", ErrInvalidCredentials
	default:
		return "", fmt.Errorf("%w: status %d", ErrServerRejected, resp.StatusCode)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrServerRejected, err)
	}
	if payload.Token == "" {
		return "", fmt.Errorf("%w: empty token", ErrServerRejected)
	}
	return payload.Token, nil
}
