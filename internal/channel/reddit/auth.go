package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// accessToken returns a cached script-app token, fetching a new one with
// the password grant a minute before expiry.
func (a *Adapter) accessToken(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && a.now().Before(a.tokenExpiry) {
		return a.token, nil
	}

	form := url.Values{
		"grant_type": {"password"},
		"username":   {a.config.Username},
		"password":   {a.config.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(a.config.ClientID, a.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("reddit token request: %w", err)
	}
	defer resp.Body.Close()

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("reddit token decode: %w", err)
	}
	if resp.StatusCode != http.StatusOK || tok.AccessToken == "" {
		return "", fmt.Errorf("reddit token request failed: status %d %s", resp.StatusCode, tok.Error)
	}

	a.token = tok.AccessToken
	a.tokenExpiry = a.now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return a.token, nil
}

func (a *Adapter) invalidateToken() {
	a.mu.Lock()
	a.token = ""
	a.mu.Unlock()
}
