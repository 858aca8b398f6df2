// Package identity verifies Google OAuth access tokens against the userinfo
// endpoint so profile data is never taken from the client.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultUserInfoURL is Google's OpenID Connect userinfo endpoint.
const DefaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

var (
	// ErrInvalidToken means Google rejected the access token.
	ErrInvalidToken = errors.New("identity: access token rejected")
	// ErrEmailNotVerified means the Google account has no verified email.
	ErrEmailNotVerified = errors.New("identity: email not verified")
)

// Profile is the verified subset of a Google account.
type Profile struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// Verifier resolves an access token to a verified profile.
type Verifier interface {
	Verify(ctx context.Context, accessToken string) (Profile, error)
}

// GoogleVerifier calls the userinfo endpoint with the bearer token.
type GoogleVerifier struct {
	userInfoURL string
	httpClient  *http.Client
}

// NewGoogleVerifier constructs a verifier. An empty URL uses DefaultUserInfoURL.
func NewGoogleVerifier(userInfoURL string) *GoogleVerifier {
	userInfoURL = strings.TrimSpace(userInfoURL)
	if userInfoURL == "" {
		userInfoURL = DefaultUserInfoURL
	}
	return &GoogleVerifier{
		userInfoURL: userInfoURL,
		httpClient:  &http.Client{Timeout: 5 * time.Second},
	}
}

type userInfoResponse struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Verify fetches the profile for accessToken.
func (g *GoogleVerifier) Verify(ctx context.Context, accessToken string) (Profile, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return Profile{}, ErrInvalidToken
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Profile{}, ErrInvalidToken
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Profile{}, fmt.Errorf("userinfo status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info userInfoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return Profile{}, fmt.Errorf("decode userinfo: %w", err)
	}
	profile := Profile{
		Subject:       strings.TrimSpace(info.Sub),
		Email:         strings.ToLower(strings.TrimSpace(info.Email)),
		EmailVerified: parseBool(info.EmailVerified),
		Name:          strings.TrimSpace(info.Name),
		Picture:       strings.TrimSpace(info.Picture),
	}
	if profile.Subject == "" || profile.Email == "" {
		return Profile{}, ErrInvalidToken
	}
	if !profile.EmailVerified {
		return Profile{}, ErrEmailNotVerified
	}
	return profile, nil
}

// Google returns email_verified as a bool, older endpoints as "true".
func parseBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	default:
		return false
	}
}
