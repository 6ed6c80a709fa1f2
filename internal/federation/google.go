package federation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const defaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

var (
	ErrVerificationFailed = errors.New("google token verification failed")
	ErrRefreshFailed      = errors.New("google token refresh failed")
)

// Profile is the verified identity tuple extracted from a Google ID token.
type Profile struct {
	Email      string
	GivenName  string
	FamilyName string
	Picture    string
}

// Google exchanges tokens with Google's OAuth endpoints. It performs no
// local validation beyond shape-checking the provider's responses.
type Google struct {
	conf         *oauth2.Config
	client       *http.Client
	tokenInfoURL string
}

func NewGoogle(clientID, clientSecret string) *Google {
	return &Google{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		client:       &http.Client{Timeout: 10 * time.Second},
		tokenInfoURL: defaultTokenInfoURL,
	}
}

type tokenInfoResponse struct {
	Audience      string `json:"aud"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// VerifyIDToken asks Google's tokeninfo endpoint to validate a raw ID token
// and returns the identity it asserts. Any provider rejection, timeout, or
// payload without a verified email maps to ErrVerificationFailed.
func (g *Google) VerifyIDToken(ctx context.Context, raw string) (Profile, error) {
	if raw == "" {
		return Profile{}, ErrVerificationFailed
	}

	endpoint := g.tokenInfoURL + "?id_token=" + url.QueryEscape(raw)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Profile{}, ErrVerificationFailed
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return Profile{}, ErrVerificationFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Profile{}, ErrVerificationFailed
	}

	var info tokenInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Profile{}, ErrVerificationFailed
	}

	if info.Audience != g.conf.ClientID {
		return Profile{}, ErrVerificationFailed
	}
	if info.Email == "" || info.EmailVerified != "true" {
		return Profile{}, ErrVerificationFailed
	}

	return Profile{
		Email:      info.Email,
		GivenName:  info.GivenName,
		FamilyName: info.FamilyName,
		Picture:    info.Picture,
	}, nil
}

// RefreshAccessToken runs the refresh grant against Google's token endpoint
// and returns a fresh ID token (falling back to the plain access token when
// the provider omits one). Expired or revoked grants map to ErrRefreshFailed.
func (g *Google) RefreshAccessToken(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", ErrRefreshFailed
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.client)
	source := g.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	tok, err := source.Token()
	if err != nil {
		return "", ErrRefreshFailed
	}

	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" {
		return idToken, nil
	}
	if tok.AccessToken == "" {
		return "", ErrRefreshFailed
	}

	return tok.AccessToken, nil
}
