package session

import (
	"time"

	"dashboard-auth/internal/auth"
	"dashboard-auth/internal/token"
)

type Provider string

const (
	ProviderCredentials Provider = "credentials"
	ProviderGoogle      Provider = "google"
)

// RefreshError is the sticky error value recorded on a session whose silent
// refresh failed. Callers react to it (forcing re-authentication) instead of
// handling an exception from token access.
const RefreshError = "RefreshAccessTokenError"

// State is the full client-side session value. It is never mutated in place;
// every transition returns a new State.
type State struct {
	AccessToken        string
	RefreshToken       string
	GoogleAccessToken  string
	GoogleRefreshToken string
	Provider           Provider
	User               auth.Profile
	ExpiresAt          time.Time
	GoogleExpiresAt    time.Time
	Err                string
}

// Authenticated builds the session state after a completed token exchange.
func Authenticated(provider Provider, user auth.Profile, pair auth.TokenPair, googleAccess, googleRefresh string) State {
	s := State{
		Provider:           provider,
		User:               user,
		GoogleRefreshToken: googleRefresh,
	}
	if googleAccess != "" {
		s = s.WithGoogleAccessToken(googleAccess)
	}
	return s.WithPair(pair)
}

func (s State) Active() bool {
	return s.AccessToken != ""
}

// Expired reports whether the local access token needs refreshing. Tokens
// with an unreadable expiry count as expired.
func (s State) Expired(now time.Time) bool {
	if s.AccessToken == "" {
		return true
	}
	return s.ExpiresAt.IsZero() || !now.Before(s.ExpiresAt)
}

// GoogleExpired reports whether the federated access token needs refreshing.
// Sessions without a google token never do.
func (s State) GoogleExpired(now time.Time) bool {
	if s.GoogleAccessToken == "" {
		return false
	}
	return s.GoogleExpiresAt.IsZero() || !now.Before(s.GoogleExpiresAt)
}

// WithPair absorbs a fresh access/refresh pair, recomputing the expiry
// marker from the access token's exp claim and clearing any prior error.
func (s State) WithPair(pair auth.TokenPair) State {
	s.AccessToken = pair.AccessToken
	if pair.RefreshToken != "" {
		s.RefreshToken = pair.RefreshToken
	}
	s.ExpiresAt = time.Time{}
	if exp, err := token.ExpiryOf(pair.AccessToken); err == nil {
		s.ExpiresAt = exp
	}
	s.Err = ""
	return s
}

// WithGoogleAccessToken absorbs a refreshed federated access token.
func (s State) WithGoogleAccessToken(raw string) State {
	s.GoogleAccessToken = raw
	s.GoogleExpiresAt = time.Time{}
	if exp, err := token.ExpiryOf(raw); err == nil {
		s.GoogleExpiresAt = exp
	}
	s.Err = ""
	return s
}

// WithRefreshError marks the session failed while leaving the prior tokens
// in place for the caller to inspect.
func (s State) WithRefreshError() State {
	s.Err = RefreshError
	return s
}
