package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"dashboard-auth/internal/auth"
)

// ErrSessionRefresh is returned from Token when a silent refresh failed.
// The failure is also recorded on the state's Err field; prior tokens stay
// in place so the caller can decide to force a full re-authentication.
var ErrSessionRefresh = errors.New("session refresh failed")

// ErrNotAuthenticated is returned from Token when no session is active.
var ErrNotAuthenticated = errors.New("not authenticated")

// GoogleRefresher refreshes a federated access token with the provider.
type GoogleRefresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (string, error)
}

// Cache holds the current session state and refreshes tokens just in time.
// Concurrent consumers of an expired token share one in-flight refresh.
type Cache struct {
	mu     sync.Mutex
	state  State
	client *Client
	google GoogleRefresher
	group  singleflight.Group
	now    func() time.Time
}

func NewCache(client *Client, google GoogleRefresher) *Cache {
	return &Cache{
		client: client,
		google: google,
		now:    time.Now,
	}
}

// SignInWithCredentials runs login then the initial-token exchange and
// installs the resulting session.
func (c *Cache) SignInWithCredentials(ctx context.Context, email, password string) error {
	user, initial, err := c.client.Login(ctx, email, password)
	if err != nil {
		return err
	}

	pair, exchanged, err := c.client.GenerateTokens(ctx, initial, auth.TokenTypeInitial)
	if err != nil {
		return err
	}
	if exchanged.ID != "" {
		user = exchanged
	}

	c.setState(Authenticated(ProviderCredentials, user, pair, "", ""))
	return nil
}

// SignInWithGoogle exchanges a Google ID token for a local pair and installs
// the resulting session, keeping the federated tokens for silent refresh.
func (c *Cache) SignInWithGoogle(ctx context.Context, idToken, googleRefreshToken string) error {
	pair, user, err := c.client.GenerateTokens(ctx, idToken, auth.TokenTypeGoogle)
	if err != nil {
		return err
	}

	c.setState(Authenticated(ProviderGoogle, user, pair, idToken, googleRefreshToken))
	return nil
}

// Token returns a live access token, refreshing the session first when the
// local pair (or, for google sessions, the federated token) has expired.
func (c *Cache) Token(ctx context.Context) (string, error) {
	state := c.State()
	if !state.Active() {
		return "", ErrNotAuthenticated
	}
	if state.Err != "" {
		return "", ErrSessionRefresh
	}

	now := c.now()
	if !state.Expired(now) && !(state.Provider == ProviderGoogle && state.GoogleExpired(now)) {
		return state.AccessToken, nil
	}

	// Coalesce concurrent refreshes: the rotation is single-use server-side,
	// so a second independent attempt would burn the fresh refresh token.
	result, err, _ := c.group.Do("refresh", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil
}

func (c *Cache) refresh(ctx context.Context) (string, error) {
	state := c.State()

	// Re-check under the flight: an earlier caller may have already rotated.
	now := c.now()
	if state.Err == "" && !state.Expired(now) && !(state.Provider == ProviderGoogle && state.GoogleExpired(now)) {
		return state.AccessToken, nil
	}

	// Federated sessions refresh the provider token first, then obtain a new
	// local pair by re-running the google exchange.
	if state.Provider == ProviderGoogle && state.GoogleExpired(now) {
		googleToken, err := c.google.RefreshAccessToken(ctx, state.GoogleRefreshToken)
		if err != nil {
			c.setState(state.WithRefreshError())
			return "", ErrSessionRefresh
		}

		pair, _, err := c.client.GenerateTokens(ctx, googleToken, auth.TokenTypeGoogle)
		if err != nil {
			c.setState(state.WithRefreshError())
			return "", ErrSessionRefresh
		}

		next := state.WithGoogleAccessToken(googleToken).WithPair(pair)
		c.setState(next)
		return next.AccessToken, nil
	}

	pair, err := c.client.Refresh(ctx, state.RefreshToken)
	if err != nil {
		c.setState(state.WithRefreshError())
		return "", ErrSessionRefresh
	}

	next := state.WithPair(pair)
	c.setState(next)
	return next.AccessToken, nil
}

// State returns a copy of the current session state.
func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SignOut discards the session.
func (c *Cache) SignOut() {
	c.setState(State{})
}

func (c *Cache) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}
