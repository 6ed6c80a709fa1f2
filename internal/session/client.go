package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dashboard-auth/internal/auth"
)

// APIError is a non-2xx response from the auth backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth api: %d %s", e.StatusCode, e.Message)
}

// Client talks to the auth backend's HTTP surface.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Signup(ctx context.Context, firstName, lastName, email, password string) error {
	return c.post(ctx, "/auth/signup", map[string]string{
		"firstName": firstName,
		"lastName":  lastName,
		"email":     email,
		"password":  password,
	}, nil)
}

func (c *Client) Login(ctx context.Context, email, password string) (auth.Profile, string, error) {
	var out struct {
		User  auth.Profile `json:"user"`
		Token string       `json:"token"`
	}
	if err := c.post(ctx, "/auth/login", map[string]string{"email": email, "password": password}, &out); err != nil {
		return auth.Profile{}, "", err
	}
	return out.User, out.Token, nil
}

func (c *Client) GenerateTokens(ctx context.Context, rawToken string, tokenType auth.TokenType) (auth.TokenPair, auth.Profile, error) {
	var out struct {
		AccessToken  string       `json:"accessToken"`
		RefreshToken string       `json:"refreshToken"`
		User         auth.Profile `json:"user"`
	}
	err := c.post(ctx, "/auth/generate-tokens", map[string]string{
		"token":     rawToken,
		"tokenType": string(tokenType),
	}, &out)
	if err != nil {
		return auth.TokenPair{}, auth.Profile{}, err
	}
	return auth.TokenPair{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}, out.User, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	var out auth.TokenPair
	if err := c.post(ctx, "/auth/refresh-token", map[string]string{"refreshToken": refreshToken}, &out); err != nil {
		return auth.TokenPair{}, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}

	return nil
}
