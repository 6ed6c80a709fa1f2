package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestMux(service *Service) http.Handler {
	handler := NewHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signup", handler.Signup)
	mux.HandleFunc("POST /auth/login", handler.Login)
	mux.HandleFunc("POST /auth/generate-tokens", handler.GenerateTokens)
	mux.HandleFunc("POST /auth/refresh-token", handler.Refresh)
	mux.Handle("GET /auth/me", Middleware(service.forge, http.HandlerFunc(handler.Me)))
	return mux
}

func postJSON(t *testing.T, server *httptest.Server, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	resp, err := http.Post(server.URL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	decoded := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode %s response: %v", path, err)
	}

	return resp, decoded
}

func TestAuthFlow(t *testing.T) {
	service := newTestService(newMemStore(), &fakeGoogle{})
	server := httptest.NewServer(newTestMux(service))
	defer server.Close()

	signup := map[string]string{
		"firstName": "A",
		"lastName":  "B",
		"email":     "a@x.com",
		"password":  "p12345678",
	}

	resp, _ := postJSON(t, server, "/auth/signup", signup)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d", resp.StatusCode)
	}

	resp, body := postJSON(t, server, "/auth/signup", signup)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate signup: expected 400, got %d", resp.StatusCode)
	}
	if body["error"] == "" {
		t.Fatal("duplicate signup: expected an error message")
	}

	resp, _ = postJSON(t, server, "/auth/login", map[string]string{"email": "a@x.com", "password": "wrong-password"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", resp.StatusCode)
	}

	resp, body = postJSON(t, server, "/auth/login", map[string]string{"email": "a@x.com", "password": "p12345678"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}
	initial, _ := body["token"].(string)
	if initial == "" {
		t.Fatal("login: expected an initial token")
	}
	if user, ok := body["user"].(map[string]any); !ok || user["email"] != "a@x.com" {
		t.Fatalf("login: unexpected user payload %v", body["user"])
	}

	resp, body = postJSON(t, server, "/auth/generate-tokens", map[string]string{"token": initial, "tokenType": "initial"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate-tokens: expected 200, got %d", resp.StatusCode)
	}
	access, _ := body["accessToken"].(string)
	refresh, _ := body["refreshToken"].(string)
	if access == "" || refresh == "" {
		t.Fatal("generate-tokens: expected a full pair")
	}

	resp, body = postJSON(t, server, "/auth/refresh-token", map[string]string{"refreshToken": refresh})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", resp.StatusCode)
	}
	rotated, _ := body["refreshToken"].(string)
	if rotated == "" || rotated == refresh {
		t.Fatal("refresh: expected a rotated refresh token")
	}

	resp, _ = postJSON(t, server, "/auth/refresh-token", map[string]string{"refreshToken": refresh})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("stale refresh token: expected 403, got %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, server.URL+"/auth/me", nil)
	if err != nil {
		t.Fatalf("build me request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+access)
	meResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /auth/me: %v", err)
	}
	defer meResp.Body.Close()
	if meResp.StatusCode != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", meResp.StatusCode)
	}
}

func TestRefreshEndpointValidation(t *testing.T) {
	service := newTestService(newMemStore(), &fakeGoogle{})
	server := httptest.NewServer(newTestMux(service))
	defer server.Close()

	resp, _ := postJSON(t, server, "/auth/refresh-token", map[string]string{"refreshToken": ""})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("empty refresh token: expected 401, got %d", resp.StatusCode)
	}

	resp, _ = postJSON(t, server, "/auth/refresh-token", map[string]string{"refreshToken": "garbage"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("malformed refresh token: expected 403, got %d", resp.StatusCode)
	}
}

func TestGenerateTokensEndpointValidation(t *testing.T) {
	service := newTestService(newMemStore(), &fakeGoogle{})
	server := httptest.NewServer(newTestMux(service))
	defer server.Close()

	resp, _ := postJSON(t, server, "/auth/generate-tokens", map[string]string{"token": "x", "tokenType": "saml"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown token type: expected 400, got %d", resp.StatusCode)
	}

	resp, _ = postJSON(t, server, "/auth/generate-tokens", map[string]string{"token": "", "tokenType": "initial"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", resp.StatusCode)
	}

	resp, _ = postJSON(t, server, "/auth/generate-tokens", map[string]string{"token": "forged", "tokenType": "initial"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("invalid initial token: expected 403, got %d", resp.StatusCode)
	}
}

func TestSignupValidation(t *testing.T) {
	service := newTestService(newMemStore(), &fakeGoogle{})
	server := httptest.NewServer(newTestMux(service))
	defer server.Close()

	tests := []struct {
		name string
		body map[string]string
	}{
		{"bad email", map[string]string{"firstName": "A", "lastName": "B", "email": "not-an-email", "password": "p12345678"}},
		{"short password", map[string]string{"firstName": "A", "lastName": "B", "email": "a@x.com", "password": "short"}},
		{"missing first name", map[string]string{"firstName": " ", "lastName": "B", "email": "a@x.com", "password": "p12345678"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := postJSON(t, server, "/auth/signup", tc.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestMiddlewareRejectsNonAccessKinds(t *testing.T) {
	store := newMemStore()
	service := newTestService(store, &fakeGoogle{})
	server := httptest.NewServer(newTestMux(service))
	defer server.Close()

	if err := service.Signup(t.Context(), "A", "B", "a@x.com", "p12345678"); err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	_, initial, err := service.Login(t.Context(), "a@x.com", "p12345678")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	for _, tc := range []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"initial token as access", "Bearer " + initial},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, server.URL+"/auth/me", nil)
			if err != nil {
				t.Fatalf("build request: %v", err)
			}
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			resp, err := client.Do(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.StatusCode)
			}
		})
	}
}
