package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestLoginRateLimiterWindow(t *testing.T) {
	limiter := NewLoginRateLimiter(3, time.Minute)
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		if ok, _ := limiter.allow("1.2.3.4", now); !ok {
			t.Fatalf("hit %d should be allowed", i+1)
		}
	}

	ok, retryAfter := limiter.allow("1.2.3.4", now)
	if ok {
		t.Fatal("fourth hit should be limited")
	}
	if retryAfter < time.Second {
		t.Fatalf("expected a positive retry-after, got %v", retryAfter)
	}

	// Another IP is unaffected.
	if ok, _ := limiter.allow("5.6.7.8", now); !ok {
		t.Fatal("different ip should be allowed")
	}

	// The window slides.
	if ok, _ := limiter.allow("1.2.3.4", now.Add(2*time.Minute)); !ok {
		t.Fatal("hit after the window should be allowed")
	}
}

func TestLoginRateLimiterMiddleware(t *testing.T) {
	limiter := NewLoginRateLimiter(1, time.Minute)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.Header.Set("X-Forwarded-For", "9.9.9.9")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != want {
			t.Fatalf("request %d: expected %d, got %d", i+1, want, rec.Code)
		}
		if want == http.StatusTooManyRequests && rec.Header().Get("Retry-After") == "" {
			t.Fatal("expected Retry-After header")
		}
	}
}
