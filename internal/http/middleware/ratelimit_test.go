package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/realestate-marketplace/internal/auth"
)

func TestRateLimiterBurstThenRefill(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return clock }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatalf("expected burst of 2 to be allowed")
	}
	if rl.Allow("a") {
		t.Fatalf("expected third request to be limited")
	}
	if !rl.Allow("b") {
		t.Fatalf("expected independent bucket per key")
	}
	clock = clock.Add(1500 * time.Millisecond)
	if !rl.Allow("a") {
		t.Fatalf("expected refill after a second")
	}
}

func TestRateLimiterEvict(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return clock }
	rl.Allow("old")
	clock = clock.Add(time.Hour)
	rl.Allow("new")

	if removed := rl.Evict(clock.Add(-time.Minute)); removed != 1 {
		t.Fatalf("expected one stale bucket evicted, got %d", removed)
	}
}

func TestRateLimitSetsRetryAfter(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(0.25, 1)
	rl.now = func() time.Time { return clock }
	handler := RateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/proposals", nil)
		req.Header.Set("X-Real-Ip", "203.0.113.9")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rec.Code)
	}
	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected limit, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "4" {
		t.Fatalf("expected Retry-After 4, got %q", got)
	}
}

func TestRetryAfterWithoutRefill(t *testing.T) {
	if got := retryAfter(0); got != "60" {
		t.Fatalf("unexpected fallback %q", got)
	}
	if got := retryAfter(1500 * time.Millisecond); got != "2" {
		t.Fatalf("expected rounding up, got %q", got)
	}
}

func TestRateLimitKeysByPrincipal(t *testing.T) {
	mw := RateLimit(NewRateLimiter(0, 1))
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(userID uuid.UUID) int {
		req := httptest.NewRequest(http.MethodPost, "/api/proposals", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req = req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{UserID: userID}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	first, second := uuid.New(), uuid.New()
	if code := send(first); code != http.StatusCreated {
		t.Fatalf("expected first request allowed, got %d", code)
	}
	if code := send(first); code != http.StatusTooManyRequests {
		t.Fatalf("expected second request limited, got %d", code)
	}
	if code := send(second); code != http.StatusCreated {
		t.Fatalf("expected other user allowed from same ip, got %d", code)
	}
}
