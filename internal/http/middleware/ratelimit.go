package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wolfman30/realestate-marketplace/internal/auth"
)

// RateLimiter throttles proposal submissions per caller. Each key gets its
// own token bucket refilled at rps with room for burst requests.
type RateLimiter struct {
	mu      sync.Mutex
	callers map[string]*caller
	rps     rate.Limit
	burst   int
	now     func() time.Time
}

type caller struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		callers: make(map[string]*caller),
		rps:     rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow reports whether key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	ok, _ := rl.reserve(key)
	return ok
}

// reserve takes a token for key. When none is available it returns the
// wait until one is, or zero if the bucket never refills.
func (rl *RateLimiter) reserve(key string) (bool, time.Duration) {
	rl.mu.Lock()
	now := rl.now()
	c, found := rl.callers[key]
	if !found {
		c = &caller{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.callers[key] = c
	}
	c.lastSeen = now
	rl.mu.Unlock()

	r := c.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Evict drops callers not seen since cutoff and reports how many went.
func (rl *RateLimiter) Evict(cutoff time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	n := 0
	for key, c := range rl.callers {
		if c.lastSeen.Before(cutoff) {
			delete(rl.callers, key)
			n++
		}
	}
	return n
}

// RateLimit rejects callers over their budget with 429. Authenticated
// callers are keyed by user id, anonymous ones by client IP.
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + r.RemoteAddr
			if ip := r.Header.Get("X-Real-Ip"); ip != "" {
				key = "ip:" + ip
			}
			if p, ok := auth.PrincipalFromContext(r.Context()); ok {
				key = "user:" + p.UserID.String()
			}
			ok, wait := limiter.reserve(key)
			if !ok {
				w.Header().Set("Retry-After", retryAfter(wait))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfter(wait time.Duration) string {
	if wait <= 0 {
		return "60"
	}
	return strconv.Itoa(int(math.Ceil(wait.Seconds())))
}
