package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/kiranshivaraju/aianalysis/internal/api/response"
	"github.com/kiranshivaraju/aianalysis/internal/cache"
	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerMinute = 60
	rateWindow               = 60 * time.Second
)

// RateLimit provides fixed-window per-client rate limiting via Redis. Without
// a cache, or while Redis is failing, each client gets an in-process token
// bucket with the same per-minute budget.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

// NewRateLimit creates a new RateLimit middleware. c may be nil.
func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{
		cache:          c,
		requestsPerMin: requestsPerMin,
		local:          make(map[string]*rate.Limiter),
	}
}

func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientID(r)

		if rl.cache != nil {
			count, err := rl.cache.IncrWithExpiry(r.Context(), cache.ClientRateKey(client), rateWindow)
			if err == nil {
				rl.respond(w, r, next, int(count) <= rl.requestsPerMin, rl.requestsPerMin-int(count))
				return
			}
			slog.Warn("rate limit cache unavailable, using local limiter", "error", err)
		}

		lim := rl.limiterFor(client)
		allowed := lim.Allow()
		rl.respond(w, r, next, allowed, int(lim.Tokens()))
	})
}

func (rl *RateLimit) respond(w http.ResponseWriter, r *http.Request, next http.Handler, allowed bool, remaining int) {
	if remaining < 0 {
		remaining = 0
	}
	resetTime := time.Now().Add(rateWindow).Unix()

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime))

	if !allowed {
		w.Header().Set("Retry-After", "60")
		response.Error(w, http.StatusTooManyRequests,
			"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
		return
	}
	next.ServeHTTP(w, r)
}

func (rl *RateLimit) limiterFor(client string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, ok := rl.local[client]
	if !ok {
		lim = rate.NewLimiter(rate.Every(rateWindow/time.Duration(rl.requestsPerMin)), rl.requestsPerMin)
		rl.local[client] = lim
	}
	return lim
}
