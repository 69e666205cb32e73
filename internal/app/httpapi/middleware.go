package httpapi

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/zcy-charity/jar-service/pkg/logger"
)

type contextKey string

const actorKey contextKey = "actor"

// actorID returns the authenticated volunteer id, if any.
func actorID(r *http.Request) string {
	id, _ := r.Context().Value(actorKey).(string)
	return id
}

// authenticate resolves a Bearer token to a volunteer id and stores it on
// the request context. Requests without a token pass through anonymously;
// handlers that need an actor reject them.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header {
			writeError(w, http.StatusUnauthorized, "malformed authorization header")
			return
		}
		id, err := h.volunteers.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, id)))
	})
}

// requireActor rejects unauthenticated requests.
func (h *Handler) requireActor(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if actorID(r) == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}

// requireOperator gates moderation endpoints behind the shared operator
// credential. Volunteer tokens never pass it, and an empty configured token
// keeps the endpoint disabled.
func (h *Handler) requireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		presented := r.Header.Get("X-Operator-Token")
		if h.operatorToken == "" ||
			subtle.ConstantTimeCompare([]byte(presented), []byte(h.operatorToken)) != 1 {
			writeError(w, http.StatusForbidden, "operator credential required")
			return
		}
		next(w, r)
	}
}

// rateLimiter throttles requests per client IP.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newRateLimiter(rps float64, burst int) *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lim, ok := rl.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[key] = lim
	}
	return lim.Allow()
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !rl.allow(host) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// logRequests emits one structured line per request.
func logRequests(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.WithField("method", r.Method).
				WithField("path", r.URL.Path).
				WithField("duration", time.Since(start).String()).
				Debug("request handled")
		})
	}
}
