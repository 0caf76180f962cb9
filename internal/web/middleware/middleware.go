package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/castmail/internal/web/session"
)

type ctxKey string

const ctxKeySession ctxKey = "session"

// Logger middleware logs HTTP requests
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"bytes", ww.BytesWritten(),
				"request_id", chimw.GetReqID(r.Context()),
				"ip", r.RemoteAddr,
			)
		})
	}
}

// Recovery middleware recovers from panics
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Session attaches the browser's session to the request context, creating one
// on first visit
func Session(registry *session.Registry, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := registry.Ensure(w, r)
			if err != nil {
				logger.Error("failed to create session", "error", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// WithSession returns a context carrying sess
func WithSession(ctx context.Context, sess *session.Session) context.Context {
	return context.WithValue(ctx, ctxKeySession, sess)
}

// FromContext returns the session stored by the Session middleware
func FromContext(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(ctxKeySession).(*session.Session)
	return sess
}

// RequireLogin redirects unauthenticated sessions to the login page.
// With enabled false it is a no-op.
func RequireLogin(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := FromContext(r.Context())
			if sess == nil || !sess.Authenticated() {
				http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter counts attempts per key in fixed minute and hour windows
type RateLimiter struct {
	mu       sync.Mutex
	counters map[string]*rateLimitCounter
	now      func() time.Time
}

type rateLimitCounter struct {
	minuteCount int
	hourCount   int
	minuteReset time.Time
	hourReset   time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		counters: make(map[string]*rateLimitCounter),
		now:      time.Now,
	}
}

// Allow checks if an attempt is allowed and increments counters
func (rl *RateLimiter) Allow(key string, limitMinute, limitHour int) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	counter, exists := rl.counters[key]
	if !exists {
		counter = &rateLimitCounter{
			minuteReset: now.Add(time.Minute),
			hourReset:   now.Add(time.Hour),
		}
		rl.counters[key] = counter
	}

	if now.After(counter.minuteReset) {
		counter.minuteCount = 0
		counter.minuteReset = now.Add(time.Minute)
	}
	if now.After(counter.hourReset) {
		counter.hourCount = 0
		counter.hourReset = now.Add(time.Hour)
	}

	if limitMinute > 0 && counter.minuteCount >= limitMinute {
		return false
	}
	if limitHour > 0 && counter.hourCount >= limitHour {
		return false
	}

	counter.minuteCount++
	counter.hourCount++
	return true
}

// Run removes expired counters every interval until ctx is done
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, counter := range rl.counters {
		if now.After(counter.minuteReset) && now.After(counter.hourReset) {
			delete(rl.counters, key)
		}
	}
}

// Throttle rejects requests with 429 once the client IP exceeds the limits
func Throttle(rl *RateLimiter, limitMinute, limitHour int, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !rl.Allow(ip, limitMinute, limitHour) {
				logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
