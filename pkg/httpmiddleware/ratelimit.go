package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the default number of requests per client per window.
	Max int
	// Window is the duration of each sliding window.
	Window time.Duration
	// Routes overrides Max for requests matching "METHOD /path" exactly. Each
	// route is counted separately from the default budget.
	Routes map[string]int
	// KeyFunc extracts the client key from a request.
	// If nil, the client IP address is used.
	KeyFunc func(*http.Request) string
	// Skip exempts matching requests, such as health probes.
	Skip func(*http.Request) bool
}

// window counts requests in the current and previous fixed windows. The
// sliding count weights the previous window by its overlap.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

func (w *window) advance(now time.Time, size time.Duration) {
	switch elapsed := now.Sub(w.start); {
	case elapsed < size:
		return
	case elapsed < 2*size:
		w.prev = w.curr
	default:
		w.prev = 0
	}
	w.curr = 0
	w.start = now.Truncate(size)
}

func (w *window) count(now time.Time, size time.Duration) float64 {
	overlap := 1 - now.Sub(w.start).Seconds()/size.Seconds()
	return w.prev*max(overlap, 0) + w.curr
}

type bucketKey struct {
	route  string
	client string
}

// decision is the outcome of one admission check.
type decision struct {
	limit     int
	remaining int
	resetAt   time.Time
	allowed   bool
}

type rateLimiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	windows map[bucketKey]*window
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = defaultKeyFunc
	}
	return &rateLimiter{
		cfg:     cfg,
		windows: make(map[bucketKey]*window),
	}
}

// limitFor returns the budget and the bucket name for r. The default budget
// uses the empty route.
func (rl *rateLimiter) limitFor(r *http.Request) (string, int) {
	route := r.Method + " " + r.URL.Path
	if n, ok := rl.cfg.Routes[route]; ok {
		return route, n
	}
	return "", rl.cfg.Max
}

func (rl *rateLimiter) allow(key bucketKey, limit int, now time.Time) decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok {
		w = &window{start: now.Truncate(rl.cfg.Window)}
		rl.windows[key] = w
	}
	w.advance(now, rl.cfg.Window)

	d := decision{limit: limit, resetAt: w.start.Add(rl.cfg.Window)}
	used := w.count(now, rl.cfg.Window)
	if used >= float64(limit) {
		return d
	}
	w.curr++
	d.allowed = true
	d.remaining = max(int(float64(limit)-used-1), 0)
	return d
}

// cleanup drops windows with no requests in the last two windows.
func (rl *rateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, w := range rl.windows {
		if now.Sub(w.start) >= 2*rl.cfg.Window {
			delete(rl.windows, key)
		}
	}
}

func (rl *rateLimiter) startCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(2 * rl.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.cleanup(now)
			}
		}
	}()
}

// RateLimit returns a middleware that enforces a per-client sliding window
// limit. Rejected requests get 429 with a JSON error body. Every checked
// response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset.
//
// Stale entries are never evicted; long-running servers should use
// RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return rateLimitMiddleware(newRateLimiter(cfg))
}

// RateLimitWithCleanup is like RateLimit but also evicts stale entries every
// two windows until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	rl.startCleanup(ctx)
	return rateLimitMiddleware(rl)
}

func rateLimitMiddleware(rl *rateLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.cfg.Skip != nil && rl.cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			route, limit := rl.limitFor(r)
			d := rl.allow(bucketKey{route: route, client: rl.cfg.KeyFunc(r)}, limit, now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.resetAt.Unix(), 10))

			if !d.allowed {
				retryAfter := max(d.resetAt.Sub(now), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SkipPaths exempts requests whose path is one of paths.
func SkipPaths(paths ...string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.URL.Path]
		return ok
	}
}

// defaultKeyFunc returns the client IP: the first X-Forwarded-For entry, then
// X-Real-IP, then the host of RemoteAddr.
func defaultKeyFunc(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
