package httpmiddleware

import (
	"context"
	"hash/maphash"
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
	// Max is the maximum number of requests allowed per window.
	Max int
	// Window is the duration of each sliding window.
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request.
	// If nil, the client IP address is used.
	KeyFunc func(*http.Request) string
	// TrustProxy makes the default key honour X-Forwarded-For and X-Real-IP.
	// Enable only behind a proxy that overwrites those headers.
	TrustProxy bool
}

// window counts requests of one key in two adjacent fixed windows. The
// previous count is weighted by its overlap with the sliding window.
type window struct {
	prevCount float64
	currCount float64
	currStart time.Time
}

// advance rotates the window once size has elapsed since currStart.
func (w *window) advance(now time.Time, size time.Duration) {
	elapsed := now.Sub(w.currStart)
	switch {
	case elapsed < size:
		return
	case elapsed < 2*size:
		w.prevCount = w.currCount
	default:
		w.prevCount = 0
	}
	w.currCount = 0
	w.currStart = now.Truncate(size)
}

// estimate is the request count of the sliding window ending at now.
func (w *window) estimate(now time.Time, size time.Duration) float64 {
	overlap := 1 - now.Sub(w.currStart).Seconds()/size.Seconds()
	return w.prevCount*math.Max(overlap, 0) + w.currCount
}

const rateLimitShards = 16

type rateLimitShard struct {
	mu      sync.Mutex
	windows map[string]*window
}

// rateLimiter spreads keys over shards so unrelated clients do not contend
// on one mutex.
type rateLimiter struct {
	cfg    RateLimitConfig
	seed   maphash.Seed
	shards [rateLimitShards]rateLimitShard
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = remoteIP
		if cfg.TrustProxy {
			cfg.KeyFunc = forwardedIP
		}
	}
	rl := &rateLimiter{cfg: cfg, seed: maphash.MakeSeed()}
	for i := range rl.shards {
		rl.shards[i].windows = make(map[string]*window)
	}
	return rl
}

func (rl *rateLimiter) shard(key string) *rateLimitShard {
	return &rl.shards[maphash.String(rl.seed, key)%rateLimitShards]
}

// allow records a request for key unless the limit is reached. It returns
// the requests left in the window and when the current window ends.
func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, resetAt time.Time, allowed bool) {
	s := rl.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = &window{currStart: now}
		s.windows[key] = w
	}
	w.advance(now, rl.cfg.Window)

	resetAt = w.currStart.Add(rl.cfg.Window)
	count := w.estimate(now, rl.cfg.Window)
	if count >= float64(rl.cfg.Max) {
		return 0, resetAt, false
	}
	w.currCount++
	return max(int(float64(rl.cfg.Max)-count-1), 0), resetAt, true
}

// cleanup drops keys idle for two windows.
func (rl *rateLimiter) cleanup(now time.Time) {
	for i := range rl.shards {
		s := &rl.shards[i]
		s.mu.Lock()
		for key, w := range s.windows {
			if now.Sub(w.currStart) >= 2*rl.cfg.Window {
				delete(s.windows, key)
			}
		}
		s.mu.Unlock()
	}
}

// size returns the number of tracked keys.
func (rl *rateLimiter) size() int {
	n := 0
	for i := range rl.shards {
		s := &rl.shards[i]
		s.mu.Lock()
		n += len(s.windows)
		s.mu.Unlock()
	}
	return n
}

func (rl *rateLimiter) runCleanup(ctx context.Context) {
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
}

// RateLimit returns a middleware that enforces a per-key sliding window
// limit, answering 429 with a JSON error once it is exceeded. Responses carry
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset.
//
// Idle keys are never evicted; long-running servers should use
// RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newRateLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit with a goroutine evicting idle keys
// every two windows until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	go rl.runCleanup(ctx)
	return rl.middleware
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	limit := strconv.Itoa(rl.cfg.Max)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		remaining, resetAt, allowed := rl.allow(rl.cfg.KeyFunc(r), now)

		h := w.Header()
		h.Set("X-RateLimit-Limit", limit)
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			wait := max(resetAt.Sub(now), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// forwardedIP is the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func forwardedIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return remoteIP(r)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
