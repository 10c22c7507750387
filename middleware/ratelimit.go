package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Meschack/lyriks/logcolors"
	"github.com/Meschack/lyriks/stats"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type contextKey string

const rateLimitTierKey contextKey = "rateLimitTier"

const (
	TierNormal = "normal"
	TierCached = "cached"
)

// LimiterPair holds both normal and cached tier limiters for an IP
type LimiterPair struct {
	Normal *rate.Limiter
	Cached *rate.Limiter

	lastSeen time.Time
}

// GetNormalTokens returns the number of tokens available in the normal tier
func (lp *LimiterPair) GetNormalTokens() int {
	return int(math.Floor(lp.Normal.Tokens()))
}

// GetCachedTokens returns the number of tokens available in the cached tier
func (lp *LimiterPair) GetCachedTokens() int {
	return int(math.Floor(lp.Cached.Tokens()))
}

// IPRateLimiter manages two-tier rate limiting per IP. The normal tier serves
// any request; once it is drained the cached tier admits requests that can be
// answered from cache only.
type IPRateLimiter struct {
	ips         map[string]*LimiterPair
	mu          sync.Mutex
	normalRate  rate.Limit
	normalBurst int
	cachedRate  rate.Limit
	cachedBurst int
}

// NewIPRateLimiter creates a new two-tier rate limiter
func NewIPRateLimiter(normalRate rate.Limit, normalBurst int, cachedRate rate.Limit, cachedBurst int) *IPRateLimiter {
	return &IPRateLimiter{
		ips:         make(map[string]*LimiterPair),
		normalRate:  normalRate,
		normalBurst: normalBurst,
		cachedRate:  cachedRate,
		cachedBurst: cachedBurst,
	}
}

// GetNormalLimit returns the normal tier burst limit
func (i *IPRateLimiter) GetNormalLimit() int {
	return i.normalBurst
}

// GetCachedLimit returns the cached tier burst limit
func (i *IPRateLimiter) GetCachedLimit() int {
	return i.cachedBurst
}

func (i *IPRateLimiter) addLocked(ip string) *LimiterPair {
	pair := &LimiterPair{
		Normal:   rate.NewLimiter(i.normalRate, i.normalBurst),
		Cached:   rate.NewLimiter(i.cachedRate, i.cachedBurst),
		lastSeen: time.Now(),
	}
	i.ips[ip] = pair
	return pair
}

func (i *IPRateLimiter) GetLimiter(ip string) *LimiterPair {
	i.mu.Lock()
	defer i.mu.Unlock()

	pair, exists := i.ips[ip]
	if !exists {
		return i.addLocked(ip)
	}
	pair.lastSeen = time.Now()
	return pair
}

// Prune drops limiters idle for longer than maxIdle and returns how many were removed.
func (i *IPRateLimiter) Prune(maxIdle time.Duration) int {
	i.mu.Lock()
	defer i.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	for ip, pair := range i.ips {
		if pair.lastSeen.Before(cutoff) {
			delete(i.ips, ip)
			removed++
		}
	}
	return removed
}

// StartPruner prunes idle limiters every interval until ctx is done.
func (i *IPRateLimiter) StartPruner(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := i.Prune(interval); n > 0 {
					log.Debugf("%s Pruned %d idle limiters", logcolors.LogRateLimit, n)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimit applies the two tiers. Requests admitted by the cached tier carry
// TierCached in their context; handlers use CacheOnly to honor it.
func RateLimit(limiter *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			limiters := limiter.GetLimiter(ip)

			if limiters.Normal.Allow() {
				stats.Get().RecordRateLimit(TierNormal)
				setRateLimitHeaders(w, limiter.GetNormalLimit(), limiters.GetNormalTokens(), TierNormal)
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), rateLimitTierKey, TierNormal)))
				return
			}

			if limiters.Cached.Allow() {
				stats.Get().RecordRateLimit(TierCached)
				setRateLimitHeaders(w, limiter.GetCachedLimit(), limiters.GetCachedTokens(), TierCached)
				log.Debugf("%s IP %s exceeded normal tier, using cached tier", logcolors.LogRateLimit, ip)
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), rateLimitTierKey, TierCached)))
				return
			}

			stats.Get().RecordRateLimit("exceeded")
			log.Warnf("%s IP %s exceeded both rate limit tiers", logcolors.LogRateLimit, ip)
			setRateLimitHeaders(w, limiter.GetCachedLimit(), 0, "exceeded")
			w.Header().Set("Retry-After", "1")
			writeJSONError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, limit, remaining int, tier string) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Type", tier)
}

// Tier returns the rate limit tier that admitted the request, or "" when the
// limiter did not run.
func Tier(ctx context.Context) string {
	tier, _ := ctx.Value(rateLimitTierKey).(string)
	return tier
}

// CacheOnly reports whether the request may only be answered from cache.
func CacheOnly(ctx context.Context) bool {
	return Tier(ctx) == TierCached
}

// clientIP strips the port from RemoteAddr so every connection from a host
// shares one limiter.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
