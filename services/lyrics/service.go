package lyrics

import (
	"context"
	"math"
	"time"

	"github.com/Meschack/lyriks/cache"
	"github.com/Meschack/lyriks/logcolors"
	"github.com/Meschack/lyriks/services/providers"
	"github.com/Meschack/lyriks/stats"

	log "github.com/sirupsen/logrus"
)

// DefaultTTL applies to found and not-found results alike.
const DefaultTTL = 24 * time.Hour

const notFoundMessage = "Lyrics not found"

// UpstreamError is the only error Retrieve returns. It is never cached.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string {
	return e.Err.Error()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Service composes the cache, the upstream provider and the normalizer.
type Service struct {
	cache    *cache.Gateway
	provider providers.Provider
	ttl      time.Duration
}

// NewService wires a lyrics service. A non-positive ttl selects DefaultTTL.
func NewService(gw *cache.Gateway, provider providers.Provider, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{cache: gw, provider: provider, ttl: ttl}
}

// ProviderName returns the upstream provider's name.
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// Retrieve returns cached lyrics for req or fetches, normalizes and caches
// them. Not-found results are cached as well.
func (s *Service) Retrieve(ctx context.Context, req Request) (*Response, error) {
	key := CacheKey(req)

	resp, status := s.lookup(ctx, key)
	if status == cache.Hit {
		return resp, nil
	}
	if status == cache.Miss {
		stats.Get().RecordCacheMiss()
	}

	raw, err := s.provider.FetchLyrics(ctx, toQuery(req))
	if err != nil {
		stats.Get().RecordUpstreamError()
		log.WithError(err).Warnf("%s Upstream failure for %s", logcolors.LogLyrics, key)
		return nil, &UpstreamError{Provider: s.provider.Name(), Err: err}
	}

	resp = &Response{
		TrackID:    req.TrackID,
		TrackName:  req.Track,
		ArtistName: req.Artist,
	}
	if raw != nil {
		resp.Lyrics = Normalize(raw)
		log.Infof("%s Caching lyrics for %s (%d lines, synced: %v)", logcolors.LogCacheLyrics, key, len(resp.Lyrics.Lines), resp.Lyrics.Synced)
	} else {
		msg := notFoundMessage
		resp.Error = &msg
		log.Infof("%s Caching 'not found' for %s", logcolors.LogCacheNegative, key)
	}

	s.cache.Set(ctx, key, resp, s.ttl)
	return resp, nil
}

// Lookup answers from cache only. It never contacts the upstream provider.
func (s *Service) Lookup(ctx context.Context, req Request) (*Response, bool) {
	resp, status := s.lookup(ctx, CacheKey(req))
	return resp, status == cache.Hit
}

// Invalidate drops the cached entry for req.
func (s *Service) Invalidate(ctx context.Context, req Request) string {
	key := CacheKey(req)
	s.cache.Delete(ctx, key)
	log.Infof("%s Invalidated %s", logcolors.LogCacheLyrics, key)
	return key
}

func (s *Service) lookup(ctx context.Context, key string) (*Response, cache.Status) {
	var cached Response
	status := s.cache.Get(ctx, key, &cached)
	if status != cache.Hit {
		return nil, status
	}

	cached.Cached = true
	if cached.NotFound() {
		stats.Get().RecordNegativeCacheHit()
		log.Debugf("%s Serving cached 'not found' for %s", logcolors.LogCacheNegative, key)
	} else {
		stats.Get().RecordCacheHit()
		log.Debugf("%s Serving cached lyrics for %s", logcolors.LogCacheLyrics, key)
	}
	return &cached, cache.Hit
}

// toQuery truncates the duration to whole seconds. Non-positive, NaN and
// infinite durations are treated as absent.
func toQuery(req Request) providers.Query {
	q := providers.Query{Track: req.Track, Artist: req.Artist, Album: req.Album}
	if req.Duration != nil {
		d := *req.Duration
		if !math.IsNaN(d) && !math.IsInf(d, 0) && d >= 1 && d < math.MaxInt32 {
			q.DurationSeconds = int(d)
		}
	}
	return q
}
