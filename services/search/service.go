package search

import (
	"context"
	"strconv"
	"time"

	"github.com/Meschack/lyriks/cache"
	"github.com/Meschack/lyriks/logcolors"
	"github.com/Meschack/lyriks/stats"

	log "github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const DefaultTTL = time.Hour

// UpstreamError wraps a provider failure. It is never cached.
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

// DisplayName is the provider name as shown to clients, e.g. "Genius".
func (e *UpstreamError) DisplayName() string {
	return cases.Title(language.English).String(e.Provider)
}

// Service answers track searches from cache or from the configured provider.
type Service struct {
	cache    *cache.Gateway
	provider Provider
	ttl      time.Duration
}

func NewService(gw *cache.Gateway, provider Provider, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{cache: gw, provider: provider, ttl: ttl}
}

func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// CacheKey is search:<provider>:<case-folded query>:<limit>.
func (s *Service) CacheKey(query string, limit int) string {
	return "search:" + s.provider.Name() + ":" + cases.Fold().String(query) + ":" + strconv.Itoa(limit)
}

// Lookup answers from cache only and never calls the provider.
func (s *Service) Lookup(ctx context.Context, query string, limit int) (*Response, bool) {
	key := s.CacheKey(query, limit)

	var cached Response
	if s.cache.Get(ctx, key, &cached) != cache.Hit {
		stats.Get().RecordSearchCache(false)
		return nil, false
	}
	stats.Get().RecordSearchCache(true)
	log.Debugf("%s Serving cached results for %s", logcolors.LogCacheSearch, key)
	return &cached, true
}

// Search returns the provider's results for query, cached for the service TTL.
// The bool reports whether the response came from cache.
func (s *Service) Search(ctx context.Context, query string, limit int) (*Response, bool, error) {
	if cached, ok := s.Lookup(ctx, query, limit); ok {
		return cached, true, nil
	}
	key := s.CacheKey(query, limit)

	tracks, err := s.provider.SearchTracks(ctx, query, limit)
	if err != nil {
		stats.Get().RecordUpstreamError()
		log.WithError(err).Warnf("%s %s search failed for %q", logcolors.LogSearch, s.provider.Name(), query)
		return nil, false, &UpstreamError{Provider: s.provider.Name(), Err: err}
	}
	if tracks == nil {
		tracks = []Track{}
	}

	resp := &Response{Query: query, Results: tracks, Total: len(tracks)}
	s.cache.Set(ctx, key, resp, s.ttl)
	log.Infof("%s Cached %d results for %s", logcolors.LogCacheSearch, resp.Total, key)
	return resp, false, nil
}
