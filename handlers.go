package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Meschack/lyriks/circuitbreaker"
	"github.com/Meschack/lyriks/logcolors"
	"github.com/Meschack/lyriks/middleware"
	"github.com/Meschack/lyriks/reporting"
	"github.com/Meschack/lyriks/services/imageproxy"
	"github.com/Meschack/lyriks/services/lyrics"
	"github.com/Meschack/lyriks/services/search"
	"github.com/Meschack/lyriks/stats"

	log "github.com/sirupsen/logrus"
)

const healthPingTimeout = 2 * time.Second

func (s *server) rootHandler(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).JSON(RootResponse{
		Name:    s.cfg.App.Name,
		Version: version,
		Docs:    "https://github.com/Meschack/lyriks",
	})
}

// getHealthStatus stays "ok" when the cache is down since the cache is
// optional; an open circuit marks the service degraded.
func (s *server) getHealthStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()

	health := HealthResponse{
		Status:         "ok",
		Service:        s.cfg.App.Name,
		Cache:          "ok",
		CircuitBreaker: s.breaker.State().String(),
	}
	if err := s.gateway.Ping(ctx); err != nil {
		log.WithError(err).Warnf("%s Cache ping failed", logcolors.LogCacheFault)
		health.Cache = "unavailable"
	}
	if s.breaker.State() == circuitbreaker.StateOpen {
		health.Status = "degraded"
	}

	Respond(w, r).JSON(health)
}

func (s *server) getLyrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := lyrics.Request{
		Track:   q.Get("track"),
		Artist:  q.Get("artist"),
		Album:   q.Get("album"),
		TrackID: q.Get("track_id"),
	}
	resp := Respond(w, r).SetProvider(s.lyrics.ProviderName())

	if req.Track == "" || req.Artist == "" {
		resp.Detail(http.StatusUnprocessableEntity, "Query parameters 'track' and 'artist' are required")
		return
	}
	if d := q.Get("duration"); d != "" {
		duration, err := strconv.ParseFloat(d, 64)
		if err != nil {
			resp.Detail(http.StatusUnprocessableEntity, "Query parameter 'duration' must be a number")
			return
		}
		req.Duration = &duration
	}

	// Cached tier: answer from cache or refuse
	if middleware.CacheOnly(r.Context()) {
		cached, ok := s.lyrics.Lookup(r.Context(), req)
		if !ok {
			log.Warnf("%s Cache-only mode but no cache found for %s - %s", logcolors.LogCacheLyrics, req.Artist, req.Track)
			rejectCacheOnly(w, resp.SetCacheStatus("MISS"), cacheOnlyMissDetail)
			return
		}
		resp.SetCacheStatus(lyricsCacheStatus(cached)).JSON(cached)
		return
	}

	result, err := s.lyrics.Retrieve(r.Context(), req)
	if err != nil {
		var upstream *lyrics.UpstreamError
		if errors.As(err, &upstream) {
			reporting.CaptureError(r.Context(), err, map[string]string{"provider": upstream.Provider, "endpoint": "lyrics"})
		}
		resp.SetCacheStatus("MISS").Detail(http.StatusBadGateway, "Lyrics API error: "+err.Error())
		return
	}

	resp.SetCacheStatus(lyricsCacheStatus(result)).JSON(result)
}

const (
	cacheOnlyRetryAfter = "60"
	cacheOnlyMissDetail = "Rate limit exceeded. This request requires cached data, but no cache is available for this query."
)

// rejectCacheOnly answers a cached-tier request that would need an upstream call.
func rejectCacheOnly(w http.ResponseWriter, resp *APIResponse, detail string) {
	stats.Get().RecordRateLimit("exceeded")
	w.Header().Set("Retry-After", cacheOnlyRetryAfter)
	resp.Detail(http.StatusTooManyRequests, detail)
}

func lyricsCacheStatus(r *lyrics.Response) string {
	switch {
	case !r.Cached:
		return "MISS"
	case r.NotFound():
		return "NEGATIVE_HIT"
	default:
		return "HIT"
	}
}

func (s *server) searchTracks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	resp := Respond(w, r).SetProvider(s.search.ProviderName())

	limit := search.DefaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			resp.Detail(http.StatusUnprocessableEntity, "Query parameter 'limit' must be an integer")
			return
		}
		limit = n
	}
	if err := search.ValidateParams(query, limit); err != nil {
		resp.Detail(http.StatusUnprocessableEntity, err.Error())
		return
	}

	if middleware.CacheOnly(r.Context()) {
		cached, ok := s.search.Lookup(r.Context(), query, limit)
		if !ok {
			log.Warnf("%s Cache-only mode but no cached results for %q", logcolors.LogCacheSearch, query)
			rejectCacheOnly(w, resp.SetCacheStatus("MISS"), cacheOnlyMissDetail)
			return
		}
		resp.SetCacheStatus("HIT").JSON(cached)
		return
	}

	result, cached, err := s.search.Search(r.Context(), query, limit)
	if err != nil {
		name := s.search.ProviderName()
		var upstream *search.UpstreamError
		if errors.As(err, &upstream) {
			name = upstream.DisplayName()
		}
		reporting.CaptureError(r.Context(), err, map[string]string{"provider": s.search.ProviderName(), "endpoint": "search"})
		resp.Detail(http.StatusBadGateway, name+" API error: "+err.Error())
		return
	}

	status := "MISS"
	if cached {
		status = "HIT"
	}
	resp.SetCacheStatus(status).JSON(result)
}

const imageCacheOnlyDetail = "Rate limit exceeded. Image requests are not served from cache."

// fetchImage writes the error response itself and returns nil on failure.
func (s *server) fetchImage(w http.ResponseWriter, r *http.Request) *imageproxy.Image {
	if middleware.CacheOnly(r.Context()) {
		rejectCacheOnly(w, Respond(w, r), imageCacheOnlyDetail)
		return nil
	}

	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		Respond(w, r).Detail(http.StatusUnprocessableEntity, "Query parameter 'url' is required")
		return nil
	}

	img, err := s.images.Fetch(r.Context(), rawURL)
	if errors.Is(err, imageproxy.ErrInvalidURL) {
		Respond(w, r).Detail(http.StatusUnprocessableEntity, err.Error())
		return nil
	}
	if err != nil {
		log.WithError(err).Warnf("%s Failed to fetch %s", logcolors.LogImage, rawURL)
		reporting.CaptureError(r.Context(), err, map[string]string{"endpoint": "image"})
		Respond(w, r).Detail(http.StatusBadGateway, "Failed to fetch image: "+err.Error())
		return nil
	}
	return img
}

func (s *server) proxyImage(w http.ResponseWriter, r *http.Request) {
	img := s.fetchImage(w, r)
	if img == nil {
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Write(img.Data)
}

func (s *server) proxyImageBase64(w http.ResponseWriter, r *http.Request) {
	img := s.fetchImage(w, r)
	if img == nil {
		return
	}
	Respond(w, r).JSON(DataURIResponse{DataURI: img.DataURI()})
}

func (s *server) validateImage(w http.ResponseWriter, r *http.Request) {
	if middleware.CacheOnly(r.Context()) {
		rejectCacheOnly(w, Respond(w, r), imageCacheOnlyDetail)
		return
	}

	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		Respond(w, r).Detail(http.StatusUnprocessableEntity, "Query parameter 'url' is required")
		return
	}
	Respond(w, r).JSON(s.images.Validate(r.Context(), rawURL))
}
