package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Meschack/lyriks/cache"
	"github.com/Meschack/lyriks/circuitbreaker"
	"github.com/Meschack/lyriks/config"
	"github.com/Meschack/lyriks/logcolors"
	"github.com/Meschack/lyriks/middleware"
	"github.com/Meschack/lyriks/reporting"
	"github.com/Meschack/lyriks/services/imageproxy"
	"github.com/Meschack/lyriks/services/lyrics"
	"github.com/Meschack/lyriks/services/providers"
	"github.com/Meschack/lyriks/services/providers/lrclib"
	"github.com/Meschack/lyriks/services/search"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// server holds everything the handlers need. main builds exactly one.
type server struct {
	cfg     config.Config
	store   cache.Store
	gateway *cache.Gateway
	lyrics  *lyrics.Service
	search  *search.Service
	images  *imageproxy.Proxy
	breaker *circuitbreaker.CircuitBreaker
	limiter *middleware.IPRateLimiter
}

func setupLogging(cfg config.Config) {
	log.SetOutput(os.Stdout)

	if strings.EqualFold(cfg.App.LogFormat, "text") {
		log.SetFormatter(&nested.Formatter{
			HideKeys:        true,
			TimestampFormat: time.RFC3339,
			FieldsOrder:     []string{"method", "path", "status"},
		})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}

	level, err := log.ParseLevel(cfg.App.LogLevel)
	if err != nil {
		log.Warnf("%s Unknown LOG_LEVEL %q, using info", logcolors.LogConfig, cfg.App.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// openStore builds the configured cache backend.
func openStore(cfg config.Config) (cache.Store, error) {
	switch cfg.Configuration.CacheBackend {
	case "redis":
		store, err := cache.NewRedisStore(cfg.Configuration.RedisURL)
		if err != nil {
			return nil, err
		}
		log.Infof("%s Using redis cache", logcolors.LogCacheInit)
		return store, nil
	case "bolt", "":
		store, err := cache.NewBoltStore(cfg.Configuration.CacheDBPath, cfg.Configuration.CacheBackupPath, cfg.FeatureFlags.CacheCompression)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown CACHE_BACKEND %q (want bolt or redis)", cfg.Configuration.CacheBackend)
	}
}

func newBreaker(cfg config.Config, name string) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.New(circuitbreaker.Config{
		Name:          name,
		Threshold:     cfg.Configuration.CircuitBreakerThreshold,
		Cooldown:      cfg.CircuitBreakerCooldown(),
		OnStateChange: reporting.CircuitBreakerHook,
	})
}

func newSearchProvider(cfg config.Config) (search.Provider, error) {
	switch cfg.Configuration.SearchProvider {
	case search.SpotifyName:
		if cfg.Configuration.SpotifyClientID == "" || cfg.Configuration.SpotifyClientSecret == "" {
			log.Warnf("%s Spotify credentials not configured, searches will fail", logcolors.LogConfig)
		}
		return search.NewSpotify(cfg.Configuration.SpotifyClientID, cfg.Configuration.SpotifyClientSecret,
			cfg.Configuration.SpotifyMarket, search.WithSpotifyTimeout(cfg.UpstreamTimeout())), nil
	case search.GeniusName, "":
		if cfg.Configuration.GeniusAccessToken == "" {
			log.Warnf("%s GENIUS_ACCESS_TOKEN not configured, searches will fail", logcolors.LogConfig)
		}
		return search.NewGenius(cfg.Configuration.GeniusBaseURL, cfg.Configuration.GeniusAccessToken, cfg.UpstreamTimeout()), nil
	default:
		return nil, fmt.Errorf("unknown SEARCH_PROVIDER %q (want genius or spotify)", cfg.Configuration.SearchProvider)
	}
}

// newServer wires services on top of store.
func newServer(cfg config.Config, store cache.Store) (*server, error) {
	gw := cache.NewGateway(store, cfg.Configuration.CacheNamespace)

	breaker := newBreaker(cfg, lrclib.ProviderName)
	registry := providers.NewRegistry(
		lrclib.New(cfg.Configuration.LrclibBaseURL,
			lrclib.WithTimeout(cfg.UpstreamTimeout()),
			lrclib.WithCircuitBreaker(breaker)),
	)
	provider, err := registry.Get(cfg.Configuration.LyricsProvider)
	if err != nil {
		return nil, fmt.Errorf("%w (available: %s)", err, strings.Join(registry.List(), ", "))
	}

	searchProvider, err := newSearchProvider(cfg)
	if err != nil {
		return nil, err
	}

	log.Infof("%s Lyrics provider: %s, search provider: %s", logcolors.LogConfig, provider.Name(), searchProvider.Name())

	return &server{
		cfg:     cfg,
		store:   store,
		gateway: gw,
		lyrics:  lyrics.NewService(gw, provider, cfg.LyricsCacheTTL()),
		search:  search.NewService(gw, searchProvider, cfg.SearchCacheTTL()),
		images:  imageproxy.New(cfg.UpstreamTimeout(), cfg.Configuration.ImageMaxBytes),
		breaker: breaker,
		limiter: middleware.NewIPRateLimiter(
			rate.Limit(cfg.Configuration.RateLimitPerSecond), cfg.Configuration.RateLimitBurstLimit,
			rate.Limit(cfg.Configuration.CachedRateLimitPerSecond), cfg.Configuration.CachedRateLimitBurstLimit,
		),
	}, nil
}

// handler builds the middleware chain: logging, CORS, error reporting, rate
// limiting, then the router.
func (s *server) handler() http.Handler {
	router := mux.NewRouter()
	s.setupRoutes(router)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOriginsList(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodHead, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	var h http.Handler = router
	h = middleware.RateLimit(s.limiter)(h)
	h = reporting.Middleware(h)
	h = c.Handler(h)
	return middleware.LoggingMiddleware(h)
}
