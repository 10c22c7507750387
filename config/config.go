package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	App struct {
		Name        string `envconfig:"APP_NAME" default:"Lyriks"`
		Env         string `envconfig:"APP_ENV" default:"development"`
		Port        string `envconfig:"PORT" default:"8000"`
		CORSOrigins string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`
		LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
		LogFormat   string `envconfig:"LOG_FORMAT" default:"json"` // json or text
		SentryDSN   string `envconfig:"SENTRY_DSN" default:""`
	}

	Configuration struct {
		RateLimitPerSecond        int `envconfig:"RATE_LIMIT_PER_SECOND" default:"1"`
		RateLimitBurstLimit       int `envconfig:"RATE_LIMIT_BURST_LIMIT" default:"60"`
		CachedRateLimitPerSecond  int `envconfig:"CACHED_RATE_LIMIT_PER_SECOND" default:"5"`
		CachedRateLimitBurstLimit int `envconfig:"CACHED_RATE_LIMIT_BURST_LIMIT" default:"20"`

		CacheBackend                string `envconfig:"CACHE_BACKEND" default:"bolt"` // bolt or redis
		RedisURL                    string `envconfig:"REDIS_URL" default:"redis://localhost:6379"`
		CacheDBPath                 string `envconfig:"CACHE_DB_PATH" default:"./data/cache.db"`
		CacheBackupPath             string `envconfig:"CACHE_BACKUP_PATH" default:"./data/backups"`
		CacheNamespace              string `envconfig:"CACHE_NAMESPACE" default:"lyriks"`
		CacheSweepIntervalInSeconds int    `envconfig:"CACHE_SWEEP_INTERVAL_IN_SECONDS" default:"3600"`
		LyricsCacheTTLInSeconds     int    `envconfig:"LYRICS_CACHE_TTL_IN_SECONDS" default:"86400"`
		SearchCacheTTLInSeconds     int    `envconfig:"SEARCH_CACHE_TTL_IN_SECONDS" default:"3600"`
		CacheAccessToken            string `envconfig:"CACHE_ACCESS_TOKEN" default:""`

		LyricsProvider             string `envconfig:"LYRICS_PROVIDER" default:"lrclib"`
		LrclibBaseURL              string `envconfig:"LRCLIB_BASE_URL" default:"https://lrclib.net/api"`
		UpstreamTimeoutInSeconds   int    `envconfig:"UPSTREAM_TIMEOUT_IN_SECONDS" default:"10"`
		CircuitBreakerThreshold    int    `envconfig:"CIRCUIT_BREAKER_THRESHOLD" default:"5"`     // Consecutive failures before circuit opens
		CircuitBreakerCooldownSecs int    `envconfig:"CIRCUIT_BREAKER_COOLDOWN_SECS" default:"60"` // Seconds to wait before retrying

		SearchProvider      string `envconfig:"SEARCH_PROVIDER" default:"genius"` // genius or spotify
		GeniusAccessToken   string `envconfig:"GENIUS_ACCESS_TOKEN" default:""`
		GeniusBaseURL       string `envconfig:"GENIUS_BASE_URL" default:"https://api.genius.com"`
		SpotifyClientID     string `envconfig:"SPOTIFY_CLIENT_ID" default:""`
		SpotifyClientSecret string `envconfig:"SPOTIFY_CLIENT_SECRET" default:""`
		SpotifyMarket       string `envconfig:"SPOTIFY_MARKET" default:"US"`

		ImageMaxBytes int64 `envconfig:"IMAGE_MAX_BYTES" default:"10485760"`
	}

	FeatureFlags struct {
		CacheCompression bool `envconfig:"FF_CACHE_COMPRESSION" default:"true"`
	}
}

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Debugf("No .env file loaded: %v", err)
	}

	cfg := Config{}
	err = envconfig.Process("", &cfg)
	return cfg, err
}

// CORSOriginsList splits CORS_ORIGINS on commas.
func (c Config) CORSOriginsList() []string {
	var origins []string
	for _, origin := range strings.Split(c.App.CORSOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func (c Config) LyricsCacheTTL() time.Duration {
	return time.Duration(c.Configuration.LyricsCacheTTLInSeconds) * time.Second
}

func (c Config) SearchCacheTTL() time.Duration {
	return time.Duration(c.Configuration.SearchCacheTTLInSeconds) * time.Second
}

func (c Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Configuration.UpstreamTimeoutInSeconds) * time.Second
}

func (c Config) CacheSweepInterval() time.Duration {
	return time.Duration(c.Configuration.CacheSweepIntervalInSeconds) * time.Second
}

func (c Config) CircuitBreakerCooldown() time.Duration {
	return time.Duration(c.Configuration.CircuitBreakerCooldownSecs) * time.Second
}
