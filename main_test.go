package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Meschack/lyriks/cache"
	"github.com/Meschack/lyriks/config"

	"github.com/alicebob/miniredis/v2"
)

const testToken = "admin-secret"

const lrclibRecord = `{
	"id": 3396226,
	"trackName": "I Want to Live",
	"artistName": "Borislav Slavov",
	"albumName": "Baldur's Gate 3",
	"duration": 233.0,
	"instrumental": false,
	"plainLyrics": "I feel your breath\nThe clock won't stop",
	"syncedLyrics": "[00:17.12] I feel your breath\n[00:20.41] The clock won't stop"
}`

type upstreams struct {
	lrclib       *httptest.Server
	genius       *httptest.Server
	lrclibCalls  atomic.Int32
	geniusCalls  atomic.Int32
	lrclibStatus int
	lrclibBody   string
}

func newUpstreams(t *testing.T) *upstreams {
	t.Helper()
	u := &upstreams{lrclibStatus: http.StatusOK, lrclibBody: "[" + lrclibRecord + "]"}

	u.lrclib = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.lrclibCalls.Add(1)
		w.WriteHeader(u.lrclibStatus)
		w.Write([]byte(u.lrclibBody))
	}))
	u.genius = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.geniusCalls.Add(1)
		if r.URL.Query().Get("q") == "explode" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"response":{"hits":[{"type":"song","result":{"id":1,"title":"Song","artist_names":"Artist","song_art_image_url":"https://img/art.jpg"}}]}}`))
	}))
	t.Cleanup(u.lrclib.Close)
	t.Cleanup(u.genius.Close)
	return u
}

func testConfig(u *upstreams) config.Config {
	var cfg config.Config
	cfg.App.Name = "Lyriks"
	cfg.App.CORSOrigins = "http://localhost:3000"
	cfg.Configuration.RateLimitPerSecond = 100
	cfg.Configuration.RateLimitBurstLimit = 100
	cfg.Configuration.CachedRateLimitPerSecond = 100
	cfg.Configuration.CachedRateLimitBurstLimit = 100
	cfg.Configuration.CacheBackend = "bolt"
	cfg.Configuration.CacheNamespace = "lyriks"
	cfg.Configuration.LyricsCacheTTLInSeconds = 86400
	cfg.Configuration.SearchCacheTTLInSeconds = 3600
	cfg.Configuration.CacheAccessToken = testToken
	cfg.Configuration.LyricsProvider = "lrclib"
	cfg.Configuration.LrclibBaseURL = u.lrclib.URL
	cfg.Configuration.UpstreamTimeoutInSeconds = 5
	cfg.Configuration.CircuitBreakerThreshold = 5
	cfg.Configuration.CircuitBreakerCooldownSecs = 60
	cfg.Configuration.SearchProvider = "genius"
	cfg.Configuration.GeniusBaseURL = u.genius.URL
	cfg.Configuration.GeniusAccessToken = "token"
	cfg.Configuration.ImageMaxBytes = 1 << 20
	return cfg
}

// setupTestServer builds a server backed by a temporary bolt store.
func setupTestServer(t *testing.T, u *upstreams, adjust func(*config.Config)) (*server, http.Handler) {
	t.Helper()
	cfg := testConfig(u)
	if adjust != nil {
		adjust(&cfg)
	}

	tmpDir := t.TempDir()
	store, err := cache.NewBoltStore(filepath.Join(tmpDir, "test_cache.db"), filepath.Join(tmpDir, "backups"), false)
	if err != nil {
		t.Fatalf("Failed to create test cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	s, err := newServer(cfg, store)
	if err != nil {
		t.Fatalf("newServer() error = %v", err)
	}
	return s, s.handler()
}

func doRequest(h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "192.0.2.10:41234"
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func adminHeader() http.Header {
	return http.Header{"Authorization": []string{testToken}}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestRootAndHealth(t *testing.T) {
	_, h := setupTestServer(t, newUpstreams(t), nil)

	w := doRequest(h, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body := decode(t, w); body["name"] != "Lyriks" || body["version"] != version {
		t.Errorf("Unexpected root body: %v", body)
	}

	w = doRequest(h, http.MethodGet, "/api/health", nil)
	body := decode(t, w)
	if body["status"] != "ok" || body["cache"] != "ok" || body["circuit_breaker"] != "CLOSED" {
		t.Errorf("Unexpected health body: %v", body)
	}
}

func TestHealth_CacheUnavailableStaysOK(t *testing.T) {
	u := newUpstreams(t)
	mr := miniredis.RunT(t)
	store, err := cache.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	s, err := newServer(testConfig(u), store)
	if err != nil {
		t.Fatalf("newServer() error = %v", err)
	}
	mr.Close()

	body := decode(t, doRequest(s.handler(), http.MethodGet, "/api/health", nil))
	if body["status"] != "ok" || body["cache"] != "unavailable" {
		t.Errorf("Expected ok with unavailable cache, got %v", body)
	}
}

func TestGetLyrics_MissThenHit(t *testing.T) {
	u := newUpstreams(t)
	_, h := setupTestServer(t, u, nil)
	target := "/api/lyrics?track=I+Want+to+Live&artist=Borislav+Slavov"

	w := doRequest(h, http.MethodGet, target, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Cache-Status"); got != "MISS" {
		t.Errorf("Expected MISS, got %q", got)
	}
	if got := w.Header().Get("X-Provider"); got != "lrclib" {
		t.Errorf("Expected X-Provider lrclib, got %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Type"); got != "normal" {
		t.Errorf("Expected normal tier, got %q", got)
	}

	body := decode(t, w)
	if body["cached"] != false || body["error"] != nil || body["track_name"] != "I Want to Live" {
		t.Errorf("Unexpected body: %v", body)
	}
	lyr := body["lyrics"].(map[string]interface{})
	if lyr["synced"] != true || lyr["duration"] != float64(233) {
		t.Errorf("Unexpected lyrics: %v", lyr)
	}
	lines := lyr["lines"].([]interface{})
	first := lines[0].(map[string]interface{})
	ts, _ := first["timestamp"].(float64)
	if len(lines) != 2 || ts < 17.1 || ts > 17.13 || first["index"] != float64(0) {
		t.Errorf("Unexpected lines: %v", lines)
	}

	w = doRequest(h, http.MethodGet, "/api/lyrics?track=i+want+to+live&artist=BORISLAV+SLAVOV", nil)
	if got := w.Header().Get("X-Cache-Status"); got != "HIT" {
		t.Errorf("Expected HIT, got %q", got)
	}
	if body := decode(t, w); body["cached"] != true {
		t.Errorf("Expected cached=true, got %v", body["cached"])
	}
	if u.lrclibCalls.Load() != 1 {
		t.Errorf("Expected 1 upstream call, got %d", u.lrclibCalls.Load())
	}
}

func TestGetLyrics_NegativeCache(t *testing.T) {
	u := newUpstreams(t)
	u.lrclibBody = "[]"
	_, h := setupTestServer(t, u, nil)
	target := "/api/lyrics?track=Nothing&artist=Nobody&track_id=abc123"

	for i, expected := range []string{"MISS", "NEGATIVE_HIT"} {
		w := doRequest(h, http.MethodGet, target, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i, w.Code)
		}
		if got := w.Header().Get("X-Cache-Status"); got != expected {
			t.Errorf("Request %d: expected %s, got %q", i, expected, got)
		}
		body := decode(t, w)
		if body["lyrics"] != nil || body["error"] != "Lyrics not found" || body["track_id"] != "abc123" {
			t.Errorf("Request %d: unexpected body %v", i, body)
		}
	}
	if u.lrclibCalls.Load() != 1 {
		t.Errorf("Expected not-found to be cached, got %d upstream calls", u.lrclibCalls.Load())
	}
}

func TestGetLyrics_Validation(t *testing.T) {
	_, h := setupTestServer(t, newUpstreams(t), nil)

	tests := []struct {
		name   string
		target string
	}{
		{"Missing artist", "/api/lyrics?track=Song"},
		{"Missing track", "/api/lyrics?artist=Artist"},
		{"Empty track", "/api/lyrics?track=&artist=Artist"},
		{"Bad duration", "/api/lyrics?track=Song&artist=Artist&duration=abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(h, http.MethodGet, tt.target, nil)
			if w.Code != http.StatusUnprocessableEntity {
				t.Errorf("Expected 422, got %d", w.Code)
			}
			if body := decode(t, w); body["detail"] == "" {
				t.Error("Expected a detail message")
			}
		})
	}
}

func TestGetLyrics_UpstreamFailure(t *testing.T) {
	u := newUpstreams(t)
	u.lrclibStatus = http.StatusInternalServerError
	_, h := setupTestServer(t, u, nil)

	w := doRequest(h, http.MethodGet, "/api/lyrics?track=Song&artist=Artist", nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", w.Code)
	}
	detail, _ := decode(t, w)["detail"].(string)
	if !strings.HasPrefix(detail, "Lyrics API error: ") {
		t.Errorf("Unexpected detail: %q", detail)
	}

	// Failures are not cached
	u.lrclibStatus = http.StatusOK
	w = doRequest(h, http.MethodGet, "/api/lyrics?track=Song&artist=Artist", nil)
	if w.Code != http.StatusOK || w.Header().Get("X-Cache-Status") != "MISS" {
		t.Errorf("Expected fresh 200 after recovery, got %d %s", w.Code, w.Header().Get("X-Cache-Status"))
	}
}

func TestGetLyrics_CachedTier(t *testing.T) {
	u := newUpstreams(t)
	_, h := setupTestServer(t, u, func(cfg *config.Config) {
		cfg.Configuration.RateLimitPerSecond = 0
		cfg.Configuration.RateLimitBurstLimit = 1
		cfg.Configuration.CachedRateLimitPerSecond = 0
		cfg.Configuration.CachedRateLimitBurstLimit = 2
	})

	// Normal tier fills the cache
	w := doRequest(h, http.MethodGet, "/api/lyrics?track=Song&artist=Artist", nil)
	if w.Code != http.StatusOK || w.Header().Get("X-RateLimit-Type") != "normal" {
		t.Fatalf("Expected normal tier 200, got %d %q", w.Code, w.Header().Get("X-RateLimit-Type"))
	}

	// Cached tier serves the cached entry
	w = doRequest(h, http.MethodGet, "/api/lyrics?track=Song&artist=Artist", nil)
	if w.Code != http.StatusOK || w.Header().Get("X-RateLimit-Type") != "cached" || w.Header().Get("X-Cache-Status") != "HIT" {
		t.Fatalf("Expected cached-tier HIT, got %d %q %q", w.Code, w.Header().Get("X-RateLimit-Type"), w.Header().Get("X-Cache-Status"))
	}

	// Cached tier refuses anything that would reach upstream
	w = doRequest(h, http.MethodGet, "/api/lyrics?track=Other&artist=Artist", nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("Retry-After") == "" {
		t.Errorf("Expected 429 with Retry-After, got %d", w.Code)
	}
	if u.lrclibCalls.Load() != 1 {
		t.Errorf("Expected a single upstream call, got %d", u.lrclibCalls.Load())
	}

	// Both tiers exhausted
	w = doRequest(h, http.MethodGet, "/api/lyrics?track=Song&artist=Artist", nil)
	if w.Code != http.StatusTooManyRequests || w.Header().Get("X-RateLimit-Type") != "exceeded" {
		t.Errorf("Expected exceeded 429, got %d %q", w.Code, w.Header().Get("X-RateLimit-Type"))
	}
}

func TestCachedTier_SearchAndImagesStayOffUpstream(t *testing.T) {
	var imageCalls atomic.Int32
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		imageCalls.Add(1)
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer img.Close()

	u := newUpstreams(t)
	_, h := setupTestServer(t, u, func(cfg *config.Config) {
		cfg.Configuration.RateLimitPerSecond = 0
		cfg.Configuration.RateLimitBurstLimit = 1
		cfg.Configuration.CachedRateLimitPerSecond = 0
		cfg.Configuration.CachedRateLimitBurstLimit = 5
	})

	// Normal tier fills the search cache
	if w := doRequest(h, http.MethodGet, "/api/search?q=Song", nil); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w := doRequest(h, http.MethodGet, "/api/search?q=song", nil)
	if w.Code != http.StatusOK || w.Header().Get("X-RateLimit-Type") != "cached" || w.Header().Get("X-Cache-Status") != "HIT" {
		t.Errorf("Expected cached-tier HIT, got %d %q %q", w.Code, w.Header().Get("X-RateLimit-Type"), w.Header().Get("X-Cache-Status"))
	}

	tests := []struct {
		name   string
		target string
	}{
		{"Uncached search", "/api/search?q=Other"},
		{"Image", "/api/image?url=" + img.URL + "/cover.png"},
		{"Image base64", "/api/image/base64?url=" + img.URL + "/cover.png"},
		{"Image validate", "/api/image/validate?url=" + img.URL + "/cover.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(h, http.MethodGet, tt.target, nil)
			if w.Code != http.StatusTooManyRequests {
				t.Errorf("Expected 429, got %d", w.Code)
			}
			if w.Header().Get("Retry-After") != "60" || w.Header().Get("X-RateLimit-Type") != "cached" {
				t.Errorf("Unexpected headers: %v", w.Header())
			}
		})
	}

	if u.geniusCalls.Load() != 1 {
		t.Errorf("Expected only the normal-tier search upstream, got %d calls", u.geniusCalls.Load())
	}
	if imageCalls.Load() != 0 {
		t.Errorf("Expected no image fetches in the cached tier, got %d", imageCalls.Load())
	}
}

func TestSearch(t *testing.T) {
	u := newUpstreams(t)
	_, h := setupTestServer(t, u, nil)

	w := doRequest(h, http.MethodGet, "/api/search?q=Song&limit=5", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Cache-Status") != "MISS" || w.Header().Get("X-Provider") != "genius" {
		t.Errorf("Unexpected headers: %v", w.Header())
	}
	body := decode(t, w)
	if body["query"] != "Song" || body["total"] != float64(1) {
		t.Errorf("Unexpected body: %v", body)
	}

	w = doRequest(h, http.MethodGet, "/api/search?q=song&limit=5", nil)
	if w.Header().Get("X-Cache-Status") != "HIT" {
		t.Errorf("Expected HIT, got %q", w.Header().Get("X-Cache-Status"))
	}
	if u.geniusCalls.Load() != 1 {
		t.Errorf("Expected 1 upstream call, got %d", u.geniusCalls.Load())
	}
}

func TestSearch_Errors(t *testing.T) {
	_, h := setupTestServer(t, newUpstreams(t), nil)

	tests := []struct {
		name   string
		target string
		status int
		detail string
	}{
		{"Missing query", "/api/search", http.StatusUnprocessableEntity, ""},
		{"Limit not a number", "/api/search?q=a&limit=x", http.StatusUnprocessableEntity, ""},
		{"Limit too high", "/api/search?q=a&limit=51", http.StatusUnprocessableEntity, ""},
		{"Query too long", "/api/search?q=" + strings.Repeat("a", 201), http.StatusUnprocessableEntity, ""},
		{"Upstream failure", "/api/search?q=explode", http.StatusBadGateway, "Genius API error: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(h, http.MethodGet, tt.target, nil)
			if w.Code != tt.status {
				t.Fatalf("Expected %d, got %d", tt.status, w.Code)
			}
			detail, _ := decode(t, w)["detail"].(string)
			if !strings.HasPrefix(detail, tt.detail) {
				t.Errorf("Expected detail starting with %q, got %q", tt.detail, detail)
			}
		})
	}
}

func TestImageEndpoints(t *testing.T) {
	img := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cover.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	}))
	defer img.Close()

	_, h := setupTestServer(t, newUpstreams(t), nil)

	w := doRequest(h, http.MethodGet, "/api/image?url="+img.URL+"/cover.png", nil)
	if w.Code != http.StatusOK || w.Body.String() != "png-bytes" {
		t.Fatalf("Expected passthrough, got %d %q", w.Code, w.Body.String())
	}
	if w.Header().Get("Content-Type") != "image/png" ||
		w.Header().Get("Cache-Control") != "public, max-age=86400" ||
		w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("Unexpected passthrough headers: %v", w.Header())
	}

	w = doRequest(h, http.MethodGet, "/api/image/base64?url="+img.URL+"/cover.png", nil)
	if body := decode(t, w); body["data_uri"] != "data:image/png;base64,cG5nLWJ5dGVz" {
		t.Errorf("Unexpected data URI: %v", body["data_uri"])
	}

	w = doRequest(h, http.MethodGet, "/api/image/validate?url="+img.URL+"/cover.png", nil)
	if body := decode(t, w); body["valid"] != true {
		t.Errorf("Expected valid image, got %v", body)
	}

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"Missing url", "/api/image", http.StatusUnprocessableEntity},
		{"Bad scheme", "/api/image?url=ftp://example.com/a.png", http.StatusUnprocessableEntity},
		{"Upstream 404", "/api/image?url=" + img.URL + "/missing.png", http.StatusBadGateway},
		{"Base64 upstream 404", "/api/image/base64?url=" + img.URL + "/missing.png", http.StatusBadGateway},
		{"Validate missing url", "/api/image/validate", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := doRequest(h, http.MethodGet, tt.target, nil); w.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func TestAdminAuth(t *testing.T) {
	_, h := setupTestServer(t, newUpstreams(t), nil)

	tests := []struct {
		name   string
		header http.Header
		status int
	}{
		{"No token", nil, http.StatusUnauthorized},
		{"Wrong token", http.Header{"Authorization": []string{"nope"}}, http.StatusUnauthorized},
		{"Valid token", adminHeader(), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := doRequest(h, http.MethodGet, "/api/stats", tt.header); w.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func TestStats(t *testing.T) {
	_, h := setupTestServer(t, newUpstreams(t), nil)

	body := decode(t, doRequest(h, http.MethodGet, "/api/stats", adminHeader()))
	for _, section := range []string{"server", "requests", "cache", "cache_storage", "circuit_breaker"} {
		if _, ok := body[section]; !ok {
			t.Errorf("Expected section %q in stats", section)
		}
	}
}

func TestInvalidateLyrics(t *testing.T) {
	u := newUpstreams(t)
	_, h := setupTestServer(t, u, nil)
	target := "/api/lyrics?track=Song&artist=Artist"

	doRequest(h, http.MethodGet, target, nil)

	w := doRequest(h, http.MethodPost, "/api/cache/invalidate?track=Song&artist=Artist", adminHeader())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body := decode(t, w); body["key"] != "lyrics:artist:song" {
		t.Errorf("Unexpected key: %v", body["key"])
	}

	if w := doRequest(h, http.MethodGet, target, nil); w.Header().Get("X-Cache-Status") != "MISS" {
		t.Errorf("Expected MISS after invalidation, got %q", w.Header().Get("X-Cache-Status"))
	}
	if u.lrclibCalls.Load() != 2 {
		t.Errorf("Expected 2 upstream calls, got %d", u.lrclibCalls.Load())
	}

	if w := doRequest(h, http.MethodPost, "/api/cache/invalidate?track=Song", adminHeader()); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 without artist, got %d", w.Code)
	}
	if w := doRequest(h, http.MethodGet, "/api/cache/invalidate?track=Song&artist=Artist", adminHeader()); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got %d", w.Code)
	}
}

func TestClearCacheScope(t *testing.T) {
	u := newUpstreams(t)
	_, h := setupTestServer(t, u, nil)

	doRequest(h, http.MethodGet, "/api/lyrics?track=A&artist=B", nil)
	doRequest(h, http.MethodGet, "/api/lyrics?track=C&artist=D", nil)
	doRequest(h, http.MethodGet, "/api/search?q=Song", nil)

	w := doRequest(h, http.MethodPost, "/api/cache/clear/lyrics", adminHeader())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body := decode(t, w); body["deleted"] != float64(2) || body["scope"] != "lyrics" {
		t.Errorf("Unexpected clear result: %v", body)
	}

	if w := doRequest(h, http.MethodGet, "/api/search?q=Song", nil); w.Header().Get("X-Cache-Status") != "HIT" {
		t.Error("Expected search cache to survive a lyrics clear")
	}
	if w := doRequest(h, http.MethodPost, "/api/cache/clear/everything", adminHeader()); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown scope, got %d", w.Code)
	}
}

func TestBackupListRestore(t *testing.T) {
	_, h := setupTestServer(t, newUpstreams(t), nil)

	doRequest(h, http.MethodGet, "/api/lyrics?track=Song&artist=Artist", nil)

	w := doRequest(h, http.MethodPost, "/api/cache/backup", adminHeader())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	backupPath, _ := decode(t, w)["backup_path"].(string)

	doRequest(h, http.MethodPost, "/api/cache/clear/lyrics", adminHeader())

	body := decode(t, doRequest(h, http.MethodGet, "/api/cache/backups", adminHeader()))
	if body["count"] != float64(1) {
		t.Fatalf("Expected 1 backup, got %v", body)
	}

	w = doRequest(h, http.MethodPost, "/api/cache/restore/"+filepath.Base(backupPath), adminHeader())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body := decode(t, w); body["keys_restored"] != float64(1) {
		t.Errorf("Expected 1 key restored, got %v", body)
	}
	if w := doRequest(h, http.MethodGet, "/api/lyrics?track=Song&artist=Artist", nil); w.Header().Get("X-Cache-Status") != "HIT" {
		t.Errorf("Expected HIT after restore, got %q", w.Header().Get("X-Cache-Status"))
	}

	if w := doRequest(h, http.MethodPost, "/api/cache/restore/cache_backup_missing.db", adminHeader()); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing backup, got %d", w.Code)
	}
	if w := doRequest(h, http.MethodPost, "/api/cache/restore/notes.txt", adminHeader()); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid name, got %d", w.Code)
	}
}

func TestBackups_NotImplementedForRedis(t *testing.T) {
	u := newUpstreams(t)
	mr := miniredis.RunT(t)
	store, err := cache.NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := testConfig(u)
	cfg.Configuration.CacheBackend = "redis"
	s, err := newServer(cfg, store)
	if err != nil {
		t.Fatalf("newServer() error = %v", err)
	}
	h := s.handler()

	for _, tt := range []struct{ method, target string }{
		{http.MethodPost, "/api/cache/backup"},
		{http.MethodGet, "/api/cache/backups"},
		{http.MethodPost, "/api/cache/restore/x.db"},
	} {
		if w := doRequest(h, tt.method, tt.target, adminHeader()); w.Code != http.StatusNotImplemented {
			t.Errorf("%s %s: expected 501, got %d", tt.method, tt.target, w.Code)
		}
	}

	// Lyrics still work and are cached in redis
	doRequest(h, http.MethodGet, "/api/lyrics?track=Song&artist=Artist", nil)
	if !mr.Exists("lyriks:lyrics:artist:song") {
		t.Errorf("Expected namespaced key in redis, got %v", mr.Keys())
	}
}

func TestCircuitBreakerEndpoints(t *testing.T) {
	u := newUpstreams(t)
	u.lrclibStatus = http.StatusServiceUnavailable
	s, h := setupTestServer(t, u, func(cfg *config.Config) {
		cfg.Configuration.CircuitBreakerThreshold = 2
	})

	for i := 0; i < 3; i++ {
		doRequest(h, http.MethodGet, "/api/lyrics?track=Song&artist=Artist", nil)
	}
	if u.lrclibCalls.Load() != 2 {
		t.Errorf("Expected breaker to stop upstream calls after 2 failures, got %d", u.lrclibCalls.Load())
	}

	body := decode(t, doRequest(h, http.MethodGet, "/api/circuit-breaker", adminHeader()))
	if body["state"] != "OPEN" || body["name"] != "lrclib" {
		t.Errorf("Unexpected breaker status: %v", body)
	}
	if health := decode(t, doRequest(h, http.MethodGet, "/api/health", nil)); health["status"] != "degraded" {
		t.Errorf("Expected degraded health while OPEN, got %v", health["status"])
	}

	if w := doRequest(h, http.MethodPost, "/api/circuit-breaker/reset", adminHeader()); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if s.breaker.State().String() != "CLOSED" {
		t.Errorf("Expected CLOSED after reset, got %s", s.breaker.State())
	}
}

func TestNotFoundAndCORS(t *testing.T) {
	_, h := setupTestServer(t, newUpstreams(t), nil)

	w := doRequest(h, http.MethodGet, "/api/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}

	w = doRequest(h, http.MethodGet, "/api/health", http.Header{"Origin": []string{"http://localhost:3000"}})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Expected CORS origin echoed, got %q", got)
	}
	w = doRequest(h, http.MethodGet, "/api/health", http.Header{"Origin": []string{"http://evil.example"}})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected no CORS header for unknown origin, got %q", got)
	}
}

func TestNewServer_UnknownProviders(t *testing.T) {
	u := newUpstreams(t)
	store := newTestBolt(t)

	tests := []struct {
		name   string
		adjust func(*config.Config)
	}{
		{"Lyrics provider", func(c *config.Config) { c.Configuration.LyricsProvider = "musixmatch" }},
		{"Search provider", func(c *config.Config) { c.Configuration.SearchProvider = "deezer" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(u)
			tt.adjust(&cfg)
			if _, err := newServer(cfg, store); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestOpenStore(t *testing.T) {
	var cfg config.Config
	cfg.Configuration.CacheBackend = "memcached"
	if _, err := openStore(cfg); err == nil {
		t.Error("Expected error for unknown backend")
	}

	tmpDir := t.TempDir()
	cfg.Configuration.CacheBackend = "bolt"
	cfg.Configuration.CacheDBPath = filepath.Join(tmpDir, "cache.db")
	cfg.Configuration.CacheBackupPath = filepath.Join(tmpDir, "backups")
	store, err := openStore(cfg)
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}
	defer store.Close()
	if _, ok := store.(*cache.BoltStore); !ok {
		t.Errorf("Expected *cache.BoltStore, got %T", store)
	}
}

func newTestBolt(t *testing.T) *cache.BoltStore {
	t.Helper()
	tmpDir := t.TempDir()
	store, err := cache.NewBoltStore(filepath.Join(tmpDir, "cache.db"), filepath.Join(tmpDir, "backups"), true)
	if err != nil {
		t.Fatalf("Failed to create test cache: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
