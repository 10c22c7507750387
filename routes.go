package main

import (
	"net/http"

	"github.com/Meschack/lyriks/middleware"

	"github.com/gorilla/mux"
)

// setupRoutes configures all HTTP routes for the API
func (s *server) setupRoutes(router *mux.Router) {
	router.HandleFunc("/", s.rootHandler).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.getHealthStatus).Methods(http.MethodGet)

	// Public endpoints
	api.HandleFunc("/lyrics", s.getLyrics).Methods(http.MethodGet)
	api.HandleFunc("/search", s.searchTracks).Methods(http.MethodGet)
	api.HandleFunc("/image", s.proxyImage).Methods(http.MethodGet)
	api.HandleFunc("/image/base64", s.proxyImageBase64).Methods(http.MethodGet)
	api.HandleFunc("/image/validate", s.validateImage).Methods(http.MethodGet)

	// Admin endpoints, guarded by CACHE_ACCESS_TOKEN
	admin := api.NewRoute().Subrouter()
	admin.Use(middleware.AdminAuth(s.cfg.Configuration.CacheAccessToken))

	admin.HandleFunc("/stats", s.getStats).Methods(http.MethodGet)
	admin.HandleFunc("/cache/invalidate", s.invalidateLyrics).Methods(http.MethodPost)
	admin.HandleFunc("/cache/clear/{scope}", s.clearCacheScope).Methods(http.MethodPost)
	admin.HandleFunc("/cache/backup", s.backupCache).Methods(http.MethodPost)
	admin.HandleFunc("/cache/backups", s.listBackups).Methods(http.MethodGet)
	admin.HandleFunc("/cache/restore/{name}", s.restoreCache).Methods(http.MethodPost)
	admin.HandleFunc("/circuit-breaker", s.getCircuitBreakerStatus).Methods(http.MethodGet)
	admin.HandleFunc("/circuit-breaker/reset", s.resetCircuitBreaker).Methods(http.MethodPost)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Respond(w, r).Detail(http.StatusNotFound, "Not Found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Respond(w, r).Detail(http.StatusMethodNotAllowed, "Method Not Allowed")
	})
}
