package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Meschack/lyriks/cache"
	"github.com/Meschack/lyriks/circuitbreaker"
	"github.com/Meschack/lyriks/logcolors"
	"github.com/Meschack/lyriks/services/lyrics"
	"github.com/Meschack/lyriks/stats"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// cacheScopes maps /api/cache/clear/{scope} to key prefixes.
var cacheScopes = map[string]string{
	"lyrics": "lyrics:",
	"search": "search:",
}

// boltStore returns the bolt backend, or writes 501 when another backend is
// configured.
func (s *server) boltStore(w http.ResponseWriter, r *http.Request) (*cache.BoltStore, bool) {
	bs, ok := s.store.(*cache.BoltStore)
	if !ok {
		Respond(w, r).Detail(http.StatusNotImplemented, "Backups are only available with the bolt cache backend")
		return nil, false
	}
	return bs, true
}

func (s *server) getStats(w http.ResponseWriter, r *http.Request) {
	snapshot := stats.Get().Snapshot()

	if bs, ok := s.store.(*cache.BoltStore); ok {
		numKeys, sizeInKB := bs.Stats()
		snapshot["cache_storage"] = map[string]interface{}{
			"backend": "bolt",
			"keys":    numKeys,
			"size_kb": sizeInKB,
			"size_mb": float64(sizeInKB) / 1024,
		}
	} else {
		snapshot["cache_storage"] = map[string]interface{}{
			"backend": s.cfg.Configuration.CacheBackend,
		}
	}
	snapshot["circuit_breaker"] = s.breaker.Snapshot()

	Respond(w, r).JSON(snapshot)
}

func (s *server) invalidateLyrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := lyrics.Request{
		Track:   q.Get("track"),
		Artist:  q.Get("artist"),
		TrackID: q.Get("track_id"),
	}
	if req.TrackID == "" && (req.Track == "" || req.Artist == "") {
		Respond(w, r).Detail(http.StatusUnprocessableEntity, "Provide 'track_id' or both 'track' and 'artist'")
		return
	}

	key := s.lyrics.Invalidate(r.Context(), req)
	log.Infof("%s Invalidated lyrics cache entry %s", logcolors.LogAdmin, key)
	Respond(w, r).JSON(InvalidateResponse{Message: "Cache entry invalidated", Key: key})
}

func (s *server) clearCacheScope(w http.ResponseWriter, r *http.Request) {
	scope := mux.Vars(r)["scope"]
	prefix, ok := cacheScopes[scope]
	if !ok {
		Respond(w, r).Detail(http.StatusBadRequest, fmt.Sprintf("Unknown cache scope %q (want lyrics or search)", scope))
		return
	}

	deleted, err := s.gateway.DeletePrefix(r.Context(), prefix)
	if err != nil {
		log.Errorf("%s Failed to clear %s cache: %v", logcolors.LogCacheClear, scope, err)
		Respond(w, r).Detail(http.StatusInternalServerError, fmt.Sprintf("Failed to clear cache: %v", err))
		return
	}

	log.Infof("%s Cleared %d %s entries", logcolors.LogCacheClear, deleted, scope)
	Respond(w, r).JSON(ClearResponse{Message: "Cache cleared successfully", Scope: scope, Deleted: deleted})
}

func (s *server) backupCache(w http.ResponseWriter, r *http.Request) {
	bs, ok := s.boltStore(w, r)
	if !ok {
		return
	}

	backupPath, err := bs.Backup()
	if err != nil {
		log.Errorf("%s Failed to create backup: %v", logcolors.LogCacheBackup, err)
		Respond(w, r).Detail(http.StatusInternalServerError, fmt.Sprintf("Failed to create backup: %v", err))
		return
	}

	Respond(w, r).JSON(BackupResponse{Message: "Backup created successfully", BackupPath: backupPath})
}

func (s *server) listBackups(w http.ResponseWriter, r *http.Request) {
	bs, ok := s.boltStore(w, r)
	if !ok {
		return
	}

	backups, err := bs.ListBackups()
	if err != nil {
		log.Errorf("%s Failed to list backups: %v", logcolors.LogCacheBackup, err)
		Respond(w, r).Detail(http.StatusInternalServerError, fmt.Sprintf("Failed to list backups: %v", err))
		return
	}

	Respond(w, r).JSON(BackupListResponse{Count: len(backups), Backups: backups})
}

func (s *server) restoreCache(w http.ResponseWriter, r *http.Request) {
	bs, ok := s.boltStore(w, r)
	if !ok {
		return
	}

	name := mux.Vars(r)["name"]
	if err := bs.RestoreFromBackup(name); err != nil {
		log.Errorf("%s Failed to restore from backup %s: %v", logcolors.LogCacheRestore, name, err)
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, cache.ErrInvalidBackupName):
			status = http.StatusBadRequest
		case errors.Is(err, cache.ErrBackupNotFound):
			status = http.StatusNotFound
		}
		Respond(w, r).Detail(status, fmt.Sprintf("Failed to restore from backup: %v", err))
		return
	}

	numKeys, sizeKB := bs.Stats()
	Respond(w, r).JSON(RestoreResponse{
		Message:      "Cache restored successfully",
		RestoredFrom: name,
		KeysRestored: numKeys,
		SizeKB:       sizeKB,
	})
}

func (s *server) getCircuitBreakerStatus(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).JSON(CircuitBreakerResponse{
		Snapshot: s.breaker.Snapshot(),
		Config: CircuitBreakerConfig{
			Threshold:   s.cfg.Configuration.CircuitBreakerThreshold,
			CooldownSec: s.cfg.Configuration.CircuitBreakerCooldownSecs,
		},
	})
}

func (s *server) resetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	s.breaker.Reset()
	log.Infof("%s Circuit breaker reset by admin", logcolors.CircuitBreakerPrefix(s.breaker.Name()))
	Respond(w, r).JSON(MessageResponse{Message: "Circuit breaker reset to " + circuitbreaker.StateClosed.String() + " state"})
}
