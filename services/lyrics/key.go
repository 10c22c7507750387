package lyrics

import (
	"golang.org/x/text/cases"
)

const cacheKeyPrefix = "lyrics:"

// CacheKey derives the cache key for req: the track ID when given, otherwise
// artist:track, case-folded. Requests for the same pair without an ID share
// one entry.
func CacheKey(req Request) string {
	identity := req.TrackID
	if identity == "" {
		identity = req.Artist + ":" + req.Track
	}
	// Casers carry state and must not be shared between goroutines.
	return cacheKeyPrefix + cases.Fold().String(identity)
}
