package search

import (
	"context"
	"fmt"
	"unicode/utf8"
)

const (
	DefaultLimit   = 20
	MaxLimit       = 50
	MaxQueryLength = 200
)

// Provider searches an upstream catalogue for tracks.
type Provider interface {
	Name() string
	SearchTracks(ctx context.Context, query string, limit int) ([]Track, error)
}

// ValidateParams checks the query length (in characters) and the limit.
func ValidateParams(query string, limit int) error {
	n := utf8.RuneCountInString(query)
	if n < 1 || n > MaxQueryLength {
		return fmt.Errorf("q must be between 1 and %d characters", MaxQueryLength)
	}
	if limit < 1 || limit > MaxLimit {
		return fmt.Errorf("limit must be between 1 and %d", MaxLimit)
	}
	return nil
}
