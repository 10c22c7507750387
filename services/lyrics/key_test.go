package lyrics

import "testing"

func TestCacheKey(t *testing.T) {
	tests := []struct {
		name     string
		req      Request
		expected string
	}{
		{"Artist and track", Request{Track: "Shape of You", Artist: "Ed Sheeran"}, "lyrics:ed sheeran:shape of you"},
		{"Track ID wins", Request{Track: "Song", Artist: "Artist", TrackID: "4uLU6hMCjMI75M1A2tKUQC"}, "lyrics:4ulu6hmcjmi75m1a2tkuqc"},
		{"Empty ID ignored", Request{Track: "Song", Artist: "Artist", TrackID: ""}, "lyrics:artist:song"},
		{"Album and duration ignored", Request{Track: "Song", Artist: "Artist", Album: "X", Duration: floatPtr(100)}, "lyrics:artist:song"},
		{"Unicode folded", Request{Track: "ÉTÉ", Artist: "Ça"}, "lyrics:ça:été"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CacheKey(tt.req); got != tt.expected {
				t.Errorf("CacheKey() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCacheKeyCollidesAcrossCase(t *testing.T) {
	a := CacheKey(Request{Track: "HELLO", Artist: "ADELE"})
	b := CacheKey(Request{Track: "hello", Artist: "adele"})
	if a != b {
		t.Errorf("Expected identical keys, got %q and %q", a, b)
	}
}
