package lyrics

import (
	"github.com/Meschack/lyriks/services/providers"
)

// Normalize builds a Lyrics record from an upstream payload, preferring synced
// lyrics over plain text. A synced timestamp of exactly 0.00 is emitted as
// null, the same as an untimed line.
func Normalize(raw *providers.RawLyrics) *Lyrics {
	var parsed []ParsedLine
	synced := false

	switch {
	case raw.SyncedLyrics != "":
		parsed = ParseSynced(raw.SyncedLyrics)
		synced = true
	case raw.PlainLyrics != "":
		parsed = ParsePlain(raw.PlainLyrics)
	}

	lines := make([]LyricLine, 0, len(parsed))
	for _, p := range parsed {
		line := LyricLine{Index: p.Index, Text: p.Text}
		if synced && p.Timestamp > 0 {
			ts := p.Timestamp
			line.Timestamp = &ts
		}
		lines = append(lines, line)
	}

	l := &Lyrics{
		TrackName:    raw.TrackName,
		ArtistName:   raw.ArtistName,
		Instrumental: raw.Instrumental,
		Lines:        lines,
		Synced:       synced,
	}
	if raw.AlbumName != nil {
		album := *raw.AlbumName
		l.AlbumName = &album
	}
	// Fractional durations are truncated to whole seconds
	if raw.Duration != nil {
		d := int(*raw.Duration)
		l.Duration = &d
	}
	return l
}
