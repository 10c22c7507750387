package lyrics

// ParsedLine is a parser result. Timestamp is 0 for untimed lines.
type ParsedLine struct {
	Index     int
	Text      string
	Timestamp float64
}

// LyricLine is the client-facing line. Timestamp is null unless the line came
// from synced lyrics with a timestamp greater than zero.
type LyricLine struct {
	Index     int      `json:"index"`
	Text      string   `json:"text"`
	Timestamp *float64 `json:"timestamp"`
}

// Lyrics is the normalized record. Lines are indexed 0..n-1 without gaps.
type Lyrics struct {
	TrackName    string      `json:"track_name"`
	ArtistName   string      `json:"artist_name"`
	AlbumName    *string     `json:"album_name"`
	Duration     *int        `json:"duration"`
	Instrumental bool        `json:"instrumental"`
	Lines        []LyricLine `json:"lines"`
	Synced       bool        `json:"synced"`
}

// Response is the result of a retrieval. Lyrics is nil when upstream had no
// record, in which case Error is "Lyrics not found".
type Response struct {
	TrackID    string  `json:"track_id"`
	TrackName  string  `json:"track_name"`
	ArtistName string  `json:"artist_name"`
	Lyrics     *Lyrics `json:"lyrics"`
	Cached     bool    `json:"cached"`
	Error      *string `json:"error"`
}

// NotFound reports whether r is a negative result.
func (r *Response) NotFound() bool {
	return r.Lyrics == nil
}

// Request identifies the track to retrieve. Album, Duration and TrackID are optional.
type Request struct {
	Track    string
	Artist   string
	Album    string
	Duration *float64 // seconds
	TrackID  string
}
