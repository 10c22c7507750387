package search

type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type AlbumImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type Album struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Images      []AlbumImage `json:"images"`
	ReleaseDate *string      `json:"release_date"`
}

// Track is a search result, whatever provider produced it.
type Track struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Artists    []Artist `json:"artists"`
	Album      Album    `json:"album"`
	DurationMs int      `json:"duration_ms"`
	Explicit   bool     `json:"explicit"`
	PreviewURL *string  `json:"preview_url"`
}

// PrimaryArtist returns the first credited artist.
func (t Track) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return "Unknown Artist"
	}
	return t.Artists[0].Name
}

// ArtworkURL returns the largest album image, which providers list first.
func (t Track) ArtworkURL() string {
	if len(t.Album.Images) == 0 {
		return ""
	}
	return t.Album.Images[0].URL
}

func (t Track) DurationSeconds() int {
	return t.DurationMs / 1000
}

// Response is the body of /api/search.
type Response struct {
	Query   string  `json:"query"`
	Results []Track `json:"results"`
	Total   int     `json:"total"`
}
