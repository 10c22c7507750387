package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Meschack/lyriks/logcolors"

	log "github.com/sirupsen/logrus"
)

const (
	GeniusName           = "genius"
	DefaultGeniusBaseURL = "https://api.genius.com"

	geniusArtSize = 1000
)

// Genius searches songs through the Genius API.
type Genius struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewGenius(baseURL, token string, timeout time.Duration) *Genius {
	if baseURL == "" {
		baseURL = DefaultGeniusBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Genius{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (g *Genius) Name() string {
	return GeniusName
}

type geniusSearchResponse struct {
	Response struct {
		Hits []struct {
			Type   string     `json:"type"`
			Result geniusSong `json:"result"`
		} `json:"hits"`
	} `json:"response"`
}

type geniusSong struct {
	ID                    int              `json:"id"`
	Title                 string           `json:"title"`
	ArtistNames           string           `json:"artist_names"`
	SongArtImageURL       string           `json:"song_art_image_url"`
	HeaderImageURL        string           `json:"header_image_url"`
	PrimaryArtist         *geniusArtist    `json:"primary_artist"`
	ReleaseDateComponents *geniusDateParts `json:"release_date_components"`
}

type geniusArtist struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type geniusDateParts struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

func (g *Genius) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("per_page", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	var body geniusSearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	tracks := make([]Track, 0, len(body.Response.Hits))
	for _, hit := range body.Response.Hits {
		if hit.Type != "song" {
			continue
		}
		tracks = append(tracks, hit.Result.toTrack())
	}

	log.Debugf("%s %q -> %d songs", logcolors.UpstreamPrefix(GeniusName), query, len(tracks))
	return tracks, nil
}

func (s geniusSong) toTrack() Track {
	id := strconv.Itoa(s.ID)

	artist := Artist{ID: "unknown", Name: "Unknown"}
	if s.PrimaryArtist != nil {
		artist.ID = strconv.Itoa(s.PrimaryArtist.ID)
		if s.PrimaryArtist.Name != "" {
			artist.Name = s.PrimaryArtist.Name
		}
	}
	if s.ArtistNames != "" {
		artist.Name = s.ArtistNames
	}

	album := Album{ID: id, Name: s.Title, Images: []AlbumImage{}}
	art := s.SongArtImageURL
	if art == "" {
		art = s.HeaderImageURL
	}
	if art != "" {
		album.Images = append(album.Images, AlbumImage{URL: art, Height: geniusArtSize, Width: geniusArtSize})
	}
	if s.ReleaseDateComponents != nil {
		album.ReleaseDate = releaseDate(s.ReleaseDateComponents.Year, s.ReleaseDateComponents.Month, s.ReleaseDateComponents.Day)
	}

	return Track{
		ID:      id,
		Name:    s.Title,
		Artists: []Artist{artist},
		Album:   album,
	}
}

// releaseDate renders "YYYY", "YYYY-MM" or "YYYY-MM-DD" from whichever
// leading components are known.
func releaseDate(year, month, day int) *string {
	if year == 0 {
		return nil
	}
	d := strconv.Itoa(year)
	if month != 0 {
		d = fmt.Sprintf("%d-%02d", year, month)
		if day != 0 {
			d = fmt.Sprintf("%d-%02d-%02d", year, month, day)
		}
	}
	return &d
}
