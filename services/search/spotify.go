package search

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Meschack/lyriks/logcolors"

	log "github.com/sirupsen/logrus"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	SpotifyName          = "spotify"
	DefaultSpotifyMarket = "US"
)

// Spotify searches tracks with the client-credentials flow. Tokens are
// fetched lazily and refreshed by the oauth2 transport.
type Spotify struct {
	client *spotify.Client
	market string
}

type SpotifyOption func(*spotifyOptions)

type spotifyOptions struct {
	tokenURL string
	apiURL   string
	timeout  time.Duration
}

// WithSpotifyEndpoints overrides the accounts token URL and the Web API base
// URL (which must end with a slash).
func WithSpotifyEndpoints(tokenURL, apiURL string) SpotifyOption {
	return func(o *spotifyOptions) {
		o.tokenURL = tokenURL
		o.apiURL = apiURL
	}
}

func WithSpotifyTimeout(d time.Duration) SpotifyOption {
	return func(o *spotifyOptions) { o.timeout = d }
}

func NewSpotify(clientID, clientSecret, market string, opts ...SpotifyOption) *Spotify {
	o := spotifyOptions{tokenURL: spotifyauth.TokenURL, timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if market == "" {
		market = DefaultSpotifyMarket
	}

	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     o.tokenURL,
	}

	base := &http.Client{Timeout: o.timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	httpClient := cfg.Client(ctx)
	httpClient.Timeout = o.timeout

	var clientOpts []spotify.ClientOption
	if o.apiURL != "" {
		clientOpts = append(clientOpts, spotify.WithBaseURL(o.apiURL))
	}

	return &Spotify{
		client: spotify.New(httpClient, clientOpts...),
		market: market,
	}
}

func (s *Spotify) Name() string {
	return SpotifyName
}

func (s *Spotify) SearchTracks(ctx context.Context, query string, limit int) ([]Track, error) {
	result, err := s.client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit), spotify.Market(s.market))
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if result.Tracks == nil {
		return []Track{}, nil
	}

	tracks := make([]Track, 0, len(result.Tracks.Tracks))
	for _, t := range result.Tracks.Tracks {
		tracks = append(tracks, fromSpotify(t))
	}

	log.Debugf("%s %q -> %d tracks", logcolors.UpstreamPrefix(SpotifyName), query, len(tracks))
	return tracks, nil
}

func fromSpotify(t spotify.FullTrack) Track {
	artists := make([]Artist, 0, len(t.Artists))
	for _, a := range t.Artists {
		artists = append(artists, Artist{ID: string(a.ID), Name: a.Name})
	}

	images := make([]AlbumImage, 0, len(t.Album.Images))
	for _, img := range t.Album.Images {
		images = append(images, AlbumImage{URL: img.URL, Height: int(img.Height), Width: int(img.Width)})
	}

	album := Album{ID: string(t.Album.ID), Name: t.Album.Name, Images: images}
	if t.Album.ReleaseDate != "" {
		date := t.Album.ReleaseDate
		album.ReleaseDate = &date
	}

	track := Track{
		ID:         string(t.ID),
		Name:       t.Name,
		Artists:    artists,
		Album:      album,
		DurationMs: int(t.Duration),
		Explicit:   t.Explicit,
	}
	if t.PreviewURL != "" {
		preview := t.PreviewURL
		track.PreviewURL = &preview
	}
	return track
}
