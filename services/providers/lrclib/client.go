package lrclib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Meschack/lyriks/circuitbreaker"
	"github.com/Meschack/lyriks/logcolors"
	"github.com/Meschack/lyriks/services/providers"

	log "github.com/sirupsen/logrus"
)

const (
	ProviderName = "lrclib"

	DefaultBaseURL = "https://lrclib.net/api"
	defaultTimeout = 10 * time.Second
	userAgent      = "Lyriks (https://github.com/Meschack/lyriks)"

	// Upper bound on a response body; LRCLIB records are a few KB.
	maxBodyBytes = 4 << 20
)

// Client talks to the LRCLIB public API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithCircuitBreaker guards every upstream call with cb.
func WithCircuitBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// New returns a client for baseURL ("" selects DefaultBaseURL).
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string {
	return ProviderName
}

// FetchLyrics looks up an exact match when album and duration are known and
// falls back to a free-text search. It returns (nil, nil) when neither finds a
// record.
func (c *Client) FetchLyrics(ctx context.Context, q providers.Query) (*providers.RawLyrics, error) {
	var result *providers.RawLyrics

	fetch := func() error {
		var err error
		result, err = c.fetch(ctx, q)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Do(fetch)
	} else {
		err = fetch()
	}

	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return nil, providers.NewProviderError(ProviderName,
			fmt.Sprintf("circuit open, retry in %v", c.breaker.TimeUntilRetry().Round(time.Second)), err)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) fetch(ctx context.Context, q providers.Query) (*providers.RawLyrics, error) {
	prefix := logcolors.UpstreamPrefix(ProviderName)

	if q.Album != "" && q.DurationSeconds > 0 {
		raw, err := c.get(ctx, q)
		if err != nil {
			return nil, err
		}
		if raw != nil {
			log.Debugf("%s Exact match for %s - %s", prefix, q.Artist, q.Track)
			return raw, nil
		}
		log.Debugf("%s No exact match for %s - %s, falling back to search", prefix, q.Artist, q.Track)
	}

	return c.search(ctx, q)
}

// get calls /get. A 404 is "no exact match", not an error.
func (c *Client) get(ctx context.Context, q providers.Query) (*providers.RawLyrics, error) {
	params := url.Values{}
	params.Set("track_name", q.Track)
	params.Set("artist_name", q.Artist)
	params.Set("album_name", q.Album)
	params.Set("duration", strconv.Itoa(q.DurationSeconds))

	var raw providers.RawLyrics
	status, err := c.doJSON(ctx, "/get", params, &raw)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	return &raw, nil
}

// search calls /search and keeps the first result.
func (c *Client) search(ctx context.Context, q providers.Query) (*providers.RawLyrics, error) {
	params := url.Values{}
	params.Set("q", q.Artist+" "+q.Track)

	var results []providers.RawLyrics
	status, err := c.doJSON(ctx, "/search", params, &results)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound || len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// doJSON performs a GET and decodes a 2xx body into dest. It returns the
// status for 404 without decoding; any other non-2xx is a ProviderError.
func (c *Client) doJSON(ctx context.Context, path string, params url.Values, dest interface{}) (int, error) {
	requestURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return 0, providers.NewProviderError(ProviderName, "failed to create request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, providers.NewProviderError(ProviderName, "request failed", err)
	}
	defer resp.Body.Close()

	log.Debugf("%s GET %s -> %d (%v)", logcolors.UpstreamPrefix(ProviderName), path, resp.StatusCode, time.Since(start))

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, providers.NewProviderError(ProviderName,
			fmt.Sprintf("%s returned status %d", path, resp.StatusCode), nil)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dest); err != nil {
		return resp.StatusCode, providers.NewProviderError(ProviderName, "failed to parse response", err)
	}
	return resp.StatusCode, nil
}
