package imageproxy

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Meschack/lyriks/logcolors"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultMaxBytes    = 10 << 20
	defaultContentType = "image/jpeg"
)

var (
	ErrInvalidURL = errors.New("url must be an absolute http or https URL")
	ErrTooLarge   = errors.New("image exceeds size limit")
)

// Image is a fetched upstream image.
type Image struct {
	ContentType string
	Data        []byte
}

// DataURI renders the image as data:<type>;base64,<payload>.
func (i *Image) DataURI() string {
	return "data:" + i.ContentType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Validation is the result of a HEAD check.
type Validation struct {
	URL         string `json:"url"`
	Valid       bool   `json:"valid"`
	StatusCode  int    `json:"status_code,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Proxy fetches external images on behalf of clients.
type Proxy struct {
	httpClient *http.Client
	maxBytes   int64
}

func New(timeout time.Duration, maxBytes int64) *Proxy {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Proxy{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
	}
}

func checkURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	return u, nil
}

// Fetch downloads the image at rawURL, following redirects.
func (p *Proxy) Fetch(ctx context.Context, rawURL string) (*Image, error) {
	u, err := checkURL(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	if resp.ContentLength > p.maxBytes {
		return nil, ErrTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if int64(len(data)) > p.maxBytes {
		return nil, ErrTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}

	log.Debugf("%s Fetched %s (%s, %d bytes)", logcolors.LogImage, u.Host, contentType, len(data))
	return &Image{ContentType: contentType, Data: data}, nil
}

// Validate issues a HEAD request. The image is valid when the response is 2xx
// and its content type is image/*. Failures are reported in the result.
func (p *Proxy) Validate(ctx context.Context, rawURL string) Validation {
	v := Validation{URL: rawURL}

	u, err := checkURL(rawURL)
	if err != nil {
		v.Error = err.Error()
		return v
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		v.Error = err.Error()
		return v
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		v.Error = err.Error()
		return v
	}
	resp.Body.Close()

	v.StatusCode = resp.StatusCode
	v.ContentType = resp.Header.Get("Content-Type")
	v.Valid = resp.StatusCode >= 200 && resp.StatusCode <= 299 && strings.HasPrefix(v.ContentType, "image/")
	return v
}
