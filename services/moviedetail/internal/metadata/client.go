// Package metadata looks movies up through the metadata proxy.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/movie-discovery/services/moviedetail/internal/cache"
	"github.com/example/movie-discovery/services/moviedetail/internal/upstream"
)

// ErrNotFound reports an unknown movie. It carries a 404 status so lookups
// of unknown ids do not count against the breaker.
var ErrNotFound error = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string   { return "metadata: movie not found" }
func (notFoundError) HTTPStatus() int { return http.StatusNotFound }

// Movie is the subset of the provider's record the detail page shows.
type Movie struct {
	MovieRef   string `json:"imdbID"`
	Title      string `json:"Title"`
	Year       string `json:"Year"`
	Poster     string `json:"Poster"`
	Plot       string `json:"Plot"`
	Genre      string `json:"Genre"`
	Director   string `json:"Director"`
	Actors     string `json:"Actors"`
	Runtime    string `json:"Runtime"`
	IMDBRating string `json:"imdbRating"`
	Response   string `json:"Response,omitempty"`
	Error      string `json:"Error,omitempty"`
}

// StatusError is a non-2xx answer from the proxy.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("metadata: status %d body=%q", e.Status, e.Body)
}

func (e *StatusError) HTTPStatus() int { return e.Status }

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	CB         *gobreaker.CircuitBreaker
	Cache      cache.Cache
	Log        *zap.Logger
}

// Option configures the Client.
type Option func(*Client)

func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(c *Client) { c.CB = cb }
}

func WithCache(cc cache.Cache) Option {
	return func(c *Client) { c.Cache = cc }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.Log = log }
}

func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func cacheKey(movieRef string) string { return "movie:" + movieRef }

// Movie fetches the record for movieRef, served from cache when possible.
// Cache failures are logged and otherwise ignored.
func (c *Client) Movie(ctx context.Context, movieRef string) (*Movie, error) {
	movieRef = strings.TrimSpace(movieRef)
	if movieRef == "" {
		return nil, ErrNotFound
	}
	if c.Cache != nil {
		var m Movie
		ok, err := c.Cache.Get(ctx, cacheKey(movieRef), &m)
		if err != nil {
			c.Log.Warn("metadata cache get failed", zap.String("movie_ref", movieRef), zap.Error(err))
		}
		if ok {
			return &m, nil
		}
	}

	m, err := upstream.Execute(c.CB, func() (*Movie, error) {
		return c.fetch(ctx, movieRef)
	})
	if err != nil {
		return nil, err
	}
	if c.Cache != nil {
		if err := c.Cache.Set(ctx, cacheKey(movieRef), m); err != nil {
			c.Log.Warn("metadata cache set failed", zap.String("movie_ref", movieRef), zap.Error(err))
		}
	}
	return m, nil
}

func (c *Client) fetch(ctx context.Context, movieRef string) (*Movie, error) {
	u := c.BaseURL + "/api/omdb/searchId?imdbId=" + url.QueryEscape(movieRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	upstream.Decorate(ctx, req, "")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Status: resp.StatusCode, Body: string(b[:min(len(b), 200)])}
	}
	var m Movie
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("metadata: decode error: %w body=%q", err, string(b[:min(len(b), 200)]))
	}
	if strings.EqualFold(m.Response, "False") {
		return nil, ErrNotFound
	}
	if m.MovieRef == "" {
		m.MovieRef = movieRef
	}
	return &m, nil
}
