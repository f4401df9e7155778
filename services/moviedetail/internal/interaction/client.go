// Package interaction is the HTTP client for the interaction service that
// owns comments, likes, ratings and favorites.
package interaction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/movie-discovery/services/moviedetail/internal/comments"
	"github.com/example/movie-discovery/services/moviedetail/internal/upstream"
)

const DefaultBaseURL = "http://localhost:8090"

const (
	maxBody    = 4 << 20
	maxMessage = 300
)

type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	CB         *gobreaker.CircuitBreaker
	Log        *zap.Logger
}

// Option configures the Client.
type Option func(*Client)

func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(c *Client) { c.CB = cb }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.Log = log }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
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

// CommentLike is one user's like on a comment.
type CommentLike struct {
	CommentID int64              `json:"commentId"`
	UserID    comments.UserID    `json:"userId"`
	Username  string             `json:"username"`
	MovieRef  string             `json:"imdbId"`
	LikedAt   comments.Timestamp `json:"likedAt"`
}

// Favorite is an entry of the caller's favorites list.
type Favorite struct {
	MovieRef string `json:"imdbId"`
}

func commentPath(id int64, suffix string) string {
	return "/api/home/comment/" + strconv.FormatInt(id, 10) + suffix
}

func moviePath(prefix, movieRef, suffix string) string {
	return prefix + url.PathEscape(movieRef) + suffix
}

func (c *Client) FetchTree(ctx context.Context, movieRef, token string) ([]comments.Comment, error) {
	b, err := c.do(ctx, comments.OpFetch, http.MethodGet, moviePath("/api/home/comment/", movieRef, "/with-likes-and-replies"), token, nil)
	if err != nil {
		return nil, err
	}
	tree, err := comments.DecodeTree(b)
	if err != nil {
		return nil, &comments.ServiceError{Op: comments.OpFetch, Err: fmt.Errorf("decode tree: %w", err)}
	}
	return tree, nil
}

func (c *Client) CreateComment(ctx context.Context, movieRef, text, token string) error {
	_, err := c.do(ctx, comments.OpAdd, http.MethodPost, moviePath("/api/home/comment/", movieRef, ""), token, textBody(text))
	return err
}

func (c *Client) CreateReply(ctx context.Context, parentID int64, text, token string) error {
	_, err := c.do(ctx, comments.OpReply, http.MethodPost, commentPath(parentID, "/reply"), token, textBody(text))
	return err
}

func (c *Client) UpdateComment(ctx context.Context, id int64, text, token string) error {
	_, err := c.do(ctx, comments.OpUpdate, http.MethodPut, commentPath(id, ""), token, textBody(text))
	return err
}

func (c *Client) DeleteComment(ctx context.Context, id int64, token string) error {
	_, err := c.do(ctx, comments.OpDelete, http.MethodDelete, commentPath(id, ""), token, nil)
	return err
}

func (c *Client) ToggleLike(ctx context.Context, id int64, token string) error {
	_, err := c.do(ctx, comments.OpLike, http.MethodPost, commentPath(id, "/like"), token, nil)
	return err
}

// CommentLikes lists who likes comment id.
func (c *Client) CommentLikes(ctx context.Context, id int64, token string) ([]CommentLike, error) {
	b, err := c.do(ctx, "likes", http.MethodGet, commentPath(id, "/likes"), token, nil)
	if err != nil {
		return nil, err
	}
	out := []CommentLike{}
	if err := decodeJSON(b, &out); err != nil {
		return nil, &comments.ServiceError{Op: "likes", Err: err}
	}
	return out, nil
}

// AverageRating returns the mean user score for movieRef, 0 when unrated.
func (c *Client) AverageRating(ctx context.Context, movieRef string) (float64, error) {
	b, err := c.do(ctx, "rating", http.MethodGet, moviePath("/api/home/rate/", movieRef, "/average"), "", nil)
	if err != nil {
		return 0, err
	}
	var avg *float64
	if err := decodeJSON(b, &avg); err != nil {
		return 0, &comments.ServiceError{Op: "rating", Err: err}
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

// AddRating records the caller's score for movieRef.
func (c *Client) AddRating(ctx context.Context, movieRef string, score int, token string) error {
	body, err := jsonBody(score)
	if err != nil {
		return &comments.ServiceError{Op: "rate", Err: err}
	}
	_, err = c.do(ctx, "rate", http.MethodPost, moviePath("/api/home/rate/", movieRef, ""), token, body)
	return err
}

// Favorites lists the caller's favorite movies.
func (c *Client) Favorites(ctx context.Context, token string) ([]Favorite, error) {
	b, err := c.do(ctx, "favorites", http.MethodGet, "/api/home/favorite", token, nil)
	if err != nil {
		return nil, err
	}
	out := []Favorite{}
	if err := decodeJSON(b, &out); err != nil {
		return nil, &comments.ServiceError{Op: "favorites", Err: err}
	}
	return out, nil
}

func (c *Client) AddFavorite(ctx context.Context, movieRef, token string) error {
	_, err := c.do(ctx, "favorite_add", http.MethodPost, moviePath("/api/home/favorite/", movieRef, ""), token, textBody(""))
	return err
}

func (c *Client) RemoveFavorite(ctx context.Context, movieRef, token string) error {
	_, err := c.do(ctx, "favorite_remove", http.MethodDelete, moviePath("/api/home/favorite/", movieRef, ""), token, nil)
	return err
}

// ResolveImage turns a stored avatar reference into a URL a browser can load.
func (c *Client) ResolveImage(ref string) string {
	switch {
	case ref == "":
		return ""
	case strings.HasPrefix(ref, "http"), strings.HasPrefix(ref, "/"), strings.HasPrefix(ref, "data:image"):
		return ref
	default:
		return c.BaseURL + "/" + strings.TrimLeft(ref, "/")
	}
}

func decodeJSON(b []byte, dest any) error {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	return json.Unmarshal(b, dest)
}

// payload is a request body with its media type. Comment text goes out as
// text/plain and is stored verbatim.
type payload struct {
	data        string
	contentType string
}

func textBody(s string) *payload { return &payload{data: s, contentType: "text/plain"} }

func jsonBody(v any) (*payload, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &payload{data: string(b), contentType: "application/json"}, nil
}

// do runs one request through the breaker.
func (c *Client) do(ctx context.Context, op, method, path, token string, body *payload) ([]byte, error) {
	b, err := upstream.Execute(c.CB, func() ([]byte, error) {
		return c.roundTrip(ctx, op, method, path, token, body)
	})
	if err != nil {
		if upstream.IsOpen(err) {
			c.Log.Warn("interaction breaker open", zap.String("op", op), zap.Error(err))
			return nil, &comments.ServiceError{Op: op, Status: http.StatusServiceUnavailable, Err: err}
		}
		return nil, err
	}
	return b, nil
}

func (c *Client) roundTrip(ctx context.Context, op, method, path, token string, body *payload) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = strings.NewReader(body.data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, &comments.ServiceError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", body.contentType)
	}
	upstream.Decorate(ctx, req, token)

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Log.Warn("interaction request failed", zap.String("op", op), zap.String("path", path), zap.Error(err))
		return nil, &comments.ServiceError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &comments.ServiceError{Op: op, Status: resp.StatusCode, Err: err}
	}
	c.Log.Debug("interaction request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &comments.ServiceError{
			Op:      op,
			Status:  resp.StatusCode,
			Message: serverMessage(b),
			Err:     fmt.Errorf("interaction: status %d", resp.StatusCode),
		}
	}
	return b, nil
}

// serverMessage extracts a human readable message from an error body: a
// JSON "message" field, a JSON string, or short plain text.
func serverMessage(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &obj); err == nil {
		return strings.TrimSpace(obj.Message)
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return strings.TrimSpace(s)
	}
	if b[0] == '{' || b[0] == '[' || b[0] == '<' {
		return ""
	}
	if len(b) > maxMessage {
		cut := maxMessage
		for cut > 0 && !utf8.RuneStart(b[cut]) {
			cut--
		}
		b = b[:cut]
	}
	return string(b)
}
