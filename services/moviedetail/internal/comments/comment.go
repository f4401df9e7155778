// Package comments holds the per-movie threaded comment engine: the tree
// snapshot store and its derived reaction maps, collapse and edit/reply UI
// state, the mutation/refresh sync engine and the depth-first renderer.
package comments

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TombstoneMarker is the content the interaction service writes over a
// deleted comment. Empty or null content is treated the same way.
const TombstoneMarker = "[DELETED]"

// Placeholders shown instead of a tombstoned comment's content and author.
const (
	DeletedContentText = "This comment has been deleted"
	DeletedAuthorText  = "[deleted]"
	AnonymousAuthor    = "Anonymous"
)

// Comment is one node of a movie's discussion tree, as returned by the
// interaction service. Replies keep the order the service delivered.
type Comment struct {
	ID                 int64     `json:"id"`
	MovieRef           string    `json:"imdbId,omitempty"`
	AuthorID           UserID    `json:"userId"`
	AuthorName         string    `json:"username"`
	AuthorImage        string    `json:"userImage,omitempty"`
	Content            string    `json:"content"`
	CreatedAt          Timestamp `json:"createdAt"`
	ParentID           *int64    `json:"parentId,omitempty"`
	Replies            []Comment `json:"replies"`
	LikeCount          int       `json:"likeCount"`
	LikedByCurrentUser bool      `json:"isLikedByCurrentUser"`
}

// Deleted reports whether the comment is a tombstone.
func (c Comment) Deleted() bool {
	return c.Content == "" || c.Content == TombstoneMarker
}

// DisplayContent is the text a reader sees for the comment.
func (c Comment) DisplayContent() string {
	if c.Deleted() {
		return DeletedContentText
	}
	return c.Content
}

// DisplayAuthor is the author label a reader sees for the comment.
func (c Comment) DisplayAuthor() string {
	switch {
	case c.Deleted():
		return DeletedAuthorText
	case strings.TrimSpace(c.AuthorName) == "":
		return AnonymousAuthor
	default:
		return c.AuthorName
	}
}

// IsRoot reports whether the comment starts a thread.
func (c Comment) IsRoot() bool { return c.ParentID == nil }

// UserID is a user identifier. The interaction service emits numeric ids
// while session tokens carry them as strings; both decode to the same value.
type UserID string

func (u *UserID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*u = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*u = UserID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	*u = UserID(n.String())
	return nil
}

func (u UserID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(u), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(u) {
		return []byte(u), nil
	}
	return json.Marshal(string(u))
}

// Timestamp accepts RFC 3339 as well as the zone-less local date-times the
// interaction service produces. Zone-less values are read as UTC.
type Timestamp struct {
	time.Time
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = v
		return nil
	}
	for _, layout := range localLayouts {
		if v, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time = v
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised format %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// DecodeTree parses the JSON root list returned by the tree endpoint.
// A null body decodes to an empty tree.
func DecodeTree(b []byte) ([]Comment, error) {
	var roots []Comment
	if err := json.Unmarshal(b, &roots); err != nil {
		return nil, fmt.Errorf("decode comment tree: %w", err)
	}
	if roots == nil {
		roots = []Comment{}
	}
	return roots, nil
}
