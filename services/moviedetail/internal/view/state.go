package view

import (
	"github.com/example/movie-discovery/services/moviedetail/internal/comments"
	"github.com/example/movie-discovery/services/moviedetail/internal/metadata"
)

type ViewerState struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	Name          string `json:"name,omitempty"`
}

type ModeState struct {
	Kind      string `json:"kind"`
	CommentID int64  `json:"comment_id,omitempty"`
	Draft     string `json:"draft,omitempty"`
}

// State is everything a client needs to draw the page.
type State struct {
	SessionID     string          `json:"session_id"`
	MovieRef      string          `json:"movie_ref"`
	Viewer        ViewerState     `json:"viewer"`
	Movie         *metadata.Movie `json:"movie,omitempty"`
	MovieError    string          `json:"movie_error,omitempty"`
	AverageRating float64         `json:"average_rating"`
	RatingError   string          `json:"rating_error,omitempty"`
	Favorite      *bool           `json:"favorite,omitempty"`
	Version       uint64          `json:"version"`
	CommentCount  int             `json:"comment_count"`
	Comments      []comments.Row  `json:"comments"`
	CommentsError string          `json:"comments_error,omitempty"`
	CanComment    bool            `json:"can_comment"`
	Mode          ModeState       `json:"mode"`
	Notices       []Notice        `json:"notices"`
}

// Render draws the current snapshot together with the page sections.
func (p *Page) Render() State {
	v := p.Viewer()
	snap := p.engine.Store().Snapshot()
	mode := p.modes.Current()

	rows := comments.Render(comments.RenderInput{
		Snapshot: snap,
		Collapse: p.engine.Collapse(),
		InFlight: p.inflight,
		Mode:     mode,
		Viewer:   v,
	})
	for i := range rows {
		rows[i].AuthorImage = p.deps.Interaction.ResolveImage(rows[i].AuthorImage)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		SessionID: p.ID,
		MovieRef:  p.MovieRef,
		Viewer: ViewerState{
			Authenticated: v.Authenticated(),
			UserID:        v.UserID,
			Name:          v.Name,
		},
		Movie:         p.movie,
		MovieError:    p.movieErr,
		AverageRating: p.rating,
		RatingError:   p.ratingErr,
		Favorite:      p.favorite,
		Version:       snap.Version,
		CommentCount:  snap.Len(),
		Comments:      rows,
		CommentsError: p.commentsErr,
		CanComment:    v.Authenticated() && !p.inflight.Pending(comments.MovieKey(p.MovieRef)),
		Mode: ModeState{
			Kind:      mode.Kind.String(),
			CommentID: mode.CommentID,
			Draft:     mode.Draft,
		},
		Notices: p.notices.Active(),
	}
}
