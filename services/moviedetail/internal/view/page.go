// Package view hosts movie-detail view sessions. A Page owns one comment
// engine with its store, collapse set and edit/reply mode, plus the
// peripheral sections loaded alongside it.
package view

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/movie-discovery/internal/platform/analytics"
	"github.com/example/movie-discovery/services/moviedetail/internal/comments"
	"github.com/example/movie-discovery/services/moviedetail/internal/interaction"
	"github.com/example/movie-discovery/services/moviedetail/internal/metadata"
	"github.com/example/movie-discovery/services/moviedetail/internal/prefs"
)

// LoginPath is where unauthenticated actions send the browser.
const LoginPath = "/login"

// Success notice texts.
const (
	MsgCommentAdded    = "Comment added"
	MsgReplyAdded      = "Reply added"
	MsgCommentUpdated  = "Comment updated"
	MsgCommentDeleted  = "Comment deleted"
	MsgRatingSaved     = "Rating saved"
	MsgFavoriteAdded   = "Added to favorites"
	MsgFavoriteRemoved = "Removed from favorites"
)

// Rating bounds accepted by Rate.
const (
	MinScore = 1
	MaxScore = 5
)

// Interaction is the slice of the interaction service a page uses.
type Interaction interface {
	comments.Service
	AverageRating(ctx context.Context, movieRef string) (float64, error)
	AddRating(ctx context.Context, movieRef string, score int, token string) error
	Favorites(ctx context.Context, token string) ([]interaction.Favorite, error)
	AddFavorite(ctx context.Context, movieRef, token string) error
	RemoveFavorite(ctx context.Context, movieRef, token string) error
	ResolveImage(ref string) string
}

type MovieSource interface {
	Movie(ctx context.Context, movieRef string) (*metadata.Movie, error)
}

// Deps are shared by every page of a registry. Movies, Prefs and Events
// may be nil.
type Deps struct {
	Interaction Interaction
	Movies      MovieSource
	Prefs       prefs.CollapseStore
	Events      *analytics.Publisher
	Logger      *zap.Logger
	Now         func() time.Time
}

// Page is one open movie-detail view.
type Page struct {
	ID       string
	MovieRef string

	deps     Deps
	log      *zap.Logger
	engine   *comments.Engine
	modes    comments.ModeController
	notices  *Notices
	inflight *comments.InFlight

	mu            sync.Mutex
	viewer        comments.Viewer
	movie         *metadata.Movie
	movieErr      string
	rating        float64
	ratingErr     string
	favorite      *bool
	commentsErr   string
	lastSeen      time.Time
	favoriteBusy  bool
	ratingBusy    bool
	collapseDirty bool
}

func newPage(id, movieRef string, v comments.Viewer, deps Deps) *Page {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	p := &Page{
		ID:       id,
		MovieRef: movieRef,
		deps:     deps,
		log:      log.With(zap.String("session_id", id), zap.String("movie_ref", movieRef)),
		notices:  NewNotices(deps.Now),
		inflight: comments.NewInFlight(),
		viewer:   v,
		lastSeen: deps.Now(),
	}
	var events comments.EventSink
	if deps.Events != nil {
		events = deps.Events
	}
	p.engine = comments.NewEngine(movieRef, comments.EngineOptions{
		Service:  deps.Interaction,
		InFlight: p.inflight,
		Events:   events,
		Logger:   p.log,
	})
	return p
}

// load fills every section concurrently. Each failure only degrades its
// own section.
func (p *Page) load(ctx context.Context) {
	v := p.Viewer()
	g, gctx := errgroup.WithContext(ctx)

	if p.deps.Movies != nil {
		g.Go(func() error {
			m, err := p.deps.Movies.Movie(gctx, p.MovieRef)
			p.mu.Lock()
			defer p.mu.Unlock()
			switch {
			case errors.Is(err, metadata.ErrNotFound):
				p.movieErr = "Movie not found"
			case err != nil:
				p.log.Warn("movie lookup failed", zap.Error(err))
				p.movieErr = "Movie details are unavailable"
			default:
				p.movie = m
			}
			return nil
		})
	}
	g.Go(func() error {
		avg, err := p.deps.Interaction.AverageRating(gctx, p.MovieRef)
		p.mu.Lock()
		defer p.mu.Unlock()
		if err != nil {
			p.log.Warn("average rating fetch failed", zap.Error(err))
			p.ratingErr = comments.UserMessage(err)
			return nil
		}
		p.rating = avg
		return nil
	})
	if v.Authenticated() {
		g.Go(func() error {
			p.refreshFavorite(gctx, v)
			return nil
		})
	}
	g.Go(func() error {
		p.restoreCollapse(gctx, v)
		if _, err := p.engine.Load(gctx, v); err != nil {
			p.mu.Lock()
			p.commentsErr = comments.UserMessage(err)
			p.mu.Unlock()
		}
		return nil
	})
	_ = g.Wait()
}

func (p *Page) refreshFavorite(ctx context.Context, v comments.Viewer) {
	favs, err := p.deps.Interaction.Favorites(ctx, v.Token)
	if err != nil {
		p.log.Warn("favorites fetch failed", zap.Error(err))
		p.mu.Lock()
		p.favorite = nil
		p.mu.Unlock()
		return
	}
	is := false
	for _, f := range favs {
		if f.MovieRef == p.MovieRef {
			is = true
			break
		}
	}
	p.mu.Lock()
	p.favorite = &is
	p.mu.Unlock()
}

func (p *Page) restoreCollapse(ctx context.Context, v comments.Viewer) {
	if p.deps.Prefs == nil || !v.Authenticated() {
		return
	}
	ids, err := p.deps.Prefs.Load(ctx, v.UserID, p.MovieRef)
	if err != nil {
		p.log.Warn("collapse prefs load failed", zap.Error(err))
		return
	}
	for _, id := range ids {
		if !p.engine.Collapse().IsCollapsed(id) {
			p.engine.Collapse().Toggle(id)
		}
	}
}

func (p *Page) persistCollapse(ctx context.Context, v comments.Viewer) {
	if p.deps.Prefs == nil || !v.Authenticated() {
		return
	}
	if err := p.deps.Prefs.Save(ctx, v.UserID, p.MovieRef, p.engine.Collapse().IDs()); err != nil {
		p.log.Warn("collapse prefs save failed", zap.Error(err))
	}
}

// Viewer returns the caller the page acts for.
func (p *Page) Viewer() comments.Viewer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewer
}

// touch records activity and refreshes the forwarded credential.
func (p *Page) touch(v comments.Viewer) {
	p.mu.Lock()
	p.lastSeen = p.deps.Now()
	if v.UserID == p.viewer.UserID {
		p.viewer = v
	}
	p.mu.Unlock()
}

func (p *Page) idleSince() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

// Close discards pending refreshes. Later actions return comments.ErrClosed.
func (p *Page) Close() {
	p.engine.Close()
	p.mu.Lock()
	dirty := p.collapseDirty
	v := p.viewer
	p.mu.Unlock()
	if dirty {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		p.persistCollapse(ctx, v)
	}
}

func (p *Page) Closed() bool { return p.engine.Closed() }

func (p *Page) Engine() *comments.Engine { return p.engine }

// report turns an action result into notices. Validation, auth, gating and
// duplicate errors produce none; the caller renders those inline.
func (p *Page) report(err error, success string) {
	var se *comments.ServiceError
	switch {
	case err == nil:
		if success != "" {
			p.notices.Success(success)
		}
	case errors.As(err, &se):
		p.notices.Error(se.UserMessage())
	}
}

// Refresh re-fetches the comment tree.
func (p *Page) Refresh(ctx context.Context) error {
	_, err := p.engine.Refresh(ctx, p.Viewer())
	if err == nil {
		p.mu.Lock()
		p.commentsErr = ""
		p.mu.Unlock()
	}
	p.report(err, "")
	return err
}

func (p *Page) AddComment(ctx context.Context, text string) error {
	_, err := p.engine.AddComment(ctx, p.Viewer(), text)
	p.report(err, MsgCommentAdded)
	return err
}

func (p *Page) Delete(ctx context.Context, id int64) error {
	_, err := p.engine.DeleteComment(ctx, p.Viewer(), id)
	if err == nil || comments.IsRefreshFailure(err) {
		if m := p.modes.Current(); m.CommentID == id {
			p.modes.Finish(m)
		}
	}
	p.report(err, MsgCommentDeleted)
	return err
}

func (p *Page) Like(ctx context.Context, id int64) error {
	_, err := p.engine.LikeToggle(ctx, p.Viewer(), id)
	p.report(err, "")
	return err
}

// ToggleCollapse flips id and reports whether it is now collapsed.
func (p *Page) ToggleCollapse(ctx context.Context, id int64) (bool, error) {
	if p.Closed() {
		return false, comments.ErrClosed
	}
	if _, ok := p.engine.Store().Snapshot().Find(id); !ok {
		return false, comments.ErrNotFound
	}
	collapsed := p.engine.Collapse().Toggle(id)
	p.mu.Lock()
	p.collapseDirty = true
	v := p.viewer
	p.mu.Unlock()
	p.persistCollapse(ctx, v)
	return collapsed, nil
}

func (p *Page) lookup(id int64) (comments.Located, error) {
	loc, ok := p.engine.Store().Snapshot().Find(id)
	if !ok {
		return comments.Located{}, comments.ErrNotFound
	}
	if loc.Comment.Deleted() {
		return comments.Located{}, comments.ErrTombstoned
	}
	return loc, nil
}

// ToggleReply opens or closes the reply box under id.
func (p *Page) ToggleReply(id int64) (comments.Mode, error) {
	if !p.Viewer().Authenticated() {
		return p.modes.Current(), comments.ErrAuthRequired
	}
	if p.modes.Current().Is(comments.ModeReplying, id) {
		return p.modes.ToggleReply(id, 0)
	}
	loc, err := p.lookup(id)
	if err != nil {
		return p.modes.Current(), err
	}
	return p.modes.ToggleReply(id, loc.Depth)
}

// StartEdit opens the editor on the viewer's own comment id.
func (p *Page) StartEdit(id int64) (comments.Mode, error) {
	v := p.Viewer()
	if !v.Authenticated() {
		return p.modes.Current(), comments.ErrAuthRequired
	}
	loc, err := p.lookup(id)
	if err != nil {
		return p.modes.Current(), err
	}
	if !v.Owns(*loc.Comment) {
		return p.modes.Current(), comments.ErrNotAuthor
	}
	return p.modes.StartEdit(id, loc.Comment.Content), nil
}

func (p *Page) SetDraft(text string) (comments.Mode, error) {
	return p.modes.SetDraft(text)
}

func (p *Page) Cancel() { p.modes.Cancel() }

// Submit sends the active edit or reply. The mode stays open on failure so
// the draft is not lost.
func (p *Page) Submit(ctx context.Context) error {
	m := p.modes.Current()
	v := p.Viewer()
	var err error
	var success string
	switch m.Kind {
	case comments.ModeEditing:
		_, err = p.engine.UpdateComment(ctx, v, m.CommentID, m.Draft)
		success = MsgCommentUpdated
	case comments.ModeReplying:
		_, err = p.engine.AddReply(ctx, v, m.CommentID, m.Draft)
		success = MsgReplyAdded
	default:
		return comments.ErrNoActiveMode
	}
	if err == nil || comments.IsRefreshFailure(err) {
		p.modes.Finish(m)
	}
	p.report(err, success)
	return err
}

// ToggleFavorite adds or removes the movie from the viewer's favorites.
func (p *Page) ToggleFavorite(ctx context.Context) error {
	v := p.Viewer()
	if !v.Authenticated() {
		return comments.ErrAuthRequired
	}
	p.mu.Lock()
	if p.favoriteBusy {
		p.mu.Unlock()
		return comments.ErrInFlight
	}
	p.favoriteBusy = true
	is := p.favorite != nil && *p.favorite
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.favoriteBusy = false
		p.mu.Unlock()
	}()

	var err error
	if is {
		err = p.deps.Interaction.RemoveFavorite(ctx, p.MovieRef, v.Token)
	} else {
		err = p.deps.Interaction.AddFavorite(ctx, p.MovieRef, v.Token)
	}
	if err != nil {
		p.report(err, "")
		return err
	}
	next := !is
	p.mu.Lock()
	p.favorite = &next
	p.mu.Unlock()
	if next {
		p.report(nil, MsgFavoriteAdded)
	} else {
		p.report(nil, MsgFavoriteRemoved)
	}
	return nil
}

// Rate records the viewer's score and re-reads the movie's average.
func (p *Page) Rate(ctx context.Context, score int) error {
	v := p.Viewer()
	if !v.Authenticated() {
		return comments.ErrAuthRequired
	}
	if score < MinScore || score > MaxScore {
		return &comments.ValidationError{Field: "score", Message: "Please choose a rating"}
	}
	p.mu.Lock()
	if p.ratingBusy {
		p.mu.Unlock()
		return comments.ErrInFlight
	}
	p.ratingBusy = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.ratingBusy = false
		p.mu.Unlock()
	}()

	if err := p.deps.Interaction.AddRating(ctx, p.MovieRef, score, v.Token); err != nil {
		p.report(err, "")
		return err
	}
	avg, err := p.deps.Interaction.AverageRating(ctx, p.MovieRef)
	p.mu.Lock()
	if err != nil {
		p.log.Warn("average rating fetch failed", zap.Error(err))
		p.ratingErr = comments.UserMessage(err)
	} else {
		p.rating = avg
		p.ratingErr = ""
	}
	p.mu.Unlock()
	p.report(nil, MsgRatingSaved)
	return nil
}

func (p *Page) DismissNotice(id string) bool { return p.notices.Dismiss(id) }
