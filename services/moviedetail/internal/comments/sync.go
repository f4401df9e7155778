package comments

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/example/movie-discovery/internal/platform/analytics"
)

// Request names used in ServiceError.Op.
const (
	OpFetch   = "fetch"
	OpRefresh = "refresh"
	OpAdd     = "add"
	OpReply   = "reply"
	OpUpdate  = "update"
	OpDelete  = "delete"
	OpLike    = "like"
)

// Service is the interaction backend the engine talks to. token is the
// viewer's bearer credential, empty for anonymous reads.
type Service interface {
	FetchTree(ctx context.Context, movieRef, token string) ([]Comment, error)
	CreateComment(ctx context.Context, movieRef, text, token string) error
	CreateReply(ctx context.Context, parentID int64, text, token string) error
	UpdateComment(ctx context.Context, id int64, text, token string) error
	DeleteComment(ctx context.Context, id int64, token string) error
	ToggleLike(ctx context.Context, id int64, token string) error
}

// EventSink receives an event for each successful mutation.
type EventSink interface {
	Publish(subject, eventName, userID string, props map[string]any)
}

type EngineOptions struct {
	Service  Service
	Store    *TreeStore
	Collapse *CollapseState
	InFlight *InFlight
	Events   EventSink
	Logger   *zap.Logger
	// OnIngest runs after every successful ingestion, under the engine lock.
	OnIngest func(*Snapshot)
}

// Engine runs mutations against the interaction service and re-ingests the
// full tree after each success. The store is never patched locally.
type Engine struct {
	movieRef string
	svc      Service
	store    *TreeStore
	collapse *CollapseState
	inflight *InFlight
	events   EventSink
	log      *zap.Logger
	onIngest func(*Snapshot)

	mu     sync.Mutex
	closed bool
}

func NewEngine(movieRef string, opts EngineOptions) *Engine {
	e := &Engine{
		movieRef: movieRef,
		svc:      opts.Service,
		store:    opts.Store,
		collapse: opts.Collapse,
		inflight: opts.InFlight,
		events:   opts.Events,
		log:      opts.Logger,
		onIngest: opts.OnIngest,
	}
	if e.store == nil {
		e.store = NewTreeStore(movieRef)
	}
	if e.collapse == nil {
		e.collapse = NewCollapseState()
	}
	if e.inflight == nil {
		e.inflight = NewInFlight()
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	e.log = e.log.With(zap.String("movie_ref", movieRef))
	return e
}

func (e *Engine) MovieRef() string { return e.movieRef }
func (e *Engine) Store() *TreeStore { return e.store }
func (e *Engine) Collapse() *CollapseState { return e.collapse }
func (e *Engine) InFlight() *InFlight { return e.inflight }
func (e *Engine) Reactions() Reactions { return NewReactions(e.store) }

// Close discards any refresh still pending. Later calls return ErrClosed.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Load performs the initial fetch. Failure is reported as a *LoadError and
// leaves the section empty.
func (e *Engine) Load(ctx context.Context, v Viewer) (*Snapshot, error) {
	snap, err := e.fetch(ctx, v, OpFetch)
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return nil, err
		}
		e.log.Warn("initial comment load failed", zap.Error(err))
		return nil, &LoadError{MovieRef: e.movieRef, Err: err}
	}
	return snap, nil
}

// Refresh re-fetches and ingests the tree.
func (e *Engine) Refresh(ctx context.Context, v Viewer) (*Snapshot, error) {
	return e.fetch(ctx, v, OpRefresh)
}

// AddComment posts a root comment for movieRef.
func (e *Engine) AddComment(ctx context.Context, v Viewer, text string) (*Snapshot, error) {
	body, err := e.precheck(v, text, "Comment cannot be empty")
	if err != nil {
		return nil, err
	}
	return e.mutate(ctx, v, MovieKey(e.movieRef), OpAdd, func(ctx context.Context) error {
		return e.svc.CreateComment(ctx, e.movieRef, body, v.Token)
	}, analytics.SubjectCommentCreated, map[string]any{"length": len(body)})
}

// AddReply posts a reply under parentID.
func (e *Engine) AddReply(ctx context.Context, v Viewer, parentID int64, text string) (*Snapshot, error) {
	body, err := e.precheck(v, text, "Reply cannot be empty")
	if err != nil {
		return nil, err
	}
	if _, err := e.target(parentID, false); err != nil {
		return nil, err
	}
	return e.mutate(ctx, v, CommentKey(parentID, ActionReply), OpReply, func(ctx context.Context) error {
		return e.svc.CreateReply(ctx, parentID, body, v.Token)
	}, analytics.SubjectCommentReplied, map[string]any{"parent_id": parentID, "length": len(body)})
}

// UpdateComment replaces the content of the viewer's own comment id.
func (e *Engine) UpdateComment(ctx context.Context, v Viewer, id int64, text string) (*Snapshot, error) {
	body, err := e.precheck(v, text, "Comment cannot be empty")
	if err != nil {
		return nil, err
	}
	if err := e.authorTarget(v, id); err != nil {
		return nil, err
	}
	return e.mutate(ctx, v, CommentKey(id, ActionEdit), OpUpdate, func(ctx context.Context) error {
		return e.svc.UpdateComment(ctx, id, body, v.Token)
	}, analytics.SubjectCommentUpdated, map[string]any{"comment_id": id, "length": len(body)})
}

// DeleteComment tombstones the viewer's own comment id. Replies stay.
func (e *Engine) DeleteComment(ctx context.Context, v Viewer, id int64) (*Snapshot, error) {
	if !v.Authenticated() {
		return nil, ErrAuthRequired
	}
	if err := e.authorTarget(v, id); err != nil {
		return nil, err
	}
	return e.mutate(ctx, v, CommentKey(id, ActionDelete), OpDelete, func(ctx context.Context) error {
		return e.svc.DeleteComment(ctx, id, v.Token)
	}, analytics.SubjectCommentDeleted, map[string]any{"comment_id": id})
}

// LikeToggle flips the viewer's like on id. The resulting count is whatever
// the following refresh reports.
func (e *Engine) LikeToggle(ctx context.Context, v Viewer, id int64) (*Snapshot, error) {
	if !v.Authenticated() {
		return nil, ErrAuthRequired
	}
	if _, err := e.target(id, false); err != nil {
		return nil, err
	}
	return e.mutate(ctx, v, CommentKey(id, ActionLike), OpLike, func(ctx context.Context) error {
		return e.svc.ToggleLike(ctx, id, v.Token)
	}, analytics.SubjectCommentLiked, map[string]any{"comment_id": id})
}

func (e *Engine) precheck(v Viewer, text, emptyMsg string) (string, error) {
	if !v.Authenticated() {
		return "", ErrAuthRequired
	}
	body := strings.TrimSpace(text)
	if body == "" {
		return "", &ValidationError{Field: "text", Message: emptyMsg}
	}
	return body, nil
}

// target looks id up in the current snapshot. Tombstones accept no actions.
func (e *Engine) target(id int64, allowDeleted bool) (Located, error) {
	loc, ok := e.store.Snapshot().Find(id)
	if !ok {
		return Located{}, ErrNotFound
	}
	if !allowDeleted && loc.Comment.Deleted() {
		return Located{}, ErrTombstoned
	}
	return loc, nil
}

func (e *Engine) authorTarget(v Viewer, id int64) error {
	loc, err := e.target(id, false)
	if err != nil {
		return err
	}
	if !v.Owns(*loc.Comment) {
		return ErrNotAuthor
	}
	return nil
}

func (e *Engine) mutate(ctx context.Context, v Viewer, key InFlightKey, op string, call func(context.Context) error, subject string, props map[string]any) (*Snapshot, error) {
	if e.Closed() {
		return nil, ErrClosed
	}
	release, ok := e.inflight.Acquire(key)
	if !ok {
		return nil, ErrInFlight
	}
	defer release()

	if err := call(ctx); err != nil {
		e.log.Warn("comment mutation failed", zap.String("op", op), zap.String("target", key.Target), zap.Error(err))
		return nil, asServiceError(op, err)
	}
	e.publish(v, subject, op, props)

	snap, err := e.fetch(ctx, v, OpRefresh)
	if err != nil {
		return nil, err
	}
	e.log.Debug("comment mutation applied", zap.String("op", op), zap.String("target", key.Target), zap.Uint64("version", snap.Version))
	return snap, nil
}

func (e *Engine) fetch(ctx context.Context, v Viewer, op string) (*Snapshot, error) {
	if e.Closed() {
		return nil, ErrClosed
	}
	tree, err := e.svc.FetchTree(ctx, e.movieRef, v.Token)
	if err != nil {
		return nil, asServiceError(op, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		e.log.Debug("discarding refresh for closed view")
		return nil, ErrClosed
	}
	snap, err := e.store.Ingest(tree)
	if err != nil {
		e.log.Warn("rejected comment tree", zap.Error(err))
		return nil, &ServiceError{Op: op, Err: err}
	}
	if n := e.collapse.Prune(snap); n > 0 {
		e.log.Debug("pruned collapse state", zap.Int("removed", n))
	}
	if e.onIngest != nil {
		e.onIngest(snap)
	}
	return snap, nil
}

func (e *Engine) publish(v Viewer, subject, op string, props map[string]any) {
	if e.events == nil {
		return
	}
	if props == nil {
		props = map[string]any{}
	}
	props["movie_ref"] = e.movieRef
	e.events.Publish(subject, "comment_"+op, v.UserID, props)
}

// asServiceError labels err with the engine's op, keeping any upstream
// status and message.
func asServiceError(op string, err error) error {
	var se *ServiceError
	if errors.As(err, &se) {
		out := *se
		out.Op = op
		return &out
	}
	return &ServiceError{Op: op, Err: err}
}

// IsRefreshFailure reports whether err came from the refresh that follows a
// mutation rather than from the mutation itself.
func IsRefreshFailure(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Op == OpRefresh
}
