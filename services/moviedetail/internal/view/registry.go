package view

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/movie-discovery/internal/platform/analytics"
	"github.com/example/movie-discovery/services/moviedetail/internal/comments"
)

var (
	ErrViewNotFound = errors.New("view: session not found")
	ErrMissingMovie = errors.New("view: movie reference is required")
)

const DefaultIdleTTL = 30 * time.Minute

// Registry tracks open pages and closes the ones left idle.
type Registry struct {
	deps    Deps
	idleTTL time.Duration
	log     *zap.Logger

	mu    sync.RWMutex
	pages map[string]*Page
}

func NewRegistry(deps Deps, idleTTL time.Duration) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Registry{
		deps:    deps,
		idleTTL: idleTTL,
		log:     deps.Logger,
		pages:   make(map[string]*Page),
	}
}

// Open creates a page for movieRef and loads its sections.
func (r *Registry) Open(ctx context.Context, movieRef string, v comments.Viewer) (*Page, error) {
	movieRef = strings.TrimSpace(movieRef)
	if movieRef == "" {
		return nil, ErrMissingMovie
	}
	p := newPage(uuid.NewString(), movieRef, v, r.deps)
	p.load(ctx)

	r.mu.Lock()
	r.pages[p.ID] = p
	r.mu.Unlock()

	r.deps.Events.Publish(analytics.SubjectMovieViewed, "movie_viewed", v.UserID, map[string]any{
		"movie_ref": movieRef,
	})
	r.log.Debug("view opened", zap.String("session_id", p.ID), zap.String("movie_ref", movieRef))
	return p, nil
}

// Get returns the page for id when it belongs to v, and marks it active.
// A signed-in owner calling without a usable token gets ErrAuthRequired so
// the client can send them to sign in.
func (r *Registry) Get(id string, v comments.Viewer) (*Page, error) {
	r.mu.RLock()
	p, ok := r.pages[id]
	r.mu.RUnlock()
	if !ok || p.Closed() {
		return nil, ErrViewNotFound
	}
	if err := checkOwner(p, v); err != nil {
		return nil, err
	}
	p.touch(v)
	return p, nil
}

func checkOwner(p *Page, v comments.Viewer) error {
	owner := p.Viewer().UserID
	switch {
	case owner == v.UserID:
		return nil
	case owner != "" && v.UserID == "":
		return comments.ErrAuthRequired
	default:
		return ErrViewNotFound
	}
}

// Close removes and closes the page for id.
func (r *Registry) Close(id string, v comments.Viewer) error {
	r.mu.Lock()
	p, ok := r.pages[id]
	if !ok {
		r.mu.Unlock()
		return ErrViewNotFound
	}
	if err := checkOwner(p, v); err != nil {
		r.mu.Unlock()
		return err
	}
	delete(r.pages, id)
	r.mu.Unlock()
	p.Close()
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pages)
}

// Sweep closes pages idle for longer than the TTL and returns how many.
func (r *Registry) Sweep() int {
	cutoff := r.deps.Now().Add(-r.idleTTL)
	var idle []*Page
	r.mu.Lock()
	for id, p := range r.pages {
		if p.idleSince().Before(cutoff) {
			idle = append(idle, p)
			delete(r.pages, id)
		}
	}
	r.mu.Unlock()
	for _, p := range idle {
		p.Close()
	}
	if len(idle) > 0 {
		r.log.Info("closed idle views", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

// CloseAll closes every page; used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	pages := r.pages
	r.pages = make(map[string]*Page)
	r.mu.Unlock()
	for _, p := range pages {
		p.Close()
	}
}
