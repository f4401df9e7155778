package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/movie-discovery/internal/platform/api"
	"github.com/example/movie-discovery/internal/platform/httpserver"
	"github.com/example/movie-discovery/internal/platform/logging"
	"github.com/example/movie-discovery/services/moviedetail/internal/view"
)

type openViewResponse struct {
	SessionID string     `json:"session_id"`
	View      view.State `json:"view"`
}

// Mount registers the view routes on r.
func Mount(r chi.Router, reg *view.Registry, likes LikesSource, log *zap.Logger) {
	log = logging.OrNop(log)
	r.Post("/v1/movies/{movie_ref}/views", OpenView(reg, log))
	r.Route("/v1/views/{session_id}", func(r chi.Router) {
		r.Get("/", GetView(reg))
		r.Delete("/", CloseView(reg))
		r.Post("/refresh", pageAction(reg, func(r *http.Request, p *view.Page) error {
			return p.Refresh(r.Context())
		}))
		r.Post("/comments", AddComment(reg))
		r.Post("/comments/{comment_id}/collapse", commentAction(reg, func(r *http.Request, p *view.Page, id int64) error {
			_, err := p.ToggleCollapse(r.Context(), id)
			return err
		}))
		r.Post("/comments/{comment_id}/reply", commentAction(reg, func(_ *http.Request, p *view.Page, id int64) error {
			_, err := p.ToggleReply(id)
			return err
		}))
		r.Post("/comments/{comment_id}/edit", commentAction(reg, func(_ *http.Request, p *view.Page, id int64) error {
			_, err := p.StartEdit(id)
			return err
		}))
		r.Post("/comments/{comment_id}/like", commentAction(reg, func(r *http.Request, p *view.Page, id int64) error {
			return p.Like(r.Context(), id)
		}))
		r.Delete("/comments/{comment_id}", commentAction(reg, func(r *http.Request, p *view.Page, id int64) error {
			return p.Delete(r.Context(), id)
		}))
		r.Put("/draft", SetDraft(reg))
		r.Post("/submit", pageAction(reg, func(r *http.Request, p *view.Page) error {
			return p.Submit(r.Context())
		}))
		r.Post("/cancel", pageAction(reg, func(_ *http.Request, p *view.Page) error {
			p.Cancel()
			return nil
		}))
		r.Post("/favorite", pageAction(reg, func(r *http.Request, p *view.Page) error {
			return p.ToggleFavorite(r.Context())
		}))
		r.Post("/rating", RateMovie(reg))
		r.Delete("/notices/{notice_id}", DismissNotice(reg))
	})
	if likes != nil {
		r.Get("/v1/comments/{comment_id}/likes", CommentLikes(likes, log))
	}
}

// OpenView handles POST /v1/movies/{movie_ref}/views
func OpenView(reg *view.Registry, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		movieRef := strings.TrimSpace(chi.URLParam(r, "movie_ref"))
		p, err := reg.Open(r.Context(), movieRef, viewerFrom(r))
		if err != nil {
			log.Warn("open view failed", zap.String("movie_ref", movieRef), zap.Error(err))
			writeError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, openViewResponse{SessionID: p.ID, View: p.Render()})
	}
}

// GetView handles GET /v1/views/{session_id}
func GetView(reg *view.Registry) http.HandlerFunc {
	return pageAction(reg, func(*http.Request, *view.Page) error { return nil })
}

// CloseView handles DELETE /v1/views/{session_id}
func CloseView(reg *view.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		if err := reg.Close(chi.URLParam(r, "session_id"), viewerFrom(r)); err != nil {
			writeError(w, rid, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// AddComment handles POST /v1/views/{session_id}/comments
func AddComment(reg *view.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		p, ok := page(w, r, reg, rid)
		if !ok {
			return
		}
		var req textRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if err := p.AddComment(r.Context(), req.Text); err != nil {
			writeError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusCreated, p.Render())
	}
}

// RateMovie handles POST /v1/views/{session_id}/rating
func RateMovie(reg *view.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		p, ok := page(w, r, reg, rid)
		if !ok {
			return
		}
		var req ratingRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if err := p.Rate(r.Context(), req.Score); err != nil {
			writeError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, p.Render())
	}
}

// SetDraft handles PUT /v1/views/{session_id}/draft
func SetDraft(reg *view.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		p, ok := page(w, r, reg, rid)
		if !ok {
			return
		}
		var req textRequest
		if !decodeJSON(w, r, rid, &req) {
			return
		}
		if _, err := p.SetDraft(req.Text); err != nil {
			writeError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, p.Render())
	}
}

// DismissNotice handles DELETE /v1/views/{session_id}/notices/{notice_id}
func DismissNotice(reg *view.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		p, ok := page(w, r, reg, rid)
		if !ok {
			return
		}
		if !p.DismissNotice(chi.URLParam(r, "notice_id")) {
			api.NotFound(w, "NOTICE_NOT_FOUND", "Notice not found", rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, p.Render())
	}
}

func page(w http.ResponseWriter, r *http.Request, reg *view.Registry, rid string) (*view.Page, bool) {
	p, err := reg.Get(chi.URLParam(r, "session_id"), viewerFrom(r))
	if err != nil {
		writeError(w, rid, err)
		return nil, false
	}
	return p, true
}

// pageAction runs fn against the session's page and answers with its render.
func pageAction(reg *view.Registry, fn func(*http.Request, *view.Page) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		p, ok := page(w, r, reg, rid)
		if !ok {
			return
		}
		if err := fn(r, p); err != nil {
			writeError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, p.Render())
	}
}

// commentAction is pageAction for routes addressing one comment.
func commentAction(reg *view.Registry, fn func(*http.Request, *view.Page, int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		id, ok := commentIDParam(w, r, rid)
		if !ok {
			return
		}
		pageAction(reg, func(r *http.Request, p *view.Page) error {
			return fn(r, p, id)
		}).ServeHTTP(w, r)
	}
}
