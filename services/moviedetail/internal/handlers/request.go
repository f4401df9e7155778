package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/movie-discovery/internal/platform/api"
	"github.com/example/movie-discovery/internal/platform/auth"
	"github.com/example/movie-discovery/services/moviedetail/internal/comments"
	"github.com/example/movie-discovery/services/moviedetail/internal/view"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

type textRequest struct {
	Text string `json:"text"`
}

type ratingRequest struct {
	Score int `json:"score"`
}

// decodeJSON reads up to maxRequestBodyBytes from r.Body and decodes JSON into dst.
// On failure it writes a 400 response and returns false.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, rid string, dst *T) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)).Decode(dst); err != nil {
		api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
		return false
	}
	return true
}

func viewerFrom(r *http.Request) comments.Viewer {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return comments.Viewer{}
	}
	return comments.Viewer{UserID: id.UserID, Name: id.Username, Token: id.Token}
}

func commentIDParam(w http.ResponseWriter, r *http.Request, rid string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "comment_id")), 10, 64)
	if err != nil || id <= 0 {
		api.BadRequest(w, "INVALID_ID", "comment_id must be a positive integer", rid, nil)
		return 0, false
	}
	return id, true
}

// writeError maps engine and view errors onto the API envelope.
func writeError(w http.ResponseWriter, rid string, err error) {
	var ve *comments.ValidationError
	var se *comments.ServiceError
	switch {
	case errors.Is(err, comments.ErrAuthRequired):
		api.Unauthorized(w, "AUTH_REQUIRED", "Sign in to continue", rid, map[string]any{"redirect": view.LoginPath})
	case errors.As(err, &ve):
		api.BadRequest(w, "VALIDATION", ve.Message, rid, map[string]any{"field": ve.Field})
	case errors.Is(err, comments.ErrNotAuthor):
		api.Forbidden(w, "NOT_AUTHOR", "Only the author can change this comment", rid)
	case errors.Is(err, comments.ErrReplyDepth):
		api.BadRequest(w, "REPLY_DEPTH", "Replies cannot be nested any deeper", rid, map[string]any{"max_depth": comments.MaxReplyDepth})
	case errors.Is(err, comments.ErrInFlight):
		api.Conflict(w, "IN_FLIGHT", "The same request is already in progress", rid, nil)
	case errors.Is(err, comments.ErrTombstoned):
		api.Conflict(w, "COMMENT_DELETED", "The comment has been deleted", rid, nil)
	case errors.Is(err, comments.ErrNoActiveMode):
		api.Conflict(w, "NO_ACTIVE_MODE", "Nothing to submit", rid, nil)
	case errors.Is(err, comments.ErrNotFound):
		api.NotFound(w, "COMMENT_NOT_FOUND", "Comment not found", rid)
	case errors.Is(err, view.ErrViewNotFound), errors.Is(err, comments.ErrClosed):
		api.NotFound(w, "VIEW_NOT_FOUND", "View session not found", rid)
	case errors.Is(err, view.ErrMissingMovie):
		api.BadRequest(w, "MISSING_ID", "movie_ref is required", rid, nil)
	case errors.As(err, &se):
		details := map[string]any{}
		if se.Status != 0 {
			details["upstream_status"] = se.Status
		}
		api.BadGateway(w, "UPSTREAM", se.UserMessage(), rid, details)
	default:
		api.Internal(w, rid)
	}
}
