package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/movie-discovery/internal/platform/api"
	"github.com/example/movie-discovery/internal/platform/httpserver"
	"github.com/example/movie-discovery/services/moviedetail/internal/interaction"
)

type LikesSource interface {
	CommentLikes(ctx context.Context, id int64, token string) ([]interaction.CommentLike, error)
}

type likesResponse struct {
	CommentID int64                     `json:"comment_id"`
	Likes     []interaction.CommentLike `json:"likes"`
}

// CommentLikes handles GET /v1/comments/{comment_id}/likes
func CommentLikes(src LikesSource, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		id, ok := commentIDParam(w, r, rid)
		if !ok {
			return
		}
		likes, err := src.CommentLikes(r.Context(), id, viewerFrom(r).Token)
		if err != nil {
			log.Warn("comment likes fetch failed", zap.Int64("comment_id", id), zap.Error(err))
			writeError(w, rid, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, likesResponse{CommentID: id, Likes: likes})
	}
}
