package upstream

import (
	"context"
	"net/http"

	"github.com/example/movie-discovery/internal/platform/httpserver"
)

// Decorate sets the headers every upstream call carries: the inbound request
// id and, when token is set, the caller's bearer credential.
func Decorate(ctx context.Context, req *http.Request, token string) {
	if rid := httpserver.RequestIDFromContext(ctx); rid != "" {
		req.Header.Set(httpserver.RequestIDHeader, rid)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
