// Package interactiontest is an in-memory interaction service for tests.
package interactiontest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/movie-discovery/services/moviedetail/internal/comments"
)

// Route names accepted by Fail and Calls.
const (
	RouteTree           = "tree"
	RouteCreate         = "create"
	RouteReply          = "reply"
	RouteUpdate         = "update"
	RouteDelete         = "delete"
	RouteLike           = "like"
	RouteLikes          = "likes"
	RouteRating         = "rating"
	RouteRate           = "rate"
	RouteFavorites      = "favorites"
	RouteFavoriteAdd    = "favorite_add"
	RouteFavoriteRemove = "favorite_remove"
)

type user struct {
	id   string
	name string
}

type record struct {
	id        int64
	movieRef  string
	userID    string
	username  string
	content   string
	createdAt time.Time
	parentID  *int64
	children  []int64
}

type failure struct {
	status int
	body   string
}

type like struct {
	userID   string
	username string
	at       time.Time
}

// Server fakes the interaction service over httptest.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	nextID    int64
	users     map[string]user // token -> user
	records   map[int64]*record
	roots     map[string][]int64 // movieRef -> root ids
	likes     map[int64][]like
	ratings   map[string][]float64
	favorites map[string][]string // userID -> movieRefs
	fail      map[string]failure
	calls     map[string]int
	bodies    []string
	hold      map[string]chan struct{}
}

func NewServer() *Server {
	s := &Server{
		nextID:    1,
		users:     make(map[string]user),
		records:   make(map[int64]*record),
		roots:     make(map[string][]int64),
		likes:     make(map[int64][]like),
		ratings:   make(map[string][]float64),
		favorites: make(map[string][]string),
		fail:      make(map[string]failure),
		calls:     make(map[string]int),
		hold:      make(map[string]chan struct{}),
	}
	r := chi.NewRouter()
	r.Get("/api/home/comment/{ref}/with-likes-and-replies", s.route(RouteTree, s.handleTree))
	r.Post("/api/home/comment/{ref}/reply", s.route(RouteReply, s.handleReply))
	r.Post("/api/home/comment/{ref}/like", s.route(RouteLike, s.handleLike))
	r.Get("/api/home/comment/{ref}/likes", s.route(RouteLikes, s.handleLikes))
	r.Post("/api/home/comment/{ref}", s.route(RouteCreate, s.handleCreate))
	r.Put("/api/home/comment/{ref}", s.route(RouteUpdate, s.handleUpdate))
	r.Delete("/api/home/comment/{ref}", s.route(RouteDelete, s.handleDelete))
	r.Get("/api/home/rate/{movie}/average", s.route(RouteRating, s.handleRating))
	r.Post("/api/home/rate/{movie}", s.route(RouteRate, s.handleRate))
	r.Get("/api/home/favorite", s.route(RouteFavorites, s.handleFavorites))
	r.Post("/api/home/favorite/{movie}", s.route(RouteFavoriteAdd, s.handleFavoriteAdd))
	r.Delete("/api/home/favorite/{movie}", s.route(RouteFavoriteRemove, s.handleFavoriteRemove))
	s.Server = httptest.NewServer(r)
	return s
}

// AddUser registers a bearer token for a user.
func (s *Server) AddUser(token, userID, username string) {
	s.mu.Lock()
	s.users[token] = user{id: userID, name: username}
	s.mu.Unlock()
}

// Seed inserts a comment directly and returns its id. parentID 0 makes a root.
func (s *Server) Seed(movieRef, userID, username, content string, parentID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pid *int64
	if parentID != 0 {
		pid = &parentID
	}
	return s.insert(movieRef, user{id: userID, name: username}, content, pid)
}

// SetRatings replaces the scores recorded for movieRef.
func (s *Server) SetRatings(movieRef string, scores ...float64) {
	s.mu.Lock()
	s.ratings[movieRef] = scores
	s.mu.Unlock()
}

// Fail makes every request to route answer status with body until Recover.
func (s *Server) Fail(route string, status int, body string) {
	s.mu.Lock()
	s.fail[route] = failure{status: status, body: body}
	s.mu.Unlock()
}

func (s *Server) Recover(route string) {
	s.mu.Lock()
	delete(s.fail, route)
	s.mu.Unlock()
}

// Hold blocks requests to route until the returned func is called.
func (s *Server) Hold(route string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.hold[route] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.hold, route)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns how many requests reached route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Bodies returns the raw text bodies received, in order.
func (s *Server) Bodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.bodies...)
}

// Content returns the stored content of comment id.
func (s *Server) Content(id int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return "", false
	}
	return rec.content, true
}

func (s *Server) route(name string, h func(w http.ResponseWriter, r *http.Request, u *user)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[name]++
		ch := s.hold[name]
		s.mu.Unlock()
		if ch != nil {
			<-ch
		}

		s.mu.Lock()
		f, failing := s.fail[name]
		s.mu.Unlock()
		if failing {
			w.WriteHeader(f.status)
			_, _ = w.Write([]byte(f.body))
			return
		}
		h(w, r, s.caller(r))
	}
}

func (s *Server) caller(r *http.Request) *user {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.TrimPrefix(authz, "Bearer ")]
	if !ok {
		return nil
	}
	return &u
}

func (s *Server) insert(movieRef string, u user, content string, parentID *int64) int64 {
	id := s.nextID
	s.nextID++
	rec := &record{
		id:        id,
		movieRef:  movieRef,
		userID:    u.id,
		username:  u.name,
		content:   content,
		createdAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Minute),
		parentID:  parentID,
	}
	s.records[id] = rec
	if parentID == nil {
		s.roots[movieRef] = append(s.roots[movieRef], id)
	} else if p, ok := s.records[*parentID]; ok {
		p.children = append(p.children, id)
	}
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func (s *Server) readText(w http.ResponseWriter, r *http.Request) (string, bool) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "unreadable body")
		return "", false
	}
	s.mu.Lock()
	s.bodies = append(s.bodies, string(b))
	s.mu.Unlock()
	return string(b), true
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*record, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "ref"), 10, 64)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return nil, false
	}
	rec, ok := s.records[id]
	if !ok {
		writeMessage(w, http.StatusNotFound, "Comment not found")
		return nil, false
	}
	return rec, true
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request, u *user) {
	movieRef := chi.URLParam(r, "ref")
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.build(s.roots[movieRef], u))
}

func (s *Server) build(ids []int64, u *user) []comments.Comment {
	out := make([]comments.Comment, 0, len(ids))
	for _, id := range ids {
		rec := s.records[id]
		c := comments.Comment{
			ID:         rec.id,
			AuthorID:   comments.UserID(rec.userID),
			AuthorName: rec.username,
			Content:    rec.content,
			CreatedAt:  comments.Timestamp{Time: rec.createdAt},
			ParentID:   rec.parentID,
			Replies:    s.build(rec.children, u),
			LikeCount:  len(s.likes[id]),
		}
		if rec.parentID == nil {
			c.MovieRef = rec.movieRef
		}
		if u != nil {
			c.LikedByCurrentUser = s.likedBy(id, u.id) >= 0
		}
		out = append(out, c)
	}
	return out
}

func (s *Server) likedBy(id int64, userID string) int {
	for i, l := range s.likes[id] {
		if l.userID == userID {
			return i
		}
	}
	return -1
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, u *user) {
	if u == nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	text, ok := s.readText(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	id := s.insert(chi.URLParam(r, "ref"), *u, text, nil)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request, u *user) {
	if u == nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	text, ok := s.readText(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.lookup(w, r)
	if !ok {
		return
	}
	pid := parent.id
	id := s.insert(parent.movieRef, *u, text, &pid)
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, u *user) {
	if u == nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	text, ok := s.readText(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if rec.userID != u.id {
		writeMessage(w, http.StatusForbidden, "You can only edit your own comments")
		return
	}
	rec.content = text
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, u *user) {
	if u == nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if rec.userID != u.id {
		writeMessage(w, http.StatusForbidden, "You can only delete your own comments")
		return
	}
	rec.content = comments.TombstoneMarker
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request, u *user) {
	if u == nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if i := s.likedBy(rec.id, u.id); i >= 0 {
		s.likes[rec.id] = append(s.likes[rec.id][:i], s.likes[rec.id][i+1:]...)
	} else {
		s.likes[rec.id] = append(s.likes[rec.id], like{userID: u.id, username: u.name, at: time.Now().UTC()})
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleLikes(w http.ResponseWriter, r *http.Request, _ *user) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.lookup(w, r)
	if !ok {
		return
	}
	out := make([]map[string]any, 0, len(s.likes[rec.id]))
	for _, l := range s.likes[rec.id] {
		out = append(out, map[string]any{
			"commentId": rec.id,
			"userId":    l.userID,
			"username":  l.username,
			"imdbId":    rec.movieRef,
			"likedAt":   l.at.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRating(w http.ResponseWriter, r *http.Request, _ *user) {
	s.mu.Lock()
	scores := s.ratings[chi.URLParam(r, "movie")]
	s.mu.Unlock()
	if len(scores) == 0 {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	var sum float64
	for _, v := range scores {
		sum += v
	}
	writeJSON(w, http.StatusOK, sum/float64(len(scores)))
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request, u *user) {
	if u == nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var score float64
	if err := json.NewDecoder(r.Body).Decode(&score); err != nil {
		writeMessage(w, http.StatusBadRequest, "score must be a number")
		return
	}
	ref := chi.URLParam(r, "movie")
	s.mu.Lock()
	s.ratings[ref] = append(s.ratings[ref], score)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleFavorites(w http.ResponseWriter, _ *http.Request, u *user) {
	if u == nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]string, 0, len(s.favorites[u.id]))
	for _, ref := range s.favorites[u.id] {
		out = append(out, map[string]string{"imdbId": ref})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFavoriteAdd(w http.ResponseWriter, r *http.Request, u *user) {
	if u == nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	ref := chi.URLParam(r, "movie")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, have := range s.favorites[u.id] {
		if have == ref {
			writeMessage(w, http.StatusConflict, "Already in favorites")
			return
		}
	}
	s.favorites[u.id] = append(s.favorites[u.id], ref)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleFavoriteRemove(w http.ResponseWriter, r *http.Request, u *user) {
	if u == nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	ref := chi.URLParam(r, "movie")
	s.mu.Lock()
	defer s.mu.Unlock()
	favs := s.favorites[u.id]
	for i, have := range favs {
		if have == ref {
			s.favorites[u.id] = append(favs[:i], favs[i+1:]...)
			break
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
