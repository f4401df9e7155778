package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/example/movie-discovery/internal/platform/api"
	"github.com/example/movie-discovery/internal/platform/auth"
	"github.com/example/movie-discovery/internal/platform/httpserver"
	"github.com/example/movie-discovery/services/moviedetail/internal/interaction"
	"github.com/example/movie-discovery/services/moviedetail/internal/interaction/interactiontest"
	"github.com/example/movie-discovery/services/moviedetail/internal/view"
)

var testSecret = []byte("test-secret-key-32-bytes-long!!!")

const movie = "tt0111161"

func makeToken(subject, username string) string {
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Username: username,
	}
	signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	return signed
}

type env struct {
	srv    *interactiontest.Server
	router chi.Router
	alice  string
	bob    string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		srv:   interactiontest.NewServer(),
		alice: makeToken("10", "alice"),
		bob:   makeToken("11", "bob"),
	}
	t.Cleanup(e.srv.Close)
	e.srv.AddUser(e.alice, "10", "alice")
	e.srv.AddUser(e.bob, "11", "bob")

	client := interaction.New(e.srv.URL)
	reg := view.NewRegistry(view.Deps{Interaction: client}, time.Minute)
	r := chi.NewRouter()
	httpserver.SetupRouter(r)
	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalUser(auth.JWTVerifier{Secret: testSecret}))
		Mount(r, reg, client, nil)
	})
	e.router = r
	return e
}

func (e *env) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func (e *env) open(t *testing.T, token string) string {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/v1/movies/"+movie+"/views", token, "")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp openViewResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID == "" || resp.View.MovieRef != movie {
		t.Fatalf("unexpected open response %+v", resp)
	}
	return resp.SessionID
}

func decodeState(t *testing.T, rr *httptest.ResponseRecorder) view.State {
	t.Helper()
	var st view.State
	if err := json.NewDecoder(rr.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return st
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) api.APIError {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.Error
}

func TestAddComment_Created(t *testing.T) {
	e := newEnv(t)
	sid := e.open(t, e.alice)

	rr := e.do(t, http.MethodPost, "/v1/views/"+sid+"/comments", e.alice, `{"text":"hello"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	st := decodeState(t, rr)
	if len(st.Comments) != 1 || st.Comments[0].Content != "hello" {
		t.Fatalf("unexpected comments %+v", st.Comments)
	}
	if len(st.Notices) != 1 || st.Notices[0].Message != view.MsgCommentAdded {
		t.Fatalf("unexpected notices %+v", st.Notices)
	}
}

func TestAddComment_AnonymousRedirect(t *testing.T) {
	e := newEnv(t)
	sid := e.open(t, "")

	rr := e.do(t, http.MethodPost, "/v1/views/"+sid+"/comments", "", `{"text":"hello"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	apiErr := decodeError(t, rr)
	if apiErr.Code != "AUTH_REQUIRED" || apiErr.Details["redirect"] != "/login" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if e.srv.Calls(interactiontest.RouteCreate) != 0 {
		t.Fatalf("expected no upstream call")
	}
}

func TestAddComment_Validation(t *testing.T) {
	e := newEnv(t)
	sid := e.open(t, e.alice)

	rr := e.do(t, http.MethodPost, "/v1/views/"+sid+"/comments", e.alice, `{"text":"   "}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	apiErr := decodeError(t, rr)
	if apiErr.Code != "VALIDATION" || apiErr.Message != "Comment cannot be empty" || apiErr.Details["field"] != "text" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestAddComment_InvalidJSON(t *testing.T) {
	e := newEnv(t)
	sid := e.open(t, e.alice)
	rr := e.do(t, http.MethodPost, "/v1/views/"+sid+"/comments", e.alice, `{bad`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestEditFlow_NotAuthor(t *testing.T) {
	e := newEnv(t)
	id := e.srv.Seed(movie, "11", "bob", "bob's take", 0)
	sid := e.open(t, e.alice)

	rr := e.do(t, http.MethodPost, "/v1/views/"+sid+"/comments/"+strconv.FormatInt(id, 10)+"/edit", e.alice, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if code := decodeError(t, rr).Code; code != "NOT_AUTHOR" {
		t.Fatalf("expected NOT_AUTHOR, got %s", code)
	}
}

func TestEditFlow_SubmitSaves(t *testing.T) {
	e := newEnv(t)
	id := e.srv.Seed(movie, "10", "alice", "first draft", 0)
	sid := e.open(t, e.alice)
	base := "/v1/views/" + sid

	rr := e.do(t, http.MethodPost, base+"/comments/"+strconv.FormatInt(id, 10)+"/edit", e.alice, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if st := decodeState(t, rr); st.Mode.Kind != "editing" || st.Mode.Draft != "first draft" {
		t.Fatalf("unexpected mode %+v", st.Mode)
	}
	if rr := e.do(t, http.MethodPut, base+"/draft", e.alice, `{"text":"final"}`); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	rr = e.do(t, http.MethodPost, base+"/submit", e.alice, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	st := decodeState(t, rr)
	if st.Comments[0].Content != "final" || st.Mode.Kind != "none" {
		t.Fatalf("unexpected state %+v", st)
	}

	rr = e.do(t, http.MethodPost, base+"/submit", e.alice, "")
	if rr.Code != http.StatusConflict || decodeError(t, rr).Code != "NO_ACTIVE_MODE" {
		t.Fatalf("expected NO_ACTIVE_MODE conflict, got %d", rr.Code)
	}
}

func TestReply_DepthLimit(t *testing.T) {
	e := newEnv(t)
	parent := int64(0)
	for i := 0; i <= 5; i++ {
		parent = e.srv.Seed(movie, "11", "bob", "level", parent)
	}
	sid := e.open(t, e.alice)

	rr := e.do(t, http.MethodPost, "/v1/views/"+sid+"/comments/"+strconv.FormatInt(parent, 10)+"/reply", e.alice, "")
	if rr.Code != http.StatusBadRequest || decodeError(t, rr).Code != "REPLY_DEPTH" {
		t.Fatalf("expected REPLY_DEPTH, got %d", rr.Code)
	}
	rr = e.do(t, http.MethodPost, "/v1/views/"+sid+"/comments/"+strconv.FormatInt(parent-1, 10)+"/reply", e.alice, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected reply allowed at depth 4, got %d", rr.Code)
	}
}

func TestLikeAndCollapse(t *testing.T) {
	e := newEnv(t)
	root := e.srv.Seed(movie, "11", "bob", "root", 0)
	e.srv.Seed(movie, "11", "bob", "child", root)
	sid := e.open(t, e.alice)
	rootPath := "/v1/views/" + sid + "/comments/" + strconv.FormatInt(root, 10)

	rr := e.do(t, http.MethodPost, rootPath+"/like", e.alice, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if st := decodeState(t, rr); st.Comments[0].LikeCount != 1 || !st.Comments[0].LikedByMe {
		t.Fatalf("expected liked root, got %+v", st.Comments[0])
	}

	rr = e.do(t, http.MethodPost, rootPath+"/collapse", e.alice, "")
	if st := decodeState(t, rr); len(st.Comments) != 1 || !st.Comments[0].Collapsed {
		t.Fatalf("expected collapsed root, got %+v", st.Comments)
	}
}

func TestDelete_Tombstone(t *testing.T) {
	e := newEnv(t)
	root := e.srv.Seed(movie, "10", "alice", "mine", 0)
	e.srv.Seed(movie, "11", "bob", "child", root)
	sid := e.open(t, e.alice)

	rr := e.do(t, http.MethodDelete, "/v1/views/"+sid+"/comments/"+strconv.FormatInt(root, 10), e.alice, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	st := decodeState(t, rr)
	if len(st.Comments) != 2 || !st.Comments[0].Deleted || st.Comments[0].AuthorName != "[deleted]" {
		t.Fatalf("unexpected comments %+v", st.Comments)
	}
}

func TestUpstreamFailure(t *testing.T) {
	e := newEnv(t)
	id := e.srv.Seed(movie, "11", "bob", "x", 0)
	sid := e.open(t, e.alice)
	e.srv.Fail(interactiontest.RouteLike, http.StatusInternalServerError, `{"message":"likes are down"}`)

	rr := e.do(t, http.MethodPost, "/v1/views/"+sid+"/comments/"+strconv.FormatInt(id, 10)+"/like", e.alice, "")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	apiErr := decodeError(t, rr)
	if apiErr.Code != "UPSTREAM" || apiErr.Message != "likes are down" {
		t.Fatalf("unexpected error %+v", apiErr)
	}

	st := decodeState(t, e.do(t, http.MethodGet, "/v1/views/"+sid, e.alice, ""))
	if len(st.Notices) != 1 || st.Notices[0].Kind != view.NoticeError {
		t.Fatalf("expected error notice, got %+v", st.Notices)
	}
	rr = e.do(t, http.MethodDelete, "/v1/views/"+sid+"/notices/"+st.Notices[0].ID, e.alice, "")
	if st := decodeState(t, rr); len(st.Notices) != 0 {
		t.Fatalf("expected notice dismissed, got %+v", st.Notices)
	}
}

func TestViewOwnershipAndClose(t *testing.T) {
	e := newEnv(t)
	sid := e.open(t, e.alice)

	if rr := e.do(t, http.MethodGet, "/v1/views/"+sid, e.bob, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for other user, got %d", rr.Code)
	}
	if rr := e.do(t, http.MethodDelete, "/v1/views/"+sid, e.alice, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	rr := e.do(t, http.MethodGet, "/v1/views/"+sid, e.alice, "")
	if rr.Code != http.StatusNotFound || decodeError(t, rr).Code != "VIEW_NOT_FOUND" {
		t.Fatalf("expected VIEW_NOT_FOUND, got %d", rr.Code)
	}
}

func TestInvalidCommentID(t *testing.T) {
	e := newEnv(t)
	sid := e.open(t, e.alice)
	rr := e.do(t, http.MethodPost, "/v1/views/"+sid+"/comments/abc/like", e.alice, "")
	if rr.Code != http.StatusBadRequest || decodeError(t, rr).Code != "INVALID_ID" {
		t.Fatalf("expected INVALID_ID, got %d", rr.Code)
	}
}

func TestCommentLikes(t *testing.T) {
	e := newEnv(t)
	id := e.srv.Seed(movie, "11", "bob", "x", 0)
	sid := e.open(t, e.alice)
	e.do(t, http.MethodPost, "/v1/views/"+sid+"/comments/"+strconv.FormatInt(id, 10)+"/like", e.alice, "")

	rr := e.do(t, http.MethodGet, "/v1/comments/"+strconv.FormatInt(id, 10)+"/likes", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp likesResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CommentID != id || len(resp.Likes) != 1 || resp.Likes[0].Username != "alice" {
		t.Fatalf("unexpected likes %+v", resp)
	}
}

func TestOwnerWithoutToken_RedirectsToLogin(t *testing.T) {
	e := newEnv(t)
	sid := e.open(t, e.alice)

	for _, token := range []string{"", "not-a-jwt"} {
		rr := e.do(t, http.MethodPost, "/v1/views/"+sid+"/comments", token, `{"text":"hello"}`)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for token %q, got %d", token, rr.Code)
		}
		apiErr := decodeError(t, rr)
		if apiErr.Code != "AUTH_REQUIRED" || apiErr.Details["redirect"] != "/login" {
			t.Fatalf("unexpected error %+v", apiErr)
		}
	}
	if e.srv.Calls(interactiontest.RouteCreate) != 0 {
		t.Fatalf("expected no upstream call")
	}
}

func TestRateMovie(t *testing.T) {
	e := newEnv(t)
	e.srv.SetRatings(movie, 2)
	sid := e.open(t, e.alice)

	rr := e.do(t, http.MethodPost, "/v1/views/"+sid+"/rating", e.alice, `{"score":4}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	st := decodeState(t, rr)
	if st.AverageRating != 3 {
		t.Fatalf("expected average 3, got %v", st.AverageRating)
	}
	if len(st.Notices) != 1 || st.Notices[0].Message != view.MsgRatingSaved {
		t.Fatalf("unexpected notices %+v", st.Notices)
	}

	rr = e.do(t, http.MethodPost, "/v1/views/"+sid+"/rating", e.alice, `{"score":0}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if apiErr := decodeError(t, rr); apiErr.Code != "VALIDATION" || apiErr.Details["field"] != "score" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if n := e.srv.Calls(interactiontest.RouteRate); n != 1 {
		t.Fatalf("expected 1 rate call, got %d", n)
	}
}

func TestRateMovie_AnonymousRedirect(t *testing.T) {
	e := newEnv(t)
	sid := e.open(t, "")

	rr := e.do(t, http.MethodPost, "/v1/views/"+sid+"/rating", "", `{"score":5}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if apiErr := decodeError(t, rr); apiErr.Code != "AUTH_REQUIRED" || apiErr.Details["redirect"] != "/login" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
	if e.srv.Calls(interactiontest.RouteRate) != 0 {
		t.Fatalf("expected no upstream call")
	}
}
