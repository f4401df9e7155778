package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("test-secret-key-32-bytes-long!!!")

func makeToken(subject, username string, exp time.Time) string {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Username: username,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, _ := tok.SignedString(testSecret)
	return signed
}

func newVerifier() JWTVerifier { return JWTVerifier{Secret: testSecret} }

// ─── JWTVerifier tests ──────────────────────────────────────────────────────

func TestJWTVerifier_ValidToken(t *testing.T) {
	tok := makeToken("7", "ayse", time.Now().Add(time.Hour))
	claims, err := newVerifier().Parse(tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Subject != "7" {
		t.Fatalf("expected subject '7', got %q", claims.Subject)
	}
	if claims.Username != "ayse" {
		t.Fatalf("expected username 'ayse', got %q", claims.Username)
	}
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	tok := makeToken("7", "ayse", time.Now().Add(-time.Hour))
	if _, err := newVerifier().Parse(tok); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	tok := makeToken("7", "ayse", time.Now().Add(time.Hour))
	if _, err := (JWTVerifier{Secret: []byte("wrong-secret")}).Parse(tok); err == nil {
		t.Fatal("expected error for wrong secret")
	}
}

func TestJWTVerifier_TamperedPayload(t *testing.T) {
	tok := makeToken("7", "ayse", time.Now().Add(time.Hour))
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatal("expected 3 JWT parts")
	}
	tampered := parts[0] + ".dGFtcGVyZWQ." + parts[2]
	if _, err := newVerifier().Parse(tampered); err == nil {
		t.Fatal("expected error for tampered token")
	}
}

// ─── OptionalUser middleware tests ───────────────────────────────────────────

func callOptionalUser(req *http.Request) (Identity, bool) {
	var (
		got Identity
		ok  bool
	)
	rr := httptest.NewRecorder()
	OptionalUser(newVerifier())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, req)
	return got, ok
}

func TestOptionalUser_ValidBearer(t *testing.T) {
	tok := makeToken("42", "mehmet", time.Now().Add(time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	id, ok := callOptionalUser(req)
	if !ok {
		t.Fatal("expected identity in context")
	}
	if id.UserID != "42" || id.Username != "mehmet" {
		t.Fatalf("unexpected identity %+v", id)
	}
	if id.Token != tok {
		t.Fatal("expected raw token to be kept for forwarding")
	}
}

func TestOptionalUser_MissingHeaderIsAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := callOptionalUser(req); ok {
		t.Fatal("expected anonymous request")
	}
}

func TestOptionalUser_NonBearerSchemeIsAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if _, ok := callOptionalUser(req); ok {
		t.Fatal("expected anonymous request")
	}
}

func TestOptionalUser_ExpiredTokenIsAnonymous(t *testing.T) {
	tok := makeToken("42", "mehmet", time.Now().Add(-time.Hour))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	if _, ok := callOptionalUser(req); ok {
		t.Fatal("expected expired token to be ignored")
	}
}
