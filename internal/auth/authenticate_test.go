package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"vidhub/internal/apperr"
	"vidhub/internal/models"
	"vidhub/internal/storage"
)

type stubUsers struct {
	users map[string]models.User
	err   error
}

func (s stubUsers) GetUser(_ context.Context, id string) (models.User, error) {
	if s.err != nil {
		return models.User{}, s.err
	}
	user, ok := s.users[id]
	if !ok {
		return models.User{}, storage.ErrNotFound
	}
	return user, nil
}

func newTestVerifier(t *testing.T, opts ...VerifierOption) *TokenVerifier {
	t.Helper()
	verifier, err := NewTokenVerifier(Config{Secret: "test-secret", TTL: time.Hour}, opts...)
	if err != nil {
		t.Fatalf("NewTokenVerifier: %v", err)
	}
	return verifier
}

func newTestAuthenticator(t *testing.T, users UserLookup) (*Authenticator, *TokenVerifier) {
	t.Helper()
	verifier := newTestVerifier(t)
	authenticator, err := NewAuthenticator(verifier, users)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	return authenticator, verifier
}

func mustIssue(t *testing.T, verifier *TokenVerifier, userID string) string {
	t.Helper()
	token, _, err := verifier.Issue(userID)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func TestNewTokenVerifierRequiresSecret(t *testing.T) {
	if _, err := NewTokenVerifier(Config{}); !errors.Is(err, ErrSecretRequired) {
		t.Fatalf("expected ErrSecretRequired, got %v", err)
	}
}

func TestIssueAndVerify(t *testing.T) {
	verifier := newTestVerifier(t)
	token, expiresAt, err := verifier.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Fatalf("expected future expiry, got %v", expiresAt)
	}
	subject, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if subject != "user-1" {
		t.Fatalf("expected subject user-1, got %q", subject)
	}
	if _, _, err := verifier.Issue("  "); !errors.Is(err, ErrSubjectMissing) {
		t.Fatalf("expected ErrSubjectMissing, got %v", err)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	issuer := newTestVerifier(t, WithClock(func() time.Time { return past }))
	token := mustIssue(t, issuer, "user-1")
	if _, err := newTestVerifier(t).Verify(token); err == nil {
		t.Fatal("expected expired token to fail verification")
	}

	eternal, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "user-1"}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := newTestVerifier(t).Verify(eternal); !errors.Is(err, ErrExpiryMissing) {
		t.Fatalf("expected token without expiry to be rejected, got %v", err)
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	other, err := NewTokenVerifier(Config{Secret: "other-secret"})
	if err != nil {
		t.Fatalf("NewTokenVerifier: %v", err)
	}
	token := mustIssue(t, other, "user-1")
	if _, err := newTestVerifier(t).Verify(token); err == nil {
		t.Fatal("expected signature mismatch")
	}
	if _, err := newTestVerifier(t).Verify("not-a-jwt"); err == nil {
		t.Fatal("expected malformed token to fail")
	}
}

func TestVerifyRejectsUnexpectedAlgorithm(t *testing.T) {
	claims := Claims{UserID: "user-1", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := newTestVerifier(t).Verify(token); err == nil {
		t.Fatal("expected HS512 token to be rejected")
	}
}

func TestVerifyAcceptsSubFallback(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-9",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	subject, err := newTestVerifier(t).Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if subject != "user-9" {
		t.Fatalf("expected user-9, got %q", subject)
	}
}

func TestExtractTokenPrefersCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "cookie-token"})
	if got := ExtractToken(req); got != "cookie-token" {
		t.Fatalf("expected cookie token, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer  header-token ")
	if got := ExtractToken(req); got != "header-token" {
		t.Fatalf("expected header token, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	if got := ExtractToken(req); got != "" {
		t.Fatalf("expected no token for basic auth, got %q", got)
	}
}

func TestAuthenticateResolvesPublicUser(t *testing.T) {
	users := stubUsers{users: map[string]models.User{
		"user-1": {ID: "user-1", Username: "ada", PasswordHash: "hash", RefreshToken: "refresh"},
	}}
	authenticator, verifier := newTestAuthenticator(t, users)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mustIssue(t, verifier, "user-1"))

	user, err := authenticator.Authenticate(req)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.ID != "user-1" || user.Username != "ada" {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.PasswordHash != "" || user.RefreshToken != "" {
		t.Fatalf("expected credentials stripped, got %+v", user)
	}
}

func TestAuthenticateErrors(t *testing.T) {
	users := stubUsers{users: map[string]models.User{}}
	authenticator, verifier := newTestAuthenticator(t, users)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := authenticator.Authenticate(req); apperr.KindOf(err) != apperr.KindUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "garbage"})
	if _, err := authenticator.Authenticate(req); apperr.KindOf(err) != apperr.KindInvalidCredential {
		t.Fatalf("expected invalid credential, got %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: mustIssue(t, verifier, "ghost")})
	if _, err := authenticator.Authenticate(req); apperr.KindOf(err) != apperr.KindInvalidCredential {
		t.Fatalf("expected invalid credential for missing user, got %v", err)
	}

	failing, _ := newTestAuthenticator(t, stubUsers{err: errors.New("db down")})
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: mustIssue(t, verifier, "user-1")})
	if _, err := failing.Authenticate(req); apperr.KindOf(err) != apperr.KindInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestUserContextRoundTrip(t *testing.T) {
	if _, ok := UserFromContext(context.Background()); ok {
		t.Fatal("expected no user in empty context")
	}
	ctx := ContextWithUser(context.Background(), models.User{ID: "user-1"})
	user, ok := UserFromContext(ctx)
	if !ok || user.ID != "user-1" {
		t.Fatalf("unexpected context user %+v, %v", user, ok)
	}
}
