package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"vidhub/internal/apperr"
	"vidhub/internal/models"
	"vidhub/internal/storage"
)

// AccessTokenCookie is the cookie that carries the access token.
const AccessTokenCookie = "accessToken"

type contextKey string

const userContextKey contextKey = "authenticatedUser"

// UserLookup resolves a token subject to a stored user.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}

type Authenticator struct {
	verifier *TokenVerifier
	users    UserLookup
}

func NewAuthenticator(verifier *TokenVerifier, users UserLookup) (*Authenticator, error) {
	if verifier == nil {
		return nil, errors.New("token verifier is required")
	}
	if users == nil {
		return nil, errors.New("user lookup is required")
	}
	return &Authenticator{verifier: verifier, users: users}, nil
}

// ExtractToken returns the access token carried by r. The cookie wins over
// the Authorization header.
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil {
		if value := strings.TrimSpace(cookie.Value); value != "" {
			return value
		}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// Authenticate resolves the caller of r. The returned user never carries
// credential material.
func (a *Authenticator) Authenticate(r *http.Request) (models.User, error) {
	token := ExtractToken(r)
	if token == "" {
		return models.User{}, apperr.Unauthenticated("unauthorized request")
	}
	userID, err := a.verifier.Verify(token)
	if err != nil {
		return models.User{}, apperr.Wrap(apperr.KindInvalidCredential, "invalid access token", err)
	}
	user, err := a.users.GetUser(r.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.User{}, apperr.InvalidCredential("invalid access token")
	}
	if err != nil {
		return models.User{}, apperr.Internal(err)
	}
	return user.Public(), nil
}

// ContextWithUser stores the authenticated user in ctx.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user from ctx if present.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}
