package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-dream-go/internal/apierr"
	"github.com/ovaphlow/pitchfork/service-dream-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-dream-go/internal/user/repo"
)

// UserLookup is the credential store read used for the version check.
type UserLookup interface {
	Get(ctx context.Context, email string) (*entity.User, error)
}

// Resolver turns a request's bearer token into the caller's email.
type Resolver struct {
	tokens *Service
	users  UserLookup
	logger *zap.SugaredLogger
}

func NewResolver(tokens *Service, users UserLookup, logger *zap.SugaredLogger) *Resolver {
	return &Resolver{tokens: tokens, users: users, logger: logger}
}

// BearerToken extracts the credential from an "Authorization: Bearer x" header.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < len("bearer ") || !strings.EqualFold(auth[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[len("bearer "):])
}

// ResolveIdentity verifies the bearer token and requires its version to equal
// the stored user's current tokenVersion.
func (rv *Resolver) ResolveIdentity(r *http.Request) (string, error) {
	raw := BearerToken(r)
	if raw == "" {
		return "", ErrMissingToken
	}
	claims, err := rv.tokens.Verify(raw)
	if err != nil {
		return "", err
	}
	u, err := rv.users.Get(r.Context(), claims.Email)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return "", fmt.Errorf("%w: unknown subject", ErrInvalidToken)
		}
		return "", fmt.Errorf("load user: %w", err)
	}
	if u.TokenVersion != claims.TokenVersion {
		return "", ErrRevoked
	}
	return u.Email, nil
}

// IsAuthError reports whether err means the caller is not authenticated, as
// opposed to a store failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrMissingToken) || errors.Is(err, ErrRevoked)
}

// Require rejects unauthenticated requests with 401 and stores the caller's
// email in the request context.
func (rv *Resolver) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, err := rv.ResolveIdentity(r)
		if err != nil {
			if IsAuthError(err) {
				apierr.Write(w, rv.logger, fmt.Errorf("%w: %v", apierr.ErrUnauthorized, err))
				return
			}
			apierr.Write(w, rv.logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), email)))
	})
}

type ctxKey struct{}

// WithUser returns ctx carrying the authenticated email.
func WithUser(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, ctxKey{}, email)
}

// UserFromContext returns the authenticated email set by Require.
func UserFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(ctxKey{}).(string)
	return email, ok && email != ""
}
