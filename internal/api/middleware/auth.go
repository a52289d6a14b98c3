package middleware

import (
	"context"
	"errors"
	"net/http"

	"guideboard/internal/common"
	"guideboard/internal/common/security"
	"guideboard/internal/domain/policy"

	"github.com/go-chi/jwtauth/v5"
)

type contextKey string

const (
	UserIDCtxKey    contextKey = "userID"
	PrincipalCtxKey contextKey = "principal"
)

// PrincipalLoader resolves the trusted role of an authenticated user.
type PrincipalLoader interface {
	Principal(ctx context.Context, userID string) (policy.Principal, error)
}

// Authenticator rejects requests without a valid token and stores the user id.
func Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil {
			if errors.Is(err, jwtauth.ErrNoTokenFound) {
				common.RespondWithError(w, http.StatusUnauthorized, "Authorization token required")
			} else {
				common.RespondWithError(w, http.StatusUnauthorized, "Invalid token: "+err.Error())
			}
			return
		}
		if token == nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		userID, err := security.GetUserIDFromClaims(claims)
		if err != nil {
			common.RespondWithError(w, http.StatusUnauthorized, "Invalid token claims: "+err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), UserIDCtxKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoadPrincipal looks up the caller's role in the profile store. The role
// claim inside the token is ignored.
func LoadPrincipal(loader PrincipalLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := GetUserIDFromContext(r.Context())
			if !ok {
				common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
				return
			}
			p, err := loader.Principal(r.Context(), userID)
			if err != nil {
				common.RespondWithErr(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), PrincipalCtxKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipalFromContext(r.Context())
		if !ok || !p.IsAdmin() {
			common.RespondWithError(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDCtxKey).(string)
	return userID, ok
}

func GetPrincipalFromContext(ctx context.Context) (policy.Principal, bool) {
	p, ok := ctx.Value(PrincipalCtxKey).(policy.Principal)
	return p, ok
}
