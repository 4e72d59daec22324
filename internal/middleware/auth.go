package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mentorlink/internal/auth"
	"github.com/mentorlink/internal/model"
)

// UserResolver loads the account behind a token so disabled users can be
// rejected even while their token is still formally valid.
type UserResolver interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// JWTAuth validates the bearer token (Authorization header, or ?token= for
// the websocket upgrade where browsers cannot set headers) and puts the user
// id and role into the request context.
func JWTAuth(authn *auth.Authenticator, users UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			claims, err := authn.ValidateToken(token)
			if err != nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			user, err := users.GetByID(r.Context(), claims.UserID)
			if err != nil || !user.Active() {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, user.ID)
			ctx = context.WithValue(ctx, RoleKey, user.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}
