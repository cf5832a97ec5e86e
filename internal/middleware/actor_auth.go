package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/consertaja/backend/internal/models"
)

type contextKey string

const ctxActorKey contextKey = "actor"

// Actor is the caller identity resolved by the auth layer: who is making
// the request and in which role. The payment subsystem trusts it as given.
type Actor struct {
	ID   uuid.UUID
	Role string
}

// ActorAuth authenticates requests by verifying the Bearer token (HS256)
// and setting the resolved actor into request context. Claims: sub is the
// user id, role is one of CLIENT, PROFESSIONAL, ADMIN.
func ActorAuth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r)
			if raw == "" {
				http.Error(w, `{"error":"missing or malformed Authorization header"}`, http.StatusUnauthorized)
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			sub, err := claims.GetSubject()
			if err != nil {
				http.Error(w, `{"error":"invalid token subject"}`, http.StatusUnauthorized)
				return
			}
			id, err := uuid.Parse(sub)
			if err != nil {
				http.Error(w, `{"error":"invalid token subject"}`, http.StatusUnauthorized)
				return
			}
			role, _ := claims["role"].(string)
			switch role {
			case models.RoleClient, models.RoleProfessional, models.RoleAdmin:
			default:
				http.Error(w, `{"error":"unknown role"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ctxActorKey, &Actor{ID: id, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromCtx returns the authenticated actor or nil.
func ActorFromCtx(ctx context.Context) *Actor {
	a, _ := ctx.Value(ctxActorKey).(*Actor)
	return a
}

// WithActor returns a context carrying the given actor.
func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, ctxActorKey, a)
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
