package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hopround/hopround-backend/api/responses"
	pkgauth "github.com/hopround/hopround-backend/pkg/auth"
	"github.com/hopround/hopround-backend/pkg/config"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the
// participant identity the token was minted for.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.ParticipantID == uuid.Nil || claims.RouteID == uuid.Nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "token missing identity"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxParticipantID, claims.ParticipantID)
			ctx = context.WithValue(ctx, ctxRouteID, claims.RouteID)
			ctx = context.WithValue(ctx, ctxIsGuest, claims.IsGuest)

			if logg != nil {
				ctx = logg.WithParticipantID(ctx, claims.ParticipantID.String())
				ctx = logg.WithRouteID(ctx, claims.RouteID.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RouteScope rejects requests whose {routeID} path param does not match the
// route the token is scoped to. A token never reaches across routes.
func RouteScope(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			param := chi.URLParam(r, "routeID")
			if param == "" {
				next.ServeHTTP(w, r)
				return
			}
			routeID, err := uuid.Parse(param)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid route id"))
				return
			}
			if scoped := RouteIDFromContext(r.Context()); scoped != uuid.Nil && scoped != routeID {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "token not valid for this route"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
