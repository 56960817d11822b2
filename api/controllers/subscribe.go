package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hopround/hopround-backend/api/responses"
	"github.com/hopround/hopround-backend/internal/realtime"
	pkgauth "github.com/hopround/hopround-backend/pkg/auth"
	"github.com/hopround/hopround-backend/pkg/config"
	pkgerrors "github.com/hopround/hopround-backend/pkg/errors"
	"github.com/hopround/hopround-backend/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS layer; the token gates access.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Subscribe upgrades to a websocket and streams the route: one snapshot
// frame, then incremental events. Browsers cannot set headers on a websocket
// handshake, so the token may also arrive as a query parameter.
func Subscribe(jwtCfg config.JWTConfig, hub *realtime.Hub, snapshots *realtime.SnapshotBuilder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID, err := routeIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		claims, err := subscribeClaims(jwtCfg, r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if claims.RouteID != routeID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "token not valid for this route"))
			return
		}

		// Build the snapshot before upgrading so a failed read stays a clean
		// JSON error instead of a dropped socket.
		snapshot, err := snapshots.Build(r.Context(), routeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the handshake failure.
			if logg != nil {
				logg.Warn(r.Context(), "websocket upgrade: "+err.Error())
			}
			return
		}

		client := realtime.NewClient(routeID, claims.ParticipantID, conn, logg)
		if err := client.SendSnapshot(snapshot); err != nil {
			if logg != nil {
				logg.Error(r.Context(), "queue snapshot frame", err)
			}
			conn.Close()
			return
		}
		hub.Register(client)

		go client.WritePump(r.Context())
		client.ReadPump(r.Context(), hub)
	}
}

func subscribeClaims(jwtCfg config.JWTConfig, r *http.Request) (*pkgauth.AccessTokenClaims, error) {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}

	claims, err := pkgauth.ParseAccessToken(jwtCfg, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ParticipantID == uuid.Nil || claims.RouteID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "token missing identity")
	}
	return claims, nil
}
