package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/internal/realtime"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// RealtimeConnect upgrades an operator session to a websocket that receives
// live order and stock alerts. The request blocks until the socket closes.
func RealtimeConnect(hub *realtime.Hub, cfg config.RealtimeConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hub == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "realtime hub unavailable"))
			return
		}
		claims := middleware.OperatorFromContext(r.Context())
		if claims == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "operator required"))
			return
		}
		if !claims.Role.ReceivesAlerts() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role does not receive alerts"))
			return
		}

		err := realtime.Serve(w, r, hub, claims.OperatorID.String(), realtime.ServeOptions{
			OriginPatterns: cfg.AllowedOrigins,
			PingInterval:   cfg.PingInterval,
		})
		if err != nil && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "realtime.session_ended")
		}
	}
}
