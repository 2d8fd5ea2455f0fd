package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ecotrack-api/internal/application/device"
	"github.com/ecotrack-api/internal/application/notification"
	"github.com/ecotrack-api/internal/config"
	"github.com/ecotrack-api/internal/domain"
	"github.com/ecotrack-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/ecotrack-api/internal/infrastructure/jwt"
	"github.com/ecotrack-api/internal/realtime"
	"github.com/ecotrack-api/internal/transport/http/handler"
	appmiddleware "github.com/ecotrack-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo         *dynamo.UserRepo
	DeviceRepo       *dynamo.DeviceRepo
	NotificationRepo *dynamo.NotificationRepo
	JWTProvider      *jwtinfra.Provider
	Hub              *realtime.Hub
	Dispatcher       *notification.Dispatcher
	Logger           *slog.Logger
}

// NewRouter builds and returns the application router. ctx bounds the
// lifetime of router-owned background work (rate limiter eviction).
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	authMw := appmiddleware.Auth(deps.JWTProvider)
	adminMw := appmiddleware.RequireRole(domain.RoleAdmin, domain.RoleSuperAdmin)

	// 5 requests/second, burst of 10. Applied to the handshake endpoint,
	// which authenticates via query parameter and is cheap to hammer, and
	// to the admin composition endpoints that fan out writes.
	sensitiveRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10)

	notifSvc := notification.NewService(deps.NotificationRepo, deps.UserRepo, deps.Dispatcher, cfg.MaxRetries)
	deviceSvc := device.NewService(deps.DeviceRepo)

	healthH := handler.NewHealthHandler()
	notifH := handler.NewNotificationHandler(notifSvc)
	deviceH := handler.NewDeviceHandler(deviceSvc)
	presenceH := handler.NewPresenceHandler(deps.Hub)
	wsH := handler.NewWSHandler(deps.Hub, deps.JWTProvider, cfg.AllowedOrigins, deps.Logger)

	r.Route("/v1", func(r chi.Router) {
		// Public routes (no auth)
		r.Get("/health-check/{action}", healthH.Ping)
		r.With(sensitiveRL.Limit).Get("/ws", wsH.Serve)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/notifications", notifH.List)
			r.Post("/notifications/mark-read", notifH.MarkRead)
			r.Get("/notifications/{id}", notifH.Get)

			r.Post("/devices", deviceH.Register)
			r.Get("/devices", deviceH.List)
			r.Put("/devices/{id}", deviceH.Update)
			r.Delete("/devices/{id}", deviceH.Delete)

			// Admin-only routes
			r.Group(func(r chi.Router) {
				r.Use(adminMw)

				r.With(sensitiveRL.Limit).Post("/notifications", notifH.Create)
				r.With(sensitiveRL.Limit).Post("/notifications/bulk", notifH.CreateBulk)
				r.With(sensitiveRL.Limit).Post("/notifications/broadcast", notifH.Broadcast)
				r.Get("/presence/stats", presenceH.Stats)
			})
		})
	})

	return r
}
