package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teamgrid/chat-api/internal/config"
	"github.com/teamgrid/chat-api/internal/handler"
	"github.com/teamgrid/chat-api/internal/middleware"
	"github.com/teamgrid/chat-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ChatHandler     *handler.ChatHandler
	RoomHandler     *handler.RoomHandler
	PresenceHandler *handler.PresenceHandler
	UploadHandler   *handler.UploadHandler
	JWTMiddleware   fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	chat := app.Group("/api/chat", jwtMiddleware)

	if deps.ChatHandler != nil {
		deps.ChatHandler.Register(chat)
	}
	if deps.RoomHandler != nil {
		deps.RoomHandler.Register(chat)
	}
	if deps.PresenceHandler != nil {
		deps.PresenceHandler.Register(chat)
	}
	if deps.UploadHandler != nil {
		uploads := chat.Group("", middleware.RateLimit("attachments", 30, time.Minute))
		deps.UploadHandler.Register(uploads)
	}
}
