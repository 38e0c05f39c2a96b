package bootstrap

import (
	"strings"
	"time"

	httpadapter "voiceout_server/adapter/in/http"
	"voiceout_server/infra/middleware"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// NewAPIServer builds the fiber app with the full middleware stack and all
// routes registered.
func NewAPIServer(deps *Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "voiceout",
		ErrorHandler: middleware.ErrorHandler,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	})

	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(deps.Config.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	httpadapter.NewHealthHandler(deps.DB, deps.Redis).Register(app)

	api := app.Group("/api/v1")
	api.Use(middleware.JWTAuth(deps.Config.JWTSecret))

	httpadapter.NewSyncHandler(deps.SyncService).Register(api)
	httpadapter.NewConnectionHandler(deps.ConnectionService).Register(api)

	return app
}
