package bootstrap

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/eleven-am/wearable-voice/internal/device"
	"github.com/eleven-am/wearable-voice/internal/gateway"
	"github.com/eleven-am/wearable-voice/internal/stream"
	"github.com/eleven-am/wearable-voice/internal/utterance"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/fx"
)

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
}

// adminAuthMiddleware guards the management API with a static bearer token.
// With no ADMIN_TOKEN configured the management surface is open, which is
// only sensible for local development.
func adminAuthMiddleware(cfg *Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.AdminToken == "" {
				return next(c)
			}
			auth := c.Request().Header.Get("Authorization")
			token := strings.TrimPrefix(auth, "Bearer ")
			if token == auth || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.AdminToken)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid admin token")
			}
			return next(c)
		}
	}
}

func ProvideDeviceHandler(store *device.Store, logger *slog.Logger) *device.Handler {
	return device.NewHandler(store, logger.With("handler", "device"))
}

func ProvideUtteranceHandler(store *utterance.Store) *utterance.Handler {
	return utterance.NewHandler(store)
}

func ProvideStreamHandler(devices *device.Store, streams *stream.Manager, feed *gateway.Feed, logger *slog.Logger) *gateway.StreamHandler {
	return gateway.NewStreamHandler(devices, streams, feed, logger)
}

type HandlerParams struct {
	fx.In

	DeviceHandler    *device.Handler
	UtteranceHandler *utterance.Handler
	StreamHandler    *gateway.StreamHandler
	Config           *Config
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	api := e.Group("/v1")

	// Device websocket authenticates with its own API key, not the admin
	// token.
	api.GET("/ws/audio", params.StreamHandler.HandleStream)

	devicesGroup := api.Group("/devices")
	devicesGroup.Use(adminAuthMiddleware(params.Config))
	params.DeviceHandler.RegisterRoutes(devicesGroup)
	params.UtteranceHandler.RegisterRoutes(devicesGroup)
	devicesGroup.GET("/:id/events", params.StreamHandler.HandleEvents)

	e.GET("/swagger/*", echoSwagger.EchoWrapHandler())
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideLogger,
		ProvideDeviceHandler,
		ProvideUtteranceHandler,
		ProvideStreamHandler,
	),
	fx.Invoke(RegisterRoutes),
)
