package bootstrap

import (
	"github.com/eleven-am/wearable-voice/internal/health"
	"github.com/eleven-am/wearable-voice/internal/recognition"
	"github.com/eleven-am/wearable-voice/internal/stream"
	"github.com/eleven-am/wearable-voice/internal/transcription"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const version = "1.0.0"

func ProvideHealthHandler(
	db *gorm.DB,
	redis *redis.Client,
	recognizerCfg recognition.Config,
	sttConfig transcription.Config,
	monitor *recognition.Client,
	streams *stream.Manager,
) *health.Handler {
	return health.NewHandler(
		db,
		redis,
		recognizerCfg,
		sttConfig,
		monitor,
		streams,
		version,
	)
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
