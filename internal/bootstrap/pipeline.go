package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/wearable-voice/internal/agent"
	"github.com/eleven-am/wearable-voice/internal/gateway"
	"github.com/eleven-am/wearable-voice/internal/recognition"
	"github.com/eleven-am/wearable-voice/internal/stream"
	"github.com/eleven-am/wearable-voice/internal/transcription"
	"github.com/eleven-am/wearable-voice/internal/utterance"
	"github.com/eleven-am/wearable-voice/internal/vad"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func ProvideRecognizerConfig(cfg *Config) recognition.Config {
	return recognition.Config{
		URL:        cfg.RecognizerURL,
		Token:      cfg.RecognizerToken,
		SampleRate: cfg.RecognizerRate,
		Language:   cfg.RecognizerLanguage,
		Model:      cfg.RecognizerModel,
	}
}

func ProvideTranscriptionConfig(cfg *Config) transcription.Config {
	return transcription.Config{
		URL:      cfg.TranscriptionURL,
		APIKey:   cfg.TranscriptionAPIKey,
		Model:    cfg.TranscriptionModel,
		Language: cfg.TranscriptionLanguage,
	}
}

func ProvideTranscriber(cfg transcription.Config, log *slog.Logger) transcription.Transcriber {
	return transcription.NewClient(cfg, log)
}

func ProvideAgentClient(cfg *Config, log *slog.Logger) *agent.Client {
	return agent.NewClient(agent.Config{
		URL:   cfg.AgentURL,
		Token: cfg.AgentToken,
	}, log)
}

// ProvideRecognizerMonitor keeps one long-lived recognizer connection for
// the readiness check. A sidecar that is down at boot is reported by the
// probe, not a boot failure, so this returns nil instead of erroring and
// health falls back to dialing per probe.
func ProvideRecognizerMonitor(lc fx.Lifecycle, recCfg recognition.Config, log *slog.Logger) *recognition.Client {
	client, err := recognition.New(recCfg, recognition.Callbacks{})
	if err != nil {
		log.Warn("recognizer monitor unavailable at boot", "error", err)
		return nil
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

// ProvideGatingFactory opens one recognizer connection per device stream.
func ProvideGatingFactory(recCfg recognition.Config, log *slog.Logger) stream.GatingFactory {
	return func() (stream.Gating, func() error, error) {
		return recognition.NewSession(recCfg, log)
	}
}

func ProvideFeed(rdb *redis.Client, log *slog.Logger) *gateway.Feed {
	return gateway.NewFeed(rdb, log)
}

func ProvideStreamManager(
	lc fx.Lifecycle,
	cfg *Config,
	gating stream.GatingFactory,
	transcriber transcription.Transcriber,
	dispatcher *agent.Client,
	records *utterance.Store,
	feed *gateway.Feed,
	log *slog.Logger,
) *stream.Manager {
	m := stream.NewManager(
		gating,
		transcriber,
		dispatcher,
		records,
		feed,
		stream.ManagerConfig{
			VAD: vad.Config{
				OnThreshold:     cfg.VADOnThreshold,
				OffThreshold:    cfg.VADOffThreshold,
				WindowSize:      cfg.VADWindowSize,
				Holdover:        cfg.VADHoldover,
				SilenceDuration: cfg.VADSilence,
				PreRollDuration: cfg.VADPreRoll,
			},
			StartWatchdog: cfg.StreamWatchdog,
		},
		log,
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			m.Close()
			return nil
		},
	})
	return m
}

var PipelineModule = fx.Options(
	fx.Provide(
		ProvideRecognizerConfig,
		ProvideTranscriptionConfig,
		ProvideTranscriber,
		ProvideAgentClient,
		ProvideRecognizerMonitor,
		ProvideGatingFactory,
		ProvideFeed,
		ProvideStreamManager,
	),
)
