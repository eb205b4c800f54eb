package recognition

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// readyTimeout bounds how long a stream open waits for the sidecar to ack
// the config frame before the stream is rejected.
const readyTimeout = 5 * time.Second

// NewSession dials a dedicated recognizer connection and wraps it in a
// Manager whose transcript callbacks are already wired up. Each audio
// stream gets its own session so gating tags never cross streams. The
// returned closer tears the connection down.
func NewSession(cfg Config, log *slog.Logger) (*Manager, func() error, error) {
	if log == nil {
		log = slog.Default()
	}
	m := NewManager(nil, cfg.SampleRate, log)

	client, err := New(cfg, Callbacks{
		OnTranscript: m.HandleTranscript,
		OnError: func(err error) {
			log.Warn("gating recognizer stream error", "error", err)
		},
	})
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()
	if !client.WaitReady(ctx) {
		client.Close()
		return nil, nil, fmt.Errorf("recognizer did not become ready within %s", readyTimeout)
	}

	m.attach(client)
	return m, client.Close, nil
}
