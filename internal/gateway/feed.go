package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/eleven-am/wearable-voice/internal/stream"
	"github.com/redis/go-redis/v9"
)

const transcriptChannel = "device:%s:transcripts"

// Feed fans live pipeline events out over redis pub/sub, one channel per
// device. The stream sessions publish; the SSE endpoint and anything else
// watching a device subscribe. Going through redis rather than in-process
// channels lets watchers attach to any instance behind a load balancer.
type Feed struct {
	redis *redis.Client
	log   *slog.Logger
}

func NewFeed(rdb *redis.Client, log *slog.Logger) *Feed {
	if log == nil {
		log = slog.Default()
	}
	return &Feed{
		redis: rdb,
		log:   log.With("component", "feed"),
	}
}

func (f *Feed) Publish(ctx context.Context, ev stream.Event) error {
	channel := fmt.Sprintf(transcriptChannel, ev.DeviceID)
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := f.redis.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	f.log.Debug("published event",
		"device_id", ev.DeviceID,
		"type", ev.Type,
		"utterance_id", ev.UtteranceID)
	return nil
}

// Subscribe delivers the device's events until ctx is canceled. The channel
// closes when the subscription ends; unparseable payloads are skipped.
func (f *Feed) Subscribe(ctx context.Context, deviceID string) <-chan stream.Event {
	channel := fmt.Sprintf(transcriptChannel, deviceID)
	pubsub := f.redis.Subscribe(ctx, channel)
	out := make(chan stream.Event, 16)

	go func() {
		defer close(out)
		defer pubsub.Close()

		for {
			msg, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					f.log.Error("feed receive failed", "device_id", deviceID, "error", err)
				}
				return
			}

			var ev stream.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				f.log.Error("feed unmarshal failed", "device_id", deviceID, "error", err)
				continue
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
