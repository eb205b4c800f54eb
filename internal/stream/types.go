package stream

import (
	"context"
	"time"

	"github.com/eleven-am/wearable-voice/internal/agent"
	"github.com/eleven-am/wearable-voice/internal/utterance"
)

// Gating is the per-stream recognition session manager. Implemented by
// recognition.Manager.
type Gating interface {
	Start() (uint64, error)
	Feed(samples []float32, sourceRate int) error
	Stop() error
	Text() string
}

// Dispatcher delivers finalized text downstream. Implemented by
// agent.Client.
type Dispatcher interface {
	Send(ctx context.Context, msg agent.Message) (*agent.Reply, error)
}

// Recorder persists utterance lifecycle rows. Implemented by
// utterance.Store; nil disables persistence.
type Recorder interface {
	Create(ctx context.Context, u *utterance.Utterance) error
	MarkTranscribed(ctx context.Context, id, text string) error
	MarkDelivered(ctx context.Context, id, reply string) error
	MarkDiscarded(ctx context.Context, id, reason string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

// Publisher pushes live events to whoever is watching the device feed;
// nil disables publishing.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type EventType string

const (
	EventTranscript EventType = "transcript"
	EventReply      EventType = "reply"
	EventError      EventType = "error"
)

type Event struct {
	Type        EventType `json:"type"`
	DeviceID    string    `json:"device_id"`
	UtteranceID string    `json:"utterance_id,omitempty"`
	Text        string    `json:"text,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type SessionInfo struct {
	DeviceID      string    `json:"device_id"`
	Codec         string    `json:"codec"`
	Phase         string    `json:"phase"`
	DroppedFrames int64     `json:"dropped_frames"`
	Utterances    int64     `json:"utterances"`
	StartedAt     time.Time `json:"started_at"`
}
