package utterance

import "time"

type Status string

const (
	// StatusPending: finalized by the segmenter, transcription in flight.
	StatusPending Status = "pending"
	// StatusTranscribed: remote text received, agent dispatch in flight.
	StatusTranscribed Status = "transcribed"
	// StatusDelivered: agent replied.
	StatusDelivered Status = "delivered"
	// StatusDiscarded: classified as noise (short audio, hallucination).
	StatusDiscarded Status = "discarded"
	// StatusFailed: transcription or dispatch gave up; the error sticks to
	// this row only, segmentation carries on.
	StatusFailed Status = "failed"
)

type Utterance struct {
	ID       string `gorm:"primaryKey" json:"id"`
	DeviceID string `gorm:"not null;index" json:"device_id"`
	Status   Status `gorm:"not null;index" json:"status"`

	Text       string `json:"text,omitempty"`
	GatingText string `json:"gating_text,omitempty"`
	Reply      string `json:"reply,omitempty"`
	Error      string `json:"error,omitempty"`

	SampleRate    int   `json:"sample_rate"`
	DurationMs    int64 `json:"duration_ms"`
	DroppedFrames int64 `json:"dropped_frames"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
