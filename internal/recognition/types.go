package recognition

import "github.com/eleven-am/wearable-voice/internal/shared"

type Config struct {
	// URL is the websocket endpoint of the gating recognizer sidecar.
	URL        string
	Token      string
	SampleRate int
	Language   string
	Model      string
	Backoff    shared.BackoffConfig
}

const DefaultSampleRate = 16000

// TranscriptEvent carries the session tag captured when the gating session
// started. Consumers compare it against the current session id and drop
// mismatches; that is the whole staleness story, no cancellation involved.
type TranscriptEvent struct {
	Session   uint64 `json:"session"`
	Text      string `json:"text"`
	IsPartial bool   `json:"is_partial"`
}

type Callbacks struct {
	OnReady      func()
	OnTranscript func(TranscriptEvent)
	OnError      func(error)
}

// Recognizer is the streaming gating recognizer: it only decides whether an
// utterance contains any words, it never produces final text.
type Recognizer interface {
	StartSession(id uint64) error
	Feed(pcm []byte) error
	StopSession() error
	Close() error
}
