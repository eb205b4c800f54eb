package transcription

import (
	"context"
	"errors"
	"time"
)

// ErrAudioTooShort and ErrHallucination both mean "no utterance". Callers
// treat them identically to an empty gating result: drop quietly, no
// user-visible failure.
var (
	ErrAudioTooShort = errors.New("audio shorter than minimum duration")
	ErrHallucination = errors.New("transcription matched hallucination pattern")
)

type Config struct {
	URL      string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

const (
	DefaultModel    = "whisper-1"
	DefaultLanguage = "en"
	DefaultTimeout  = 30 * time.Second

	// MinDuration rejects buffers the remote model cannot transcribe
	// meaningfully; below this it mostly invents text.
	MinDuration = 500 * time.Millisecond
)

// Transcriber produces the authoritative text for a finalized utterance.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}
