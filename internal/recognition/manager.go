package recognition

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/eleven-am/wearable-voice/internal/audio"
)

var errNoRecognizer = errors.New("no recognizer attached")

// Manager runs gating sessions over a Recognizer. Session ids come from a
// strictly increasing counter; a transcript callback is honored only when
// its captured tag equals the current id, so a slow callback from an
// abandoned session can never overwrite fresher state.
type Manager struct {
	rec        Recognizer
	sampleRate int
	log        *slog.Logger

	mu      sync.Mutex
	current uint64
	active  bool
	text    string
}

func NewManager(rec Recognizer, sampleRate int, log *slog.Logger) *Manager {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		rec:        rec,
		sampleRate: sampleRate,
		log:        log.With("component", "gating"),
	}
}

// attach installs the recognizer after construction. NewSession needs the
// manager to exist before the client, because the client's callbacks point
// at it.
func (m *Manager) attach(rec Recognizer) {
	m.mu.Lock()
	m.rec = rec
	m.mu.Unlock()
}

func (m *Manager) recognizer() (Recognizer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rec == nil {
		return nil, errNoRecognizer
	}
	return m.rec, nil
}

// Start opens a fresh gating session and returns its id. Any in-flight
// callback tagged with an older id is invalidated by the bump alone.
func (m *Manager) Start() (uint64, error) {
	rec, err := m.recognizer()
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.current++
	id := m.current
	m.active = true
	m.text = ""
	m.mu.Unlock()

	if err := rec.StartSession(id); err != nil {
		return id, err
	}
	return id, nil
}

// Feed resamples source-rate audio to the recognizer's fixed input rate and
// streams it as PCM16LE. Output count for N source samples follows
// floor((N-1)*Rt/Rs)+1 with linear interpolation between neighbors.
func (m *Manager) Feed(samples []float32, sourceRate int) error {
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()
	if !active || len(samples) == 0 {
		return nil
	}

	rec, err := m.recognizer()
	if err != nil {
		return err
	}
	resampled := audio.Resample(samples, sourceRate, m.sampleRate)
	return rec.Feed(audio.Int16ToBytes(audio.Float32ToInt16(resampled)))
}

func (m *Manager) Stop() error {
	rec, err := m.recognizer()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.active = false
	m.mu.Unlock()
	return rec.StopSession()
}

// HandleTranscript applies a callback result. Streaming results are
// cumulative, so the latest text replaces the previous one; stale tags are
// dropped.
func (m *Manager) HandleTranscript(ev TranscriptEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.Session != m.current {
		m.log.Debug("dropping stale gating result",
			"tagged_session", ev.Session,
			"current_session", m.current)
		return
	}
	m.text = ev.Text
}

// Text returns the gating text accumulated for the current session.
func (m *Manager) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

func (m *Manager) Current() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
