package stream

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/eleven-am/wearable-voice/internal/transcription"
	"github.com/eleven-am/wearable-voice/internal/transport"
	"github.com/eleven-am/wearable-voice/internal/vad"
)

// GatingFactory opens a dedicated gating recognizer session per stream.
// The returned closer tears down its connection.
type GatingFactory func() (Gating, func() error, error)

// Manager owns the live stream sessions, one per device. A device opening a
// second stream replaces its first; the stale session is closed before the
// new one starts so two streams never share gating state.
type Manager struct {
	gating      GatingFactory
	transcriber transcription.Transcriber
	dispatcher  Dispatcher
	records     Recorder
	feed        Publisher
	vadCfg      vad.Config
	watchdog    time.Duration
	log         *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

type ManagerConfig struct {
	VAD           vad.Config
	StartWatchdog time.Duration
}

func NewManager(gating GatingFactory, transcriber transcription.Transcriber, dispatcher Dispatcher, records Recorder, feed Publisher, cfg ManagerConfig, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		gating:      gating,
		transcriber: transcriber,
		dispatcher:  dispatcher,
		records:     records,
		feed:        feed,
		vadCfg:      cfg.VAD,
		watchdog:    cfg.StartWatchdog,
		log:         log.With("component", "stream_manager"),
		sessions:    make(map[string]*Session),
	}
}

// Open starts a session for the device. A gating factory failure is returned
// before any session state exists, so the caller can reject the stream while
// the recognizer is unreachable.
func (m *Manager) Open(deviceID string, codec transport.Codec) (*Session, error) {
	gating, closer, err := m.gating()
	if err != nil {
		m.log.Error("gating session unavailable", "device_id", deviceID, "error", err)
		return nil, err
	}

	var s *Session
	s = NewSession(Config{
		DeviceID:      deviceID,
		Codec:         codec,
		VAD:           m.vadCfg,
		StartWatchdog: m.watchdog,
	}, Deps{
		Gating:       gating,
		GatingCloser: closer,
		Transcriber:  m.transcriber,
		Dispatcher:   m.dispatcher,
		Records:      m.records,
		Feed:         m.feed,
		OnFatal: func(error) {
			m.Release(deviceID, s)
		},
		Log: m.log,
	})

	m.mu.Lock()
	prev := m.sessions[deviceID]
	m.sessions[deviceID] = s
	m.mu.Unlock()

	if prev != nil {
		m.log.Info("replacing existing stream", "device_id", deviceID)
		prev.Close()
	}

	s.Start()
	return s, nil
}

// Remove closes and forgets the device's session.
func (m *Manager) Remove(deviceID string) {
	m.mu.Lock()
	s := m.sessions[deviceID]
	delete(m.sessions, deviceID)
	m.mu.Unlock()

	if s != nil {
		s.Close()
	}
}

// Release forgets the session only if it is still the one registered, so a
// dying or disconnecting session that was already replaced cannot close its
// successor.
func (m *Manager) Release(deviceID string, s *Session) {
	m.mu.Lock()
	if m.sessions[deviceID] == s {
		delete(m.sessions, deviceID)
	}
	m.mu.Unlock()
	s.Close()
}

func (m *Manager) Get(deviceID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[deviceID]
	return s, ok
}

func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) ListSessions() []SessionInfo {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].DeviceID < infos[j].DeviceID
	})
	return infos
}

// Close tears down every live session. Used on server shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
