// Package vad segments a continuous energy stream into discrete utterances.
// A rolling window average over the smoothed RMS drives a three-phase state
// machine with Schmitt-trigger hysteresis: distinct on/off thresholds keep
// the phase from flapping at the boundary, and a hold-over period keeps
// momentary dips from ending an utterance early.
package vad

import "time"

type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseSpeaking Phase = "speaking"
	PhaseSilence  Phase = "silence"
)

type Config struct {
	OnThreshold     float64
	OffThreshold    float64
	WindowSize      int
	Holdover        time.Duration
	SilenceDuration time.Duration
	PreRollDuration time.Duration
}

func DefaultConfig() Config {
	return Config{
		OnThreshold:     0.015,
		OffThreshold:    0.010,
		WindowSize:      45,
		Holdover:        time.Second,
		SilenceDuration: 2 * time.Second,
		PreRollDuration: 500 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.OnThreshold == 0 {
		c.OnThreshold = d.OnThreshold
	}
	if c.OffThreshold == 0 {
		c.OffThreshold = d.OffThreshold
	}
	if c.WindowSize == 0 {
		c.WindowSize = d.WindowSize
	}
	if c.Holdover == 0 {
		c.Holdover = d.Holdover
	}
	if c.SilenceDuration == 0 {
		c.SilenceDuration = d.SilenceDuration
	}
	if c.PreRollDuration == 0 {
		c.PreRollDuration = d.PreRollDuration
	}
	return c
}

// Decision tells the owner which side effects to run. The segmenter itself
// never touches buffers, sessions, or timers; it only moves phase.
type Decision struct {
	// StartSpeech: create the speech buffer, start a gating session, flush
	// the pre-roll.
	StartSpeech bool
	// ArmSilence: schedule the one-shot finalize timer.
	ArmSilence bool
	// CancelSilence: stop the pending finalize timer, speech resumed.
	CancelSilence bool
}

type Segmenter struct {
	cfg       Config
	window    []float64
	idx       int
	sum       float64
	phase     Phase
	lastVoice time.Time
	hasVoice  bool
}

func NewSegmenter(cfg Config) *Segmenter {
	cfg = cfg.withDefaults()
	return &Segmenter{
		cfg:    cfg,
		window: make([]float64, cfg.WindowSize),
		phase:  PhaseWaiting,
	}
}

// Observe pushes one smoothed-RMS sample and returns the resulting
// transition, if any. The window average, not the instantaneous level,
// drives transitions; the window is zero-filled until warm, so a short
// burst must be proportionally louder to trigger.
func (s *Segmenter) Observe(level float64, now time.Time) Decision {
	s.sum += level - s.window[s.idx]
	s.window[s.idx] = level
	s.idx = (s.idx + 1) % len(s.window)
	avg := s.sum / float64(len(s.window))

	// Hold-over measures time since the last qualifying energy, not since
	// the last phase change.
	if avg >= s.cfg.OnThreshold {
		s.lastVoice = now
		s.hasVoice = true
	}

	switch s.phase {
	case PhaseWaiting:
		if avg >= s.cfg.OnThreshold {
			s.phase = PhaseSpeaking
			return Decision{StartSpeech: true}
		}
	case PhaseSpeaking:
		if s.hasVoice && now.Sub(s.lastVoice) >= s.cfg.Holdover && avg < s.cfg.OffThreshold {
			s.phase = PhaseSilence
			return Decision{ArmSilence: true}
		}
	case PhaseSilence:
		if avg >= s.cfg.OnThreshold {
			s.phase = PhaseSpeaking
			return Decision{CancelSilence: true}
		}
	}
	return Decision{}
}

func (s *Segmenter) Phase() Phase {
	return s.phase
}

func (s *Segmenter) WindowAverage() float64 {
	return s.sum / float64(len(s.window))
}

func (s *Segmenter) Config() Config {
	return s.cfg
}

// Reset returns the machine to waiting and clears the window so energy from
// one utterance cannot drift into the next. Idempotent.
func (s *Segmenter) Reset() {
	for i := range s.window {
		s.window[i] = 0
	}
	s.idx = 0
	s.sum = 0
	s.phase = PhaseWaiting
	s.lastVoice = time.Time{}
	s.hasVoice = false
}
