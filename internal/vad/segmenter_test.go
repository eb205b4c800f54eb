package vad

import (
	"testing"
	"time"
)

func testConfig() Config {
	return DefaultConfig()
}

func feed(s *Segmenter, level float64, n int, start time.Time, step time.Duration) (time.Time, []Decision) {
	var out []Decision
	now := start
	for i := 0; i < n; i++ {
		d := s.Observe(level, now)
		if d != (Decision{}) {
			out = append(out, d)
		}
		now = now.Add(step)
	}
	return now, out
}

func TestSegmenter_InitialPhase(t *testing.T) {
	s := NewSegmenter(testConfig())
	if s.Phase() != PhaseWaiting {
		t.Errorf("initial phase = %s, want waiting", s.Phase())
	}
}

func TestSegmenter_QuietSignalNeverTriggers(t *testing.T) {
	s := NewSegmenter(testConfig())
	now := time.Now()
	// Below offThreshold for several full windows.
	_, decisions := feed(s, 0.009, 200, now, 20*time.Millisecond)
	if len(decisions) != 0 {
		t.Fatalf("quiet signal produced decisions: %+v", decisions)
	}
	if s.Phase() != PhaseWaiting {
		t.Errorf("phase = %s, want waiting", s.Phase())
	}
}

func TestSegmenter_FullWindowAtOnThresholdTriggers(t *testing.T) {
	cfg := testConfig()
	s := NewSegmenter(cfg)
	now := time.Now()
	triggered := false
	for i := 0; i < cfg.WindowSize; i++ {
		d := s.Observe(cfg.OnThreshold, now)
		now = now.Add(20 * time.Millisecond)
		if d.StartSpeech {
			triggered = true
		}
	}
	if !triggered {
		t.Fatal("window-size samples at onThreshold did not start speech")
	}
	if s.Phase() != PhaseSpeaking {
		t.Errorf("phase = %s, want speaking", s.Phase())
	}
}

func TestSegmenter_HysteresisGap(t *testing.T) {
	cfg := testConfig()
	s := NewSegmenter(cfg)
	now := time.Now()
	now, _ = feed(s, 0.05, cfg.WindowSize, now, 20*time.Millisecond)
	if s.Phase() != PhaseSpeaking {
		t.Fatalf("phase = %s, want speaking", s.Phase())
	}

	// Energy between off and on thresholds: loud enough to stay, not loud
	// enough to refresh lastVoice. Silence cannot arm before holdover, and
	// avg stays above offThreshold, so the phase holds.
	_, decisions := feed(s, 0.012, 300, now, 20*time.Millisecond)
	if len(decisions) != 0 {
		t.Fatalf("mid-band energy produced decisions: %+v", decisions)
	}
	if s.Phase() != PhaseSpeaking {
		t.Errorf("phase = %s, want speaking", s.Phase())
	}
}

func TestSegmenter_HoldoverSuppressesShortDips(t *testing.T) {
	cfg := testConfig()
	s := NewSegmenter(cfg)
	now := time.Now()
	now, _ = feed(s, 0.05, cfg.WindowSize, now, 20*time.Millisecond)

	// 0.5s dip: below offThreshold but shorter than the 1s holdover.
	now, decisions := feed(s, 0.0, 25, now, 20*time.Millisecond)
	if len(decisions) != 0 {
		t.Fatalf("short dip armed silence: %+v", decisions)
	}
	if s.Phase() != PhaseSpeaking {
		t.Errorf("phase = %s, want speaking after short dip", s.Phase())
	}
	_ = now
}

func TestSegmenter_SilenceArmsAfterHoldover(t *testing.T) {
	cfg := testConfig()
	s := NewSegmenter(cfg)
	now := time.Now()
	now, _ = feed(s, 0.05, cfg.WindowSize, now, 20*time.Millisecond)

	// Sustained silence: the window average decays under offThreshold and
	// the holdover clock runs out from the last qualifying sample.
	_, decisions := feed(s, 0.0, 120, now, 20*time.Millisecond)
	if len(decisions) != 1 || !decisions[0].ArmSilence {
		t.Fatalf("expected one ArmSilence decision, got %+v", decisions)
	}
	if s.Phase() != PhaseSilence {
		t.Errorf("phase = %s, want silence", s.Phase())
	}
}

func TestSegmenter_SpeechResumesCancelsSilence(t *testing.T) {
	cfg := testConfig()
	s := NewSegmenter(cfg)
	now := time.Now()
	now, _ = feed(s, 0.05, cfg.WindowSize, now, 20*time.Millisecond)
	now, _ = feed(s, 0.0, 120, now, 20*time.Millisecond)
	if s.Phase() != PhaseSilence {
		t.Fatalf("setup failed: phase = %s", s.Phase())
	}

	_, decisions := feed(s, 0.08, cfg.WindowSize, now, 20*time.Millisecond)
	if len(decisions) != 1 || !decisions[0].CancelSilence {
		t.Fatalf("expected one CancelSilence decision, got %+v", decisions)
	}
	if s.Phase() != PhaseSpeaking {
		t.Errorf("phase = %s, want speaking", s.Phase())
	}
}

func TestSegmenter_ResetIdempotent(t *testing.T) {
	cfg := testConfig()
	s := NewSegmenter(cfg)
	now := time.Now()
	feed(s, 0.05, cfg.WindowSize*2, now, 20*time.Millisecond)

	s.Reset()
	phase, avg := s.Phase(), s.WindowAverage()
	s.Reset()
	if s.Phase() != phase || s.WindowAverage() != avg {
		t.Error("double reset changed state")
	}
	if phase != PhaseWaiting || avg != 0 {
		t.Errorf("reset state = (%s, %v), want (waiting, 0)", phase, avg)
	}
}

func TestSegmenter_FreshAfterReset(t *testing.T) {
	cfg := testConfig()
	s := NewSegmenter(cfg)
	now := time.Now()
	now, _ = feed(s, 0.05, cfg.WindowSize, now, 20*time.Millisecond)
	s.Reset()

	// Quiet audio right after reset must not trigger from leftover energy.
	_, decisions := feed(s, 0.0, cfg.WindowSize, now, 20*time.Millisecond)
	if len(decisions) != 0 {
		t.Fatalf("stale window energy leaked through reset: %+v", decisions)
	}
}

func TestSegmenter_DefaultsApplied(t *testing.T) {
	s := NewSegmenter(Config{})
	if s.cfg.OnThreshold != 0.015 || s.cfg.OffThreshold != 0.010 {
		t.Errorf("threshold defaults = %v/%v", s.cfg.OnThreshold, s.cfg.OffThreshold)
	}
	if s.cfg.WindowSize != 45 {
		t.Errorf("window default = %d", s.cfg.WindowSize)
	}
	if s.cfg.Holdover != time.Second || s.cfg.SilenceDuration != 2*time.Second {
		t.Errorf("timing defaults = %v/%v", s.cfg.Holdover, s.cfg.SilenceDuration)
	}
	if s.cfg.PreRollDuration != 500*time.Millisecond {
		t.Errorf("preroll default = %v", s.cfg.PreRollDuration)
	}
}
