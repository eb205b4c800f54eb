package recognition

import (
	"encoding/binary"
	"sync"
	"testing"
)

type fakeRecognizer struct {
	mu       sync.Mutex
	started  []uint64
	fed      [][]byte
	stops    int
	startErr error
}

func (f *fakeRecognizer) StartSession(id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	return f.startErr
}

func (f *fakeRecognizer) Feed(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fed = append(f.fed, pcm)
	return nil
}

func (f *fakeRecognizer) StopSession() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeRecognizer) Close() error { return nil }

func TestManager_SessionIDsStrictlyIncrease(t *testing.T) {
	rec := &fakeRecognizer{}
	m := NewManager(rec, 16000, nil)

	id1, err := m.Start()
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	id2, _ := m.Start()
	id3, _ := m.Start()
	if !(id1 < id2 && id2 < id3) {
		t.Errorf("ids not strictly increasing: %d, %d, %d", id1, id2, id3)
	}
	if len(rec.started) != 3 {
		t.Errorf("recognizer saw %d starts, want 3", len(rec.started))
	}
}

func TestManager_StaleCallbackDropped(t *testing.T) {
	rec := &fakeRecognizer{}
	m := NewManager(rec, 16000, nil)

	old, _ := m.Start()
	m.HandleTranscript(TranscriptEvent{Session: old, Text: "hello there"})
	if m.Text() != "hello there" {
		t.Fatalf("current-session text not applied: %q", m.Text())
	}

	current, _ := m.Start()
	if m.Text() != "" {
		t.Fatalf("new session did not clear text: %q", m.Text())
	}

	// Slow callback from the abandoned session arrives late.
	m.HandleTranscript(TranscriptEvent{Session: old, Text: "stale"})
	if m.Text() != "" {
		t.Errorf("stale callback applied: %q", m.Text())
	}

	m.HandleTranscript(TranscriptEvent{Session: current, Text: "fresh"})
	if m.Text() != "fresh" {
		t.Errorf("fresh callback dropped: %q", m.Text())
	}
}

func TestManager_TranscriptReplaces(t *testing.T) {
	rec := &fakeRecognizer{}
	m := NewManager(rec, 16000, nil)
	id, _ := m.Start()

	m.HandleTranscript(TranscriptEvent{Session: id, Text: "one", IsPartial: true})
	m.HandleTranscript(TranscriptEvent{Session: id, Text: "one two", IsPartial: true})
	m.HandleTranscript(TranscriptEvent{Session: id, Text: "one two three"})
	if m.Text() != "one two three" {
		t.Errorf("Text() = %q, want cumulative replacement", m.Text())
	}
}

func TestManager_FeedResamplesToRecognizerRate(t *testing.T) {
	rec := &fakeRecognizer{}
	m := NewManager(rec, 16000, nil)
	m.Start()

	src := make([]float32, 160) // 20ms at 8kHz
	for i := range src {
		src[i] = 0.25
	}
	if err := m.Feed(src, 8000); err != nil {
		t.Fatalf("Feed() error = %v", err)
	}

	if len(rec.fed) != 1 {
		t.Fatalf("recognizer saw %d feeds, want 1", len(rec.fed))
	}
	wantSamples := (160-1)*16000/8000 + 1
	if len(rec.fed[0]) != wantSamples*2 {
		t.Errorf("fed %d bytes, want %d", len(rec.fed[0]), wantSamples*2)
	}
	got := int16(binary.LittleEndian.Uint16(rec.fed[0][0:2]))
	amp := float32(0.25)
	if got != int16(amp*32767) {
		t.Errorf("first sample = %d", got)
	}
}

func TestManager_FeedInactiveIsNoop(t *testing.T) {
	rec := &fakeRecognizer{}
	m := NewManager(rec, 16000, nil)
	if err := m.Feed([]float32{0.1, 0.2}, 8000); err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	if len(rec.fed) != 0 {
		t.Error("inactive manager fed audio")
	}

	m.Start()
	m.Stop()
	m.Feed([]float32{0.1}, 8000)
	if len(rec.fed) != 0 {
		t.Error("stopped manager fed audio")
	}
	if rec.stops != 1 {
		t.Errorf("recognizer saw %d stops, want 1", rec.stops)
	}
}
