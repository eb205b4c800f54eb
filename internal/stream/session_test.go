package stream

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/eleven-am/wearable-voice/internal/agent"
	"github.com/eleven-am/wearable-voice/internal/audio"
	"github.com/eleven-am/wearable-voice/internal/transport"
	"github.com/eleven-am/wearable-voice/internal/utterance"
	"github.com/eleven-am/wearable-voice/internal/vad"
)

type fakeGating struct {
	mu      sync.Mutex
	text    string
	starts  int
	stops   int
	fed     int
	current uint64
}

func (f *fakeGating) Start() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.current++
	return f.current, nil
}

func (f *fakeGating) Feed(samples []float32, sourceRate int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fed += len(samples)
	return nil
}

func (f *fakeGating) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeGating) Text() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

func (f *fakeGating) fedSamples() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fed
}

func (f *fakeGating) counts() (starts, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

type fakeTranscriber struct {
	calls chan []float32
	text  string
	err   error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	buf := make([]float32, len(samples))
	copy(buf, samples)
	f.calls <- buf
	return f.text, f.err
}

type fakeDispatcher struct {
	calls chan agent.Message
	reply string
}

func (f *fakeDispatcher) Send(ctx context.Context, msg agent.Message) (*agent.Reply, error) {
	f.calls <- msg
	return &agent.Reply{Text: f.reply}, nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	statuses map[string][]utterance.Status
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{statuses: make(map[string][]utterance.Status)}
}

func (f *fakeRecorder) mark(id string, s utterance.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = append(f.statuses[id], s)
}

func (f *fakeRecorder) Create(ctx context.Context, u *utterance.Utterance) error {
	f.mark(u.ID, u.Status)
	return nil
}

func (f *fakeRecorder) MarkTranscribed(ctx context.Context, id, text string) error {
	f.mark(id, utterance.StatusTranscribed)
	return nil
}

func (f *fakeRecorder) MarkDelivered(ctx context.Context, id, reply string) error {
	f.mark(id, utterance.StatusDelivered)
	return nil
}

func (f *fakeRecorder) MarkDiscarded(ctx context.Context, id, reason string) error {
	f.mark(id, utterance.StatusDiscarded)
	return nil
}

func (f *fakeRecorder) MarkFailed(ctx context.Context, id, reason string) error {
	f.mark(id, utterance.StatusFailed)
	return nil
}

func (f *fakeRecorder) history() map[string][]utterance.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]utterance.Status, len(f.statuses))
	for k, v := range f.statuses {
		out[k] = append([]utterance.Status(nil), v...)
	}
	return out
}

type fakePublisher struct {
	events chan Event
}

func (f *fakePublisher) Publish(ctx context.Context, ev Event) error {
	f.events <- ev
	return nil
}

// VAD tuning that keeps the test fast without changing the machine's shape.
func testVADConfig() vad.Config {
	return vad.Config{
		OnThreshold:     0.1,
		OffThreshold:    0.08,
		WindowSize:      4,
		Holdover:        time.Millisecond,
		SilenceDuration: 40 * time.Millisecond,
		PreRollDuration: 10 * time.Millisecond,
	}
}

// loudPayload is one 80-sample chunk alternating at half scale, so the
// high-pass filter passes it nearly untouched.
func loudPayload() []byte {
	samples := make([]float32, 80)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 0.5
		} else {
			samples[i] = -0.5
		}
	}
	return audio.Int16ToBytes(audio.Float32ToInt16(samples))
}

func quietPayload() []byte {
	return make([]byte, 160)
}

func sendPacket(t *testing.T, s *Session, id uint16, chunk uint8, payload []byte) {
	t.Helper()
	p := transport.Packet{PacketID: id, ChunkIndex: chunk, Payload: payload}
	if err := s.HandleNotification(p.Encode()); err != nil {
		t.Fatalf("HandleNotification() error = %v", err)
	}
}

type sessionFixture struct {
	session     *Session
	gating      *fakeGating
	transcriber *fakeTranscriber
	dispatcher  *fakeDispatcher
	recorder    *fakeRecorder
	publisher   *fakePublisher
	fatal       chan error
}

func newSessionFixture(t *testing.T, vadCfg vad.Config) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		gating:      &fakeGating{text: "hello world"},
		transcriber: &fakeTranscriber{calls: make(chan []float32, 4), text: "hello world"},
		dispatcher:  &fakeDispatcher{calls: make(chan agent.Message, 4), reply: "hi!"},
		recorder:    newFakeRecorder(),
		publisher:   &fakePublisher{events: make(chan Event, 32)},
		fatal:       make(chan error, 1),
	}
	f.session = NewSession(Config{
		DeviceID:      "dev_test",
		Codec:         transport.CodecPCM8kHz,
		VAD:           vadCfg,
		StartWatchdog: 5 * time.Second,
	}, Deps{
		Gating:      f.gating,
		Transcriber: f.transcriber,
		Dispatcher:  f.dispatcher,
		Records:     f.recorder,
		Feed:        f.publisher,
		OnFatal:     func(err error) { f.fatal <- err },
		Log:         slog.New(slog.NewTextHandler(discardWriter{}, nil)),
	})
	f.session.Start()
	t.Cleanup(func() { f.session.Close() })
	return f
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// feedUtterance drives one silent-loud-silent cycle through the session.
func (f *sessionFixture) feedUtterance(t *testing.T, startID uint16) uint16 {
	t.Helper()
	id := startID

	for i := 0; i < 4; i++ {
		sendPacket(t, f.session, id, 0, quietPayload())
		id++
	}
	for i := 0; i < 10; i++ {
		sendPacket(t, f.session, id, 0, loudPayload())
		id++
	}

	// Energy must decay below the on threshold before the hold-over clock
	// can run out; feed enough quiet audio first, then wait it out.
	for i := 0; i < 16; i++ {
		sendPacket(t, f.session, id, 0, quietPayload())
		id++
	}
	time.Sleep(5 * time.Millisecond)
	for i := 0; i < 6; i++ {
		sendPacket(t, f.session, id, 0, quietPayload())
		id++
	}
	return id
}

func waitTranscription(t *testing.T, f *sessionFixture) []float32 {
	t.Helper()
	select {
	case buf := <-f.transcriber.calls:
		return buf
	case <-time.After(2 * time.Second):
		t.Fatal("transcription never requested")
		return nil
	}
}

func TestSession_FullUtteranceCycle(t *testing.T) {
	f := newSessionFixture(t, testVADConfig())

	f.feedUtterance(t, 1)

	buf := waitTranscription(t, f)
	if len(buf) == 0 {
		t.Fatal("transcriber received no audio")
	}

	select {
	case msg := <-f.dispatcher.calls:
		if msg.Text != "hello world" {
			t.Errorf("dispatched text = %q", msg.Text)
		}
		if msg.DeviceID != "dev_test" {
			t.Errorf("device id = %q", msg.DeviceID)
		}
		if msg.UtteranceID == "" {
			t.Error("utterance id missing from dispatch")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("agent never dispatched")
	}

	if starts, stops := f.gating.counts(); starts != 1 || stops != 1 {
		t.Errorf("gating starts/stops = %d/%d, want 1/1", starts, stops)
	}
	if f.gating.fedSamples() == 0 {
		t.Error("gating received no audio")
	}

	// Lifecycle order: pending row, transcribed, delivered.
	deadline := time.Now().Add(2 * time.Second)
	for {
		hist := f.recorder.history()
		if len(hist) == 1 {
			for _, statuses := range hist {
				if len(statuses) == 3 &&
					statuses[0] == utterance.StatusPending &&
					statuses[1] == utterance.StatusTranscribed &&
					statuses[2] == utterance.StatusDelivered {
					return
				}
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("lifecycle incomplete: %v", hist)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSession_PublishesTranscriptAndReply(t *testing.T) {
	f := newSessionFixture(t, testVADConfig())
	f.feedUtterance(t, 1)
	waitTranscription(t, f)

	var types []EventType
	deadline := time.After(2 * time.Second)
	for len(types) < 2 {
		select {
		case ev := <-f.publisher.events:
			types = append(types, ev.Type)
		case <-deadline:
			t.Fatalf("events = %v, want transcript then reply", types)
		}
	}
	if types[0] != EventTranscript || types[1] != EventReply {
		t.Errorf("event order = %v", types)
	}
}

func TestSession_IncludesPreRollInUtterance(t *testing.T) {
	f := newSessionFixture(t, testVADConfig())
	f.feedUtterance(t, 1)

	buf := waitTranscription(t, f)
	// Speech starts around the fourth loud chunk; the flushed pre-roll must
	// put onset audio in front of what was heard after the trigger.
	if len(buf) < 80*7 {
		t.Errorf("utterance buffer = %d samples, pre-roll likely missing", len(buf))
	}
}

func TestSession_EmptyGatingTextDiscardsWithoutTranscription(t *testing.T) {
	f := newSessionFixture(t, testVADConfig())
	f.gating.mu.Lock()
	f.gating.text = ""
	f.gating.mu.Unlock()

	f.feedUtterance(t, 1)

	select {
	case <-f.transcriber.calls:
		t.Fatal("noise utterance reached the transcriber")
	case <-time.After(300 * time.Millisecond):
	}
	if hist := f.recorder.history(); len(hist) != 0 {
		t.Errorf("noise utterance persisted: %v", hist)
	}
}

func TestSession_ResumedSpeechCancelsFinalize(t *testing.T) {
	cfg := testVADConfig()
	cfg.SilenceDuration = 300 * time.Millisecond
	f := newSessionFixture(t, cfg)

	id := uint16(1)
	for i := 0; i < 10; i++ {
		sendPacket(t, f.session, id, 0, loudPayload())
		id++
	}
	for i := 0; i < 16; i++ {
		sendPacket(t, f.session, id, 0, quietPayload())
		id++
	}
	time.Sleep(5 * time.Millisecond)
	for i := 0; i < 6; i++ {
		sendPacket(t, f.session, id, 0, quietPayload())
		id++
	}

	// Back to speech before the silence window runs out.
	for i := 0; i < 10; i++ {
		sendPacket(t, f.session, id, 0, loudPayload())
		id++
	}

	select {
	case <-f.transcriber.calls:
		t.Fatal("finalized while speech had resumed")
	case <-time.After(400 * time.Millisecond):
	}

	// Let the utterance actually end this time.
	for i := 0; i < 16; i++ {
		sendPacket(t, f.session, id, 0, quietPayload())
		id++
	}
	time.Sleep(5 * time.Millisecond)
	for i := 0; i < 6; i++ {
		sendPacket(t, f.session, id, 0, quietPayload())
		id++
	}

	waitTranscription(t, f)
	if starts, _ := f.gating.counts(); starts != 1 {
		t.Errorf("gating sessions = %d, resume must not open a second", starts)
	}
}

func TestSession_WatchdogFiresWithoutPackets(t *testing.T) {
	f := &sessionFixture{
		gating:      &fakeGating{},
		transcriber: &fakeTranscriber{calls: make(chan []float32, 1)},
		dispatcher:  &fakeDispatcher{calls: make(chan agent.Message, 1)},
		recorder:    newFakeRecorder(),
		publisher:   &fakePublisher{events: make(chan Event, 8)},
		fatal:       make(chan error, 1),
	}
	f.session = NewSession(Config{
		DeviceID:      "dev_test",
		Codec:         transport.CodecPCM16kHz,
		VAD:           testVADConfig(),
		StartWatchdog: 20 * time.Millisecond,
	}, Deps{
		Gating:      f.gating,
		Transcriber: f.transcriber,
		Dispatcher:  f.dispatcher,
		Records:     f.recorder,
		Feed:        f.publisher,
		OnFatal:     func(err error) { f.fatal <- err },
		Log:         slog.New(slog.NewTextHandler(discardWriter{}, nil)),
	})
	f.session.Start()
	defer f.session.Close()

	select {
	case err := <-f.fatal:
		if err == nil {
			t.Error("watchdog fired with nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog never fired")
	}

	select {
	case ev := <-f.publisher.events:
		if ev.Type != EventError {
			t.Errorf("event type = %s, want error", ev.Type)
		}
	case <-time.After(time.Second):
		t.Error("watchdog error never published")
	}
}

func TestSession_WatchdogDisarmedByFirstPacket(t *testing.T) {
	cfg := testVADConfig()
	f := &sessionFixture{
		gating:      &fakeGating{},
		transcriber: &fakeTranscriber{calls: make(chan []float32, 1)},
		dispatcher:  &fakeDispatcher{calls: make(chan agent.Message, 1)},
		recorder:    newFakeRecorder(),
		publisher:   &fakePublisher{events: make(chan Event, 8)},
		fatal:       make(chan error, 1),
	}
	f.session = NewSession(Config{
		DeviceID:      "dev_test",
		Codec:         transport.CodecPCM16kHz,
		VAD:           cfg,
		StartWatchdog: 30 * time.Millisecond,
	}, Deps{
		Gating:      f.gating,
		Transcriber: f.transcriber,
		Dispatcher:  f.dispatcher,
		OnFatal:     func(err error) { f.fatal <- err },
		Log:         slog.New(slog.NewTextHandler(discardWriter{}, nil)),
	})
	f.session.Start()
	defer f.session.Close()

	sendPacket(t, f.session, 1, 0, quietPayload())
	select {
	case <-f.fatal:
		t.Fatal("watchdog fired after audio arrived")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSession_MalformedNotificationIgnored(t *testing.T) {
	f := newSessionFixture(t, testVADConfig())

	if err := f.session.HandleNotification([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("short notification returned %v", err)
	}
	f.feedUtterance(t, 1)
	waitTranscription(t, f)
}

func TestSession_InfoTracksDrops(t *testing.T) {
	f := newSessionFixture(t, testVADConfig())

	sendPacket(t, f.session, 1, 0, quietPayload())
	sendPacket(t, f.session, 5, 0, quietPayload())

	deadline := time.Now().Add(time.Second)
	for {
		if f.session.Info().DroppedFrames == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("dropped = %d, want 3", f.session.Info().DroppedFrames)
		}
		time.Sleep(2 * time.Millisecond)
	}

	info := f.session.Info()
	if info.DeviceID != "dev_test" {
		t.Errorf("device id = %q", info.DeviceID)
	}
	if info.Codec != "pcm16/8000" {
		t.Errorf("codec = %q", info.Codec)
	}
}

func TestSession_CloseIdempotent(t *testing.T) {
	f := newSessionFixture(t, testVADConfig())
	if err := f.session.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := f.session.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := f.session.HandleNotification(quietPayload()); err != ErrClosed {
		t.Errorf("HandleNotification after close = %v, want ErrClosed", err)
	}
}
