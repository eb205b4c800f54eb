// Package stream runs the ingestion pipeline for one wearable audio stream:
// framing, decoding, conditioning, segmentation, gating, and utterance
// delivery. All segmentation state lives on a single goroutine; packets,
// the silence timer, and the start watchdog are serialized onto its event
// channel, so no VAD or buffer state is ever touched concurrently.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eleven-am/wearable-voice/internal/agent"
	"github.com/eleven-am/wearable-voice/internal/audio"
	"github.com/eleven-am/wearable-voice/internal/shared"
	"github.com/eleven-am/wearable-voice/internal/transcription"
	"github.com/eleven-am/wearable-voice/internal/transport"
	"github.com/eleven-am/wearable-voice/internal/utterance"
	"github.com/eleven-am/wearable-voice/internal/vad"
)

var ErrClosed = errors.New("stream session closed")

const (
	DefaultStartWatchdog = 5 * time.Second

	eventBuffer = 256
)

type Config struct {
	DeviceID      string
	Codec         transport.Codec
	VAD           vad.Config
	StartWatchdog time.Duration
}

type Deps struct {
	Gating       Gating
	GatingCloser func() error
	Transcriber  transcription.Transcriber
	Dispatcher   Dispatcher
	Records      Recorder
	Feed         Publisher
	// OnFatal fires once when the stream dies on its own (start watchdog),
	// so the owning connection can be torn down.
	OnFatal func(err error)
	Log     *slog.Logger
}

type sessionEvent interface{ isSessionEvent() }

type packetEvent struct{ data []byte }
type silenceEvent struct{ epoch uint64 }
type watchdogEvent struct{}

func (packetEvent) isSessionEvent()   {}
func (silenceEvent) isSessionEvent()  {}
func (watchdogEvent) isSessionEvent() {}

type Session struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	events chan sessionEvent
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// Owned by the run loop. Never read or written from outside it.
	framer       *transport.Framer
	decoder      *audio.Decoder
	cond         *audio.Conditioner
	seg          *vad.Segmenter
	preroll      *vad.PreRoll
	speech       []float32
	gotPacket    bool
	silenceTimer *time.Timer
	silenceEpoch uint64
	watchdog     *time.Timer

	// Snapshots for outside observers.
	phaseMu    sync.RWMutex
	phase      vad.Phase
	dropped    atomic.Int64
	utterances atomic.Int64
	startedAt  time.Time

	closeOnce sync.Once
}

func NewSession(cfg Config, deps Deps) *Session {
	if cfg.StartWatchdog == 0 {
		cfg.StartWatchdog = DefaultStartWatchdog
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}

	seg := vad.NewSegmenter(cfg.VAD)
	cfg.VAD = seg.Config()

	ctx, cancel := context.WithCancel(context.Background())
	prerollCap := int(cfg.VAD.PreRollDuration.Seconds() * float64(cfg.Codec.SampleRate()))

	return &Session{
		cfg:       cfg,
		deps:      deps,
		log:       deps.Log.With("component", "stream", "device_id", cfg.DeviceID),
		events:    make(chan sessionEvent, eventBuffer),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		framer:    transport.NewFramer(),
		decoder:   audio.NewDecoder(),
		cond:      audio.NewConditioner(),
		seg:       seg,
		preroll:   vad.NewPreRoll(prerollCap),
		phase:     vad.PhaseWaiting,
		startedAt: time.Now(),
	}
}

func (s *Session) Start() {
	s.watchdog = time.AfterFunc(s.cfg.StartWatchdog, func() {
		s.post(watchdogEvent{})
	})
	go s.run()
	s.log.Info("stream session started",
		"codec", s.cfg.Codec.String(),
		"watchdog", s.cfg.StartWatchdog)
}

// HandleNotification hands one raw BLE notification to the session. Packets
// are processed strictly in arrival order; the call blocks briefly if the
// loop is behind rather than reordering or dropping.
func (s *Session) HandleNotification(data []byte) error {
	if s.ctx.Err() != nil {
		return ErrClosed
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case s.events <- packetEvent{data: buf}:
		return nil
	case <-s.ctx.Done():
		return ErrClosed
	}
}

func (s *Session) post(ev sessionEvent) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return
		case ev := <-s.events:
			switch e := ev.(type) {
			case packetEvent:
				s.processPacket(e.data)
			case silenceEvent:
				s.finalize(e.epoch)
			case watchdogEvent:
				s.handleWatchdog()
			}
		}
	}
}

func (s *Session) processPacket(data []byte) {
	pkt, err := transport.ParsePacket(data)
	if err != nil {
		// Malformed or empty notification: dropped silently, not fatal.
		return
	}

	if !s.gotPacket {
		s.gotPacket = true
		if s.watchdog != nil {
			s.watchdog.Stop()
			s.watchdog = nil
		}
	}

	payload := s.framer.Ingest(pkt)
	s.dropped.Store(s.framer.Dropped())

	samples := s.decoder.Decode(payload)
	if len(samples) == 0 {
		return
	}

	level := s.cond.Process(samples)

	if s.seg.Phase() == vad.PhaseWaiting {
		s.preroll.Append(samples)
	}

	decision := s.seg.Observe(level, time.Now())

	switch {
	case decision.StartSpeech:
		s.beginUtterance()
	case decision.ArmSilence:
		s.armSilence()
	case decision.CancelSilence:
		s.cancelSilence()
	}

	if !decision.StartSpeech && s.seg.Phase() != vad.PhaseWaiting {
		s.speech = append(s.speech, samples...)
		if err := s.deps.Gating.Feed(samples, s.cfg.Codec.SampleRate()); err != nil {
			s.log.Warn("gating feed failed", "error", err)
		}
	}

	s.setPhase(s.seg.Phase())
}

// beginUtterance flushes the pre-roll into a fresh speech buffer and the
// gating session, so onset audio heard before the trigger survives.
func (s *Session) beginUtterance() {
	id, err := s.deps.Gating.Start()
	if err != nil {
		s.log.Warn("gating session start failed", "error", err)
	}

	lead := s.preroll.Flush()
	s.speech = append(make([]float32, 0, len(lead)*4), lead...)
	if len(lead) > 0 {
		if err := s.deps.Gating.Feed(lead, s.cfg.Codec.SampleRate()); err != nil {
			s.log.Warn("gating pre-roll feed failed", "error", err)
		}
	}

	s.log.Debug("speech started",
		"gating_session", id,
		"preroll_samples", len(lead))
}

func (s *Session) armSilence() {
	s.silenceEpoch++
	epoch := s.silenceEpoch
	s.silenceTimer = time.AfterFunc(s.cfg.VAD.SilenceDuration, func() {
		s.post(silenceEvent{epoch: epoch})
	})
	s.log.Debug("silence armed", "epoch", epoch)
}

func (s *Session) cancelSilence() {
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
		s.silenceTimer = nil
	}
	// Bump the epoch so a timer that already fired is ignored by the loop.
	s.silenceEpoch++
	s.log.Debug("silence canceled, speech resumed")
}

// finalize ends the current utterance. Segmentation state is fully reset
// before the transcription call is even scheduled, so the next utterance
// can begin while this one is still in flight.
func (s *Session) finalize(epoch uint64) {
	if epoch != s.silenceEpoch || s.seg.Phase() != vad.PhaseSilence {
		return
	}

	gatingText := strings.TrimSpace(s.deps.Gating.Text())
	buf := s.speech
	rate := s.cfg.Codec.SampleRate()
	droppedSoFar := s.framer.Dropped()

	if err := s.deps.Gating.Stop(); err != nil {
		s.log.Warn("gating session stop failed", "error", err)
	}

	s.speech = nil
	s.silenceTimer = nil
	s.seg.Reset()
	s.cond.Reset()
	s.preroll.Reset()
	s.setPhase(vad.PhaseWaiting)

	if gatingText == "" || len(buf) == 0 {
		s.log.Debug("utterance discarded as noise",
			"gating_text", gatingText,
			"samples", len(buf))
		return
	}

	u := &utterance.Utterance{
		ID:            shared.NewID("utt_"),
		DeviceID:      s.cfg.DeviceID,
		Status:        utterance.StatusPending,
		GatingText:    gatingText,
		SampleRate:    rate,
		DurationMs:    int64(float64(len(buf)) / float64(rate) * 1000),
		DroppedFrames: droppedSoFar,
	}

	s.log.Info("utterance finalized",
		"utterance_id", u.ID,
		"duration_ms", u.DurationMs,
		"dropped_frames", u.DroppedFrames)

	go s.deliver(u, buf, rate)
}

// deliver runs off the serialized path. It touches only thread-safe
// collaborators and is keyed by the utterance id, never by "current"
// session state, so concurrent utterances cannot cross-talk.
func (s *Session) deliver(u *utterance.Utterance, buf []float32, rate int) {
	ctx := context.Background()

	if s.deps.Records != nil {
		if err := s.deps.Records.Create(ctx, u); err != nil {
			s.log.Error("utterance record create failed", "utterance_id", u.ID, "error", err)
		}
	}

	text, err := s.deps.Transcriber.Transcribe(ctx, buf, rate)
	if err != nil {
		if errors.Is(err, transcription.ErrAudioTooShort) || errors.Is(err, transcription.ErrHallucination) {
			s.log.Debug("utterance discarded after transcription",
				"utterance_id", u.ID, "reason", err)
			s.record(ctx, u.ID, func(r Recorder) error {
				return r.MarkDiscarded(ctx, u.ID, err.Error())
			})
			return
		}
		s.log.Error("transcription failed", "utterance_id", u.ID, "error", err)
		s.record(ctx, u.ID, func(r Recorder) error {
			return r.MarkFailed(ctx, u.ID, err.Error())
		})
		s.publish(ctx, Event{Type: EventError, DeviceID: s.cfg.DeviceID, UtteranceID: u.ID, Text: err.Error()})
		return
	}

	s.record(ctx, u.ID, func(r Recorder) error {
		return r.MarkTranscribed(ctx, u.ID, text)
	})
	s.publish(ctx, Event{Type: EventTranscript, DeviceID: s.cfg.DeviceID, UtteranceID: u.ID, Text: text})
	s.utterances.Add(1)

	reply, err := s.deps.Dispatcher.Send(ctx, agent.Message{
		DeviceID:    s.cfg.DeviceID,
		UtteranceID: u.ID,
		Text:        text,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		s.log.Error("agent dispatch failed", "utterance_id", u.ID, "error", err)
		s.record(ctx, u.ID, func(r Recorder) error {
			return r.MarkFailed(ctx, u.ID, err.Error())
		})
		s.publish(ctx, Event{Type: EventError, DeviceID: s.cfg.DeviceID, UtteranceID: u.ID, Text: err.Error()})
		return
	}

	s.record(ctx, u.ID, func(r Recorder) error {
		return r.MarkDelivered(ctx, u.ID, reply.Text)
	})
	s.publish(ctx, Event{Type: EventReply, DeviceID: s.cfg.DeviceID, UtteranceID: u.ID, Text: reply.Text})
}

func (s *Session) record(ctx context.Context, id string, fn func(Recorder) error) {
	if s.deps.Records == nil {
		return
	}
	if err := fn(s.deps.Records); err != nil {
		s.log.Warn("utterance record update failed", "utterance_id", id, "error", err)
	}
}

func (s *Session) publish(ctx context.Context, ev Event) {
	if s.deps.Feed == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	if err := s.deps.Feed.Publish(ctx, ev); err != nil {
		s.log.Warn("feed publish failed", "error", err)
	}
}

func (s *Session) handleWatchdog() {
	if s.gotPacket {
		return
	}
	err := fmt.Errorf("no audio packets within %s of stream start", s.cfg.StartWatchdog)
	s.log.Error("stream watchdog fired", "error", err)
	s.publish(s.ctx, Event{Type: EventError, DeviceID: s.cfg.DeviceID, Text: err.Error()})
	if s.deps.OnFatal != nil {
		go s.deps.OnFatal(err)
	}
	s.cancel()
}

func (s *Session) shutdown() {
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
		s.silenceTimer = nil
	}
	if s.watchdog != nil {
		s.watchdog.Stop()
		s.watchdog = nil
	}
	if s.seg.Phase() != vad.PhaseWaiting {
		s.log.Debug("discarding partial utterance on shutdown",
			"samples", len(s.speech))
		if err := s.deps.Gating.Stop(); err != nil {
			s.log.Debug("gating stop on shutdown failed", "error", err)
		}
	}
	if s.deps.GatingCloser != nil {
		if err := s.deps.GatingCloser(); err != nil {
			s.log.Debug("gating close failed", "error", err)
		}
	}
	s.log.Info("stream session stopped",
		"dropped_frames", s.dropped.Load(),
		"utterances", s.utterances.Load())
}

// Close stops the loop. In-flight transcription or dispatch calls are not
// canceled; their results land on the utterance rows they are keyed to.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// Done closes when the event loop has exited, whether by Close or by the
// session dying on its own.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) setPhase(p vad.Phase) {
	s.phaseMu.Lock()
	s.phase = p
	s.phaseMu.Unlock()
}

func (s *Session) Phase() vad.Phase {
	s.phaseMu.RLock()
	defer s.phaseMu.RUnlock()
	return s.phase
}

func (s *Session) DeviceID() string {
	return s.cfg.DeviceID
}

func (s *Session) Info() SessionInfo {
	return SessionInfo{
		DeviceID:      s.cfg.DeviceID,
		Codec:         s.cfg.Codec.String(),
		Phase:         string(s.Phase()),
		DroppedFrames: s.dropped.Load(),
		Utterances:    s.utterances.Load(),
		StartedAt:     s.startedAt,
	}
}
