package recognition

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/eleven-am/wearable-voice/internal/shared"
	"github.com/gorilla/websocket"
)

type reconnectState int

const (
	reconnectIdle reconnectState = iota
	reconnectInProgress
)

type clientMessage struct {
	Type       string `json:"type"`
	Session    uint64 `json:"session,omitempty"`
	Language   string `json:"language,omitempty"`
	Model      string `json:"model,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

type serverMessage struct {
	Type      string `json:"type"`
	Session   uint64 `json:"session"`
	Text      string `json:"text"`
	IsPartial bool   `json:"is_partial"`
	Message   string `json:"message"`
}

// Client streams PCM16 audio to the gating recognizer sidecar over a
// websocket: JSON control frames, binary audio frames. The connection is
// long-lived; logical sessions open and close over it with start/stop
// frames and the sidecar echoes the session tag back on every transcript.
type Client struct {
	cfg Config
	cb  Callbacks

	mu      sync.RWMutex
	writeMu sync.Mutex
	conn    *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	readyCh chan struct{}
	backoff shared.BackoffConfig

	reconnectState reconnectState
}

func New(cfg Config, cb Callbacks) (*Client, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:            cfg,
		cb:             cb,
		ctx:            ctx,
		cancel:         cancel,
		readyCh:        make(chan struct{}),
		backoff:        normalizeBackoff(cfg.Backoff),
		reconnectState: reconnectIdle,
	}

	if err := c.connectAndStart(); err != nil {
		cancel()
		return nil, err
	}
	return c, nil
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

func (c *Client) WaitReady(ctx context.Context) bool {
	c.mu.RLock()
	ready := c.readyCh
	c.mu.RUnlock()
	select {
	case <-ready:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) connectAndStart() error {
	slog.Info("gating recognizer connecting", "url", c.cfg.URL)

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", fmt.Sprintf("Bearer %s", c.cfg.Token))
	}

	conn, resp, err := websocket.DefaultDialer.Dial(c.cfg.URL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		slog.Error("gating recognizer dial failed", "error", err)
		return fmt.Errorf("dial recognizer: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.readyCh = make(chan struct{})
	c.mu.Unlock()

	if err := c.writeJSON(clientMessage{
		Type:       "config",
		Language:   c.cfg.Language,
		Model:      c.cfg.Model,
		SampleRate: c.cfg.SampleRate,
	}); err != nil {
		conn.Close()
		return fmt.Errorf("send config: %w", err)
	}

	go c.readLoop(conn)
	return nil
}

func (c *Client) writeJSON(msg clientMessage) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("recognizer not connected")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) StartSession(id uint64) error {
	return c.writeJSON(clientMessage{Type: "start", Session: id})
}

func (c *Client) Feed(pcm []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("recognizer not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.BinaryMessage, pcm)
}

func (c *Client) StopSession() error {
	return c.writeJSON(clientMessage{Type: "stop"})
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.dropConn(conn)
			select {
			case <-c.ctx.Done():
			default:
				slog.Error("gating recognizer read error", "error", err)
				if c.cb.OnError != nil {
					c.cb.OnError(err)
				}
				c.Reconnect()
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("gating recognizer sent malformed message", "error", err)
			continue
		}

		switch msg.Type {
		case "ready":
			c.mu.RLock()
			ready := c.readyCh
			c.mu.RUnlock()
			select {
			case <-ready:
			default:
				close(ready)
			}
			if c.cb.OnReady != nil {
				c.cb.OnReady()
			}
		case "transcript":
			if c.cb.OnTranscript != nil {
				c.cb.OnTranscript(TranscriptEvent{
					Session:   msg.Session,
					Text:      msg.Text,
					IsPartial: msg.IsPartial,
				})
			}
		case "error":
			if c.cb.OnError != nil {
				c.cb.OnError(fmt.Errorf("recognizer error: %s", msg.Message))
			}
		}
	}
}

// dropConn forgets the connection if it is still the current one, so a
// stale read loop cannot tear down a replacement established by reconnect.
func (c *Client) dropConn(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	conn.Close()
}

// Reconnect redials in the background. Idempotent while an attempt loop is
// running. The read loop calls it when the connection dies; the readiness
// probe calls it again if the loop exhausted its budget while the sidecar
// was still down.
func (c *Client) Reconnect() {
	c.mu.Lock()
	if c.reconnectState == reconnectInProgress {
		c.mu.Unlock()
		return
	}
	c.reconnectState = reconnectInProgress
	c.mu.Unlock()

	go c.reconnectLoop()
}

func (c *Client) reconnectLoop() {
	backoff := c.backoff.Initial

	defer func() {
		c.mu.Lock()
		c.reconnectState = reconnectIdle
		c.mu.Unlock()
	}()

	for attempts := 0; attempts < c.backoff.MaxAttempts; attempts++ {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		if err := c.connectAndStart(); err != nil {
			slog.Warn("gating recognizer reconnect attempt failed",
				"attempt", attempts+1,
				"max_attempts", c.backoff.MaxAttempts,
				"error", err)

			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.backoff.MaxDelay)
			continue
		}

		slog.Info("gating recognizer reconnected", "attempts", attempts+1)
		return
	}

	slog.Error("gating recognizer reconnect gave up",
		"attempts", c.backoff.MaxAttempts)
}

func (c *Client) Close() error {
	c.cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func normalizeBackoff(cfg shared.BackoffConfig) shared.BackoffConfig {
	if cfg.Initial <= 0 {
		cfg.Initial = 100 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 2 * time.Second
	}
	return cfg
}
