package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/eleven-am/wearable-voice/internal/stream"
	"github.com/eleven-am/wearable-voice/internal/transport"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	helloWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// helloMessage is the first frame a device sends after the upgrade: the
// value of its codec characteristic, read once before audio starts.
type helloMessage struct {
	Codec *uint8 `json:"codec"`
}

// deviceConn owns one device websocket. Binary frames are BLE audio
// notifications forwarded straight to the stream session; the write side
// only carries pings and the close handshake.
type deviceConn struct {
	ws       *websocket.Conn
	deviceID string
	log      *slog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newDeviceConn(ws *websocket.Conn, deviceID string, log *slog.Logger) *deviceConn {
	return &deviceConn{
		ws:       ws,
		deviceID: deviceID,
		log:      log.With("device_id", deviceID),
		done:     make(chan struct{}),
	}
}

// readHello blocks for the codec announcement. Anything but a valid JSON
// text frame with a known codec value fails the connection before any
// session state exists.
func (c *deviceConn) readHello() (transport.Codec, error) {
	_ = c.ws.SetReadDeadline(time.Now().Add(helloWait))

	msgType, data, err := c.ws.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("read hello: %w", err)
	}
	if msgType != websocket.TextMessage {
		return 0, fmt.Errorf("expected text hello, got message type %d", msgType)
	}

	var hello helloMessage
	if err := json.Unmarshal(data, &hello); err != nil {
		return 0, fmt.Errorf("parse hello: %w", err)
	}
	if hello.Codec == nil {
		return 0, fmt.Errorf("hello missing codec")
	}
	return transport.ParseCodec(*hello.Codec)
}

func (c *deviceConn) readPump(session *stream.Session) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket read error", "error", err)
			}
			return
		}

		if msgType != websocket.BinaryMessage {
			c.log.Debug("ignoring non-binary frame after hello", "type", msgType)
			continue
		}

		if err := session.HandleNotification(data); err != nil {
			// Session torn down underneath us (replaced or watchdog).
			return
		}
	}
}

func (c *deviceConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *deviceConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	return c.ws.Close()
}
