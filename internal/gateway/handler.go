package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/eleven-am/wearable-voice/internal/device"
	"github.com/eleven-am/wearable-voice/internal/stream"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const sseHeartbeat = 15 * time.Second

// StreamHandler terminates device websockets and serves the live event feed.
type StreamHandler struct {
	devices *device.Store
	streams *stream.Manager
	feed    *Feed
	log     *slog.Logger
}

func NewStreamHandler(devices *device.Store, streams *stream.Manager, feed *Feed, log *slog.Logger) *StreamHandler {
	if log == nil {
		log = slog.Default()
	}
	return &StreamHandler{
		devices: devices,
		streams: streams,
		feed:    feed,
		log:     log.With("component", "gateway"),
	}
}

// HandleStream godoc
// @Summary Device audio ingestion websocket
// @Description Upgrades to a websocket. The device sends a JSON hello {"codec": N} first, then raw BLE audio notifications as binary frames.
// @Tags stream
// @Param api_key query string false "Device API key (or Authorization: Bearer)"
// @Success 101
// @Failure 401 {object} shared.APIError
// @Router /ws/audio [get]
func (h *StreamHandler) HandleStream(c echo.Context) error {
	key := extractAPIKey(c.Request())
	if key == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing api key")
	}

	dev, err := h.devices.Validate(c.Request().Context(), key)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid api key")
	}

	ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "device_id", dev.ID, "error", err)
		return err
	}

	conn := newDeviceConn(ws, dev.ID, h.log)

	codec, err := conn.readHello()
	if err != nil {
		h.log.Warn("device hello failed", "device_id", dev.ID, "error", err)
		_ = conn.Close()
		return nil
	}

	session, err := h.streams.Open(dev.ID, codec)
	if err != nil {
		h.log.Error("stream open failed", "device_id", dev.ID, "error", err)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "recognizer unavailable"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return nil
	}

	if err := h.devices.TouchLastSeen(c.Request().Context(), dev.ID); err != nil {
		h.log.Warn("last-seen update failed", "device_id", dev.ID, "error", err)
	}

	h.log.Info("device connected",
		"device_id", dev.ID,
		"codec", codec.String())

	// If the session dies on its own or gets replaced, drop the socket.
	go func() {
		<-session.Done()
		_ = conn.Close()
	}()

	go conn.writePump()
	conn.readPump(session)

	session.Close()
	h.streams.Release(dev.ID, session)

	h.log.Info("device disconnected",
		"device_id", dev.ID,
		"dropped_frames", session.Info().DroppedFrames,
		"utterances", session.Info().Utterances)
	return nil
}

// HandleEvents godoc
// @Summary Live transcript feed for a device
// @Description Server-sent events: transcript, reply, and error events as the pipeline produces them.
// @Tags stream
// @Produce text/event-stream
// @Param id path string true "Device ID"
// @Success 200
// @Failure 404 {object} shared.APIError
// @Security AdminAuth
// @Router /devices/{id}/events [get]
func (h *StreamHandler) HandleEvents(c echo.Context) error {
	deviceID := c.Param("id")
	if _, err := h.devices.GetByID(c.Request().Context(), deviceID); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "device not found")
	}

	resp := c.Response()
	resp.Header().Set("Content-Type", "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	ctx := c.Request().Context()
	events := h.feed.Subscribe(ctx, deviceID)
	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	h.log.Info("feed watcher attached", "device_id", deviceID)
	defer h.log.Info("feed watcher detached", "device_id", deviceID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return nil
			}
			resp.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(resp, ": ping\n\n"); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}

func extractAPIKey(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return apiKey
	}

	return r.URL.Query().Get("api_key")
}
