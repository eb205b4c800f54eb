package device

import (
	"log/slog"
	"net/http"

	"github.com/eleven-am/wearable-voice/internal/shared"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	store *Store
	log   *slog.Logger
}

func NewHandler(store *Store, log *slog.Logger) *Handler {
	return &Handler{store: store, log: log}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Register)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Revoke)
}

type RegisterRequest struct {
	Name string `json:"name" example:"kitchen pendant"`
}

type RegisterResponse struct {
	Device *Device `json:"device"`
	APIKey string  `json:"api_key" example:"wv_3f8a..."`
}

// Register godoc
// @Summary Register a wearable device
// @Description Creates a device record and returns its API key once. The key cannot be recovered later.
// @Tags devices
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Device name"
// @Success 201 {object} RegisterResponse
// @Failure 400 {object} shared.APIError
// @Security AdminAuth
// @Router /devices [post]
func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return shared.BadRequest("invalid_request", "Invalid request body")
	}
	if req.Name == "" {
		return shared.BadRequest("missing_name", "Device name is required")
	}

	dev := &Device{Name: req.Name}
	secret, err := h.store.Create(c.Request().Context(), dev)
	if err != nil {
		h.log.Error("device registration failed", "error", err)
		return shared.InternalError("create_failed", "Could not register device")
	}

	h.log.Info("device registered", "device_id", dev.ID, "name", dev.Name)
	return c.JSON(http.StatusCreated, RegisterResponse{Device: dev, APIKey: secret})
}

// List godoc
// @Summary List registered devices
// @Tags devices
// @Produce json
// @Success 200 {array} Device
// @Security AdminAuth
// @Router /devices [get]
func (h *Handler) List(c echo.Context) error {
	devices, err := h.store.List(c.Request().Context())
	if err != nil {
		return shared.InternalError("list_failed", "Could not list devices")
	}
	return c.JSON(http.StatusOK, devices)
}

// Get godoc
// @Summary Get a device
// @Tags devices
// @Produce json
// @Param id path string true "Device ID"
// @Success 200 {object} Device
// @Failure 404 {object} shared.APIError
// @Security AdminAuth
// @Router /devices/{id} [get]
func (h *Handler) Get(c echo.Context) error {
	dev, err := h.store.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return shared.NotFound("device_not_found", "Device not found")
	}
	return c.JSON(http.StatusOK, dev)
}

// Revoke godoc
// @Summary Revoke a device
// @Description Deletes the device and invalidates its API key.
// @Tags devices
// @Param id path string true "Device ID"
// @Success 204
// @Failure 404 {object} shared.APIError
// @Security AdminAuth
// @Router /devices/{id} [delete]
func (h *Handler) Revoke(c echo.Context) error {
	if err := h.store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return shared.NotFound("device_not_found", "Device not found")
	}
	h.log.Info("device revoked", "device_id", c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}
