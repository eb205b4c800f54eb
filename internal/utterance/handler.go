package utterance

import (
	"net/http"
	"strconv"

	"github.com/eleven-am/wearable-voice/internal/shared"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	store *Store
}

func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/:id/utterances", h.ListByDevice)
	g.GET("/:id/utterances/:utteranceID", h.Get)
}

// ListByDevice godoc
// @Summary List a device's utterances
// @Tags utterances
// @Produce json
// @Param id path string true "Device ID"
// @Param limit query int false "Max rows (default 50)"
// @Success 200 {array} Utterance
// @Security AdminAuth
// @Router /devices/{id}/utterances [get]
func (h *Handler) ListByDevice(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	utterances, err := h.store.ListByDevice(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return shared.InternalError("list_failed", "Could not list utterances")
	}
	return c.JSON(http.StatusOK, utterances)
}

// Get godoc
// @Summary Get one utterance
// @Tags utterances
// @Produce json
// @Param id path string true "Device ID"
// @Param utteranceID path string true "Utterance ID"
// @Success 200 {object} Utterance
// @Failure 404 {object} shared.APIError
// @Security AdminAuth
// @Router /devices/{id}/utterances/{utteranceID} [get]
func (h *Handler) Get(c echo.Context) error {
	u, err := h.store.GetByID(c.Request().Context(), c.Param("utteranceID"))
	if err != nil {
		return shared.NotFound("utterance_not_found", "Utterance not found")
	}
	return c.JSON(http.StatusOK, u)
}
