package handlers

import (
	"net/http"
	"strconv"

	"homeport/internal/models"

	"github.com/labstack/echo/v4"
)

const (
	defaultReadingLimit = 50
	maxReadingLimit     = 500
)

// Store is the part of the journal the API reads.
type Store interface {
	Forwards() ([]models.PortForward, error)
	Readings(deviceID string, limit int) ([]models.Reading, error)
	LatestReadings(deviceID string) ([]models.Reading, error)
}

type StatusHandler struct {
	store Store
}

func RegisterRoutes(e *echo.Echo, api *echo.Group, store Store) {
	h := &StatusHandler{store: store}

	e.GET("/", h.Dashboard)
	e.GET("/healthz", h.Health)
	api.GET("/forwards", h.ListForwards)
	api.GET("/readings", h.ListReadings)
	api.GET("/readings/latest", h.LatestReadings)
}

func (h *StatusHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Dashboard renders dashboard.html; e.Renderer must be set.
func (h *StatusHandler) Dashboard(c echo.Context) error {
	forwards, err := h.store.Forwards()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	readings, err := h.store.LatestReadings(c.QueryParam("device"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.Render(http.StatusOK, "dashboard.html", map[string]interface{}{
		"Forwards": forwards,
		"Readings": readings,
	})
}

func (h *StatusHandler) ListForwards(c echo.Context) error {
	forwards, err := h.store.Forwards()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if forwards == nil {
		forwards = []models.PortForward{}
	}
	return c.JSON(http.StatusOK, forwards)
}

func (h *StatusHandler) ListReadings(c echo.Context) error {
	limit := defaultReadingLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		}
		limit = min(n, maxReadingLimit)
	}

	readings, err := h.store.Readings(c.QueryParam("device"), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if readings == nil {
		readings = []models.Reading{}
	}
	return c.JSON(http.StatusOK, readings)
}

func (h *StatusHandler) LatestReadings(c echo.Context) error {
	readings, err := h.store.LatestReadings(c.QueryParam("device"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if readings == nil {
		readings = []models.Reading{}
	}
	return c.JSON(http.StatusOK, readings)
}
