package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"

	"github.com/scaleflower/otrs-updater/cmd/updater/service"
	"github.com/scaleflower/otrs-updater/common/bootstrap"
)

// LogsHandler serves the update run audit trail
type LogsHandler struct {
	components *bootstrap.Components
	updates    *service.UpdateService
}

// NewLogsHandler creates a new logs handler
func NewLogsHandler(components *bootstrap.Components, updates *service.UpdateService) *LogsHandler {
	return &LogsHandler{
		components: components,
		updates:    updates,
	}
}

// ListRuns returns paginated update run history, newest first
// GET /update/logs?page=1&per_page=10
func (h *LogsHandler) ListRuns(c echo.Context) error {
	page := queryInt(c, "page", 1)
	perPage := queryInt(c, "per_page", 10)

	logs, err := h.updates.Logs(c.Request().Context(), page, perPage)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err))
	}
	return c.JSON(http.StatusOK, logs)
}

// GetRun returns one run with its ordered steps
// GET /update/logs/:id
func (h *LogsHandler) GetRun(c echo.Context) error {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid run id",
		})
	}

	details, err := h.updates.LogDetails(c.Request().Context(), runID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "run not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, errorBody(err))
	}
	return c.JSON(http.StatusOK, details)
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
