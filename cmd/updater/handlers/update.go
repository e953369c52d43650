package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/scaleflower/otrs-updater/cmd/updater/service"
	"github.com/scaleflower/otrs-updater/common/bootstrap"
	"github.com/scaleflower/otrs-updater/common/clients"
)

// UpdateHandler handles update lifecycle requests
type UpdateHandler struct {
	components *bootstrap.Components
	updates    *service.UpdateService
}

// NewUpdateHandler creates a new update handler
func NewUpdateHandler(components *bootstrap.Components, updates *service.UpdateService) *UpdateHandler {
	return &UpdateHandler{
		components: components,
		updates:    updates,
	}
}

// GetStatus returns the deployment's update status
// GET /update/status
func (h *UpdateHandler) GetStatus(c echo.Context) error {
	status, err := h.updates.Status(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err))
	}
	return c.JSON(http.StatusOK, status)
}

// CheckNow forces an immediate release check, bypassing the metadata cache
// POST /update/check
func (h *UpdateHandler) CheckNow(c echo.Context) error {
	status, err := h.updates.Check(c.Request().Context(), true)
	if err != nil {
		var rl *clients.RateLimitedError
		if errors.As(err, &rl) {
			return c.JSON(http.StatusTooManyRequests, errorBody(err))
		}
		return c.JSON(http.StatusBadGateway, errorBody(err))
	}
	return c.JSON(http.StatusOK, status)
}

type triggerRequest struct {
	TargetVersion string `json:"target_version"`
	Source        string `json:"source"`
	Force         bool   `json:"force"`
}

// Execute triggers an update run and returns its id immediately
// POST /update/execute
func (h *UpdateHandler) Execute(c echo.Context) error {
	var req triggerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err))
	}

	runID, err := h.updates.Trigger(c.Request().Context(), req.TargetVersion, req.Source, req.Force)
	if err != nil {
		var unknown *service.UnknownSourceError
		if errors.As(err, &unknown) {
			return c.JSON(http.StatusBadRequest, errorBody(err))
		}

		var already *service.AlreadyRunningError
		if errors.As(err, &already) {
			return c.JSON(http.StatusConflict, errorBody(err))
		}

		var noop *service.NoOpError
		if errors.As(err, &noop) {
			return c.JSON(http.StatusUnprocessableEntity, errorBody(err))
		}

		return c.JSON(http.StatusInternalServerError, errorBody(err))
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"run_id": runID,
	})
}

// Acknowledge clears the freshly-notified flag
// POST /update/acknowledge
func (h *UpdateHandler) Acknowledge(c echo.Context) error {
	if err := h.updates.Acknowledge(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody(err))
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "acknowledged"})
}

func errorBody(err error) map[string]interface{} {
	return map[string]interface{}{"error": err.Error()}
}
