// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"herodispatch/internal/modules/dispatch"
	"herodispatch/internal/modules/incident"
	"herodispatch/internal/modules/location"
	"herodispatch/internal/modules/responder"
)

type errorResponse struct {
	Error string `json:"error"`
}

type tooFarResponse struct {
	Error      string  `json:"error"`
	DistanceKm float64 `json:"distance_km"`
	LimitKm    float64 `json:"limit_km"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeDispatchError(c *gin.Context, err error) {
	var tooFar *dispatch.TooFarError
	switch {
	case errors.As(err, &tooFar):
		writeJSON(c, http.StatusUnprocessableEntity, tooFarResponse{
			Error:      tooFar.Error(),
			DistanceKm: tooFar.DistanceKm,
			LimitKm:    tooFar.LimitKm,
		})
	case errors.Is(err, dispatch.ErrInvalidInput), errors.Is(err, location.ErrInvalidPing):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, incident.ErrNotFound), errors.Is(err, responder.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrNotCommitted), errors.Is(err, location.ErrNotCommitted):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, dispatch.ErrAlreadyCommitted),
		errors.Is(err, dispatch.ErrIncidentTerminal),
		errors.Is(err, dispatch.ErrInvalidState),
		errors.Is(err, location.ErrClosed),
		errors.Is(err, incident.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// bindJSON decodes and validates the body, answering 400 on failure.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return false
	}
	return true
}
