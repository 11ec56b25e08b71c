// README: Helper location handlers: ping, latest positions, trail.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"herodispatch/internal/http/middleware"
	"herodispatch/internal/modules/location"
	"herodispatch/internal/types"
)

type Locations interface {
	Ping(ctx context.Context, p location.Ping) (location.Ping, error)
	Latest(ctx context.Context, incidentID types.ID) ([]location.Ping, error)
	Trail(ctx context.Context, incidentID, helperID types.ID) ([]location.Ping, error)
}

type LocationHandler struct {
	location Locations
}

func NewLocationHandler(svc Locations) *LocationHandler {
	return &LocationHandler{location: svc}
}

// Ping records the caller's own position; helpers cannot ping for others.
func (h *LocationHandler) Ping(c *gin.Context) {
	var req positionReq
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.location.Ping(c.Request.Context(), location.Ping{
		IncidentID: types.ID(c.Param("id")),
		HelperID:   types.ID(middleware.CallerUID(c)),
		Position:   types.Point{Lat: *req.Lat, Lng: *req.Lng},
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, p)
}

func (h *LocationHandler) Latest(c *gin.Context) {
	pings, err := h.location.Latest(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"locations": pings})
}

func (h *LocationHandler) Trail(c *gin.Context) {
	pings, err := h.location.Trail(c.Request.Context(), types.ID(c.Param("id")), types.ID(c.Param("helperId")))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"trail": pings})
}
