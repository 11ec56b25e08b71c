// README: Incident handlers: submit, view, nearby listing, accept, commitment progress, resolve, false alarm.
package handlers

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"herodispatch/internal/http/middleware"
	"herodispatch/internal/modules/dispatch"
	"herodispatch/internal/modules/incident"
	"herodispatch/internal/types"
)

// Dispatcher is the slice of dispatch.Service the HTTP API needs.
type Dispatcher interface {
	Submit(ctx context.Context, cmd dispatch.SubmitCommand) (*incident.Incident, error)
	Get(ctx context.Context, id types.ID) (*dispatch.View, error)
	Nearby(ctx context.Context, q dispatch.NearbyQuery) ([]dispatch.NearbyIncident, error)
	Accept(ctx context.Context, cmd dispatch.AcceptCommand) (*incident.Commitment, error)
	AdvanceCommitment(ctx context.Context, cmd dispatch.AdvanceCommand) (*incident.Commitment, error)
	Resolve(ctx context.Context, cmd dispatch.ResolveCommand) (*incident.Incident, error)
	MarkFalseAlarm(ctx context.Context, cmd dispatch.FalseAlarmCommand) (*incident.Incident, error)
}

// RoleAdmin may close any incident.
const RoleAdmin = "admin"

type IncidentHandler struct {
	dispatch Dispatcher
}

func NewIncidentHandler(d Dispatcher) *IncidentHandler {
	return &IncidentHandler{dispatch: d}
}

type submitReq struct {
	Lat              *float64 `json:"lat" binding:"required"`
	Lng              *float64 `json:"lng" binding:"required"`
	Severity         string   `json:"severity" binding:"required"`
	Type             string   `json:"type"`
	Description      string   `json:"description"`
	RequiredResource string   `json:"required_resource"`
}

func (h *IncidentHandler) Submit(c *gin.Context) {
	var req submitReq
	if !bindJSON(c, &req) {
		return
	}
	inc, err := h.dispatch.Submit(c.Request.Context(), dispatch.SubmitCommand{
		ReporterID:       types.ID(middleware.CallerUID(c)),
		Location:         &types.Point{Lat: *req.Lat, Lng: *req.Lng},
		Severity:         incident.Severity(req.Severity),
		Type:             req.Type,
		Description:      req.Description,
		RequiredResource: req.RequiredResource,
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, inc)
}

func (h *IncidentHandler) Get(c *gin.Context) {
	view, err := h.dispatch.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, view)
}

type nearbyReq struct {
	Lat      *float64 `form:"lat"`
	Lng      *float64 `form:"lng"`
	RadiusKm float64  `form:"radius"`
	Status   string   `form:"status"`
	Limit    int      `form:"limit"`
}

// Nearby lists incidents, optionally around lat/lng. status takes a comma
// separated list.
func (h *IncidentHandler) Nearby(c *gin.Context) {
	var req nearbyReq
	if err := c.ShouldBindQuery(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if (req.Lat == nil) != (req.Lng == nil) {
		writeError(c, http.StatusBadRequest, "lat and lng must be given together")
		return
	}

	q := dispatch.NearbyQuery{RadiusKm: req.RadiusKm, Limit: req.Limit}
	if req.Lat != nil {
		q.Center = &types.Point{Lat: *req.Lat, Lng: *req.Lng}
	}
	for _, st := range strings.Split(req.Status, ",") {
		if st = strings.TrimSpace(st); st != "" {
			q.Statuses = append(q.Statuses, incident.Status(st))
		}
	}

	found, err := h.dispatch.Nearby(c.Request.Context(), q)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"incidents": found})
}

type positionReq struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

func (h *IncidentHandler) Accept(c *gin.Context) {
	var req positionReq
	if !bindJSON(c, &req) {
		return
	}
	commitment, err := h.dispatch.Accept(c.Request.Context(), dispatch.AcceptCommand{
		IncidentID:  types.ID(c.Param("id")),
		ResponderID: types.ID(middleware.CallerUID(c)),
		Location:    types.Point{Lat: *req.Lat, Lng: *req.Lng},
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, commitment)
}

type advanceReq struct {
	Status string `json:"status" binding:"required"`
}

func (h *IncidentHandler) AdvanceCommitment(c *gin.Context) {
	var req advanceReq
	if !bindJSON(c, &req) {
		return
	}
	commitment, err := h.dispatch.AdvanceCommitment(c.Request.Context(), dispatch.AdvanceCommand{
		IncidentID:  types.ID(c.Param("id")),
		ResponderID: types.ID(middleware.CallerUID(c)),
		Status:      incident.CommitmentStatus(req.Status),
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, commitment)
}

// Resolve is open to the reporter, any committed helper and admins.
func (h *IncidentHandler) Resolve(c *gin.Context) {
	id := types.ID(c.Param("id"))
	caller := types.ID(middleware.CallerUID(c))

	view, err := h.dispatch.Get(c.Request.Context(), id)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	if !mayResolve(view, caller, middleware.CallerRole(c)) {
		writeError(c, http.StatusForbidden, "forbidden: only the reporter, a committed helper or an admin may resolve")
		return
	}

	inc, err := h.dispatch.Resolve(c.Request.Context(), dispatch.ResolveCommand{IncidentID: id, ActorID: caller})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, inc)
}

func (h *IncidentHandler) FalseAlarm(c *gin.Context) {
	inc, err := h.dispatch.MarkFalseAlarm(c.Request.Context(), dispatch.FalseAlarmCommand{
		IncidentID: types.ID(c.Param("id")),
		ActorID:    types.ID(middleware.CallerUID(c)),
	})
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, inc)
}

func mayResolve(view *dispatch.View, caller types.ID, role string) bool {
	if role == RoleAdmin || view.Incident.ReporterID == caller {
		return true
	}
	return slices.ContainsFunc(view.Commitments, func(c *incident.Commitment) bool {
		return c.ResponderID == caller
	})
}
