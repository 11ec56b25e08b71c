// README: Responder self-service handlers: presence and reward stats.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"herodispatch/internal/http/middleware"
	"herodispatch/internal/modules/responder"
	"herodispatch/internal/types"
)

type Responders interface {
	UpdatePresence(ctx context.Context, p responder.Presence) error
	Stats(ctx context.Context, id types.ID) (responder.Stats, error)
}

type ResponderHandler struct {
	responders Responders
}

func NewResponderHandler(r Responders) *ResponderHandler {
	return &ResponderHandler{responders: r}
}

type presenceReq struct {
	Role        string   `json:"role" binding:"required"`
	Profession  string   `json:"profession"`
	BloodGroup  string   `json:"blood_group" binding:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	Available   *bool    `json:"available" binding:"required"`
	Lat         *float64 `json:"lat" binding:"omitempty,gte=-90,lte=90"`
	Lng         *float64 `json:"lng" binding:"omitempty,gte=-180,lte=180"`
	DeviceToken string   `json:"device_token"`
}

func (h *ResponderHandler) UpdatePresence(c *gin.Context) {
	var req presenceReq
	if !bindJSON(c, &req) {
		return
	}
	p := responder.Presence{
		ID:          types.ID(middleware.CallerUID(c)),
		Role:        req.Role,
		Profession:  req.Profession,
		BloodGroup:  req.BloodGroup,
		Available:   *req.Available,
		DeviceToken: req.DeviceToken,
	}
	if req.Lat != nil && req.Lng != nil {
		p.Position = &types.Point{Lat: *req.Lat, Lng: *req.Lng}
	}
	if err := h.responders.UpdatePresence(c.Request.Context(), p); err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok", "available": p.Available})
}

func (h *ResponderHandler) Stats(c *gin.Context) {
	st, err := h.responders.Stats(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}
