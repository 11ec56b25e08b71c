// README: Websocket upgrade handler.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"herodispatch/internal/http/middleware"
	"herodispatch/internal/types"
)

type Sockets interface {
	Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, userID types.ID) error
}

type WSHandler struct {
	sockets Sockets
}

func NewWSHandler(s Sockets) *WSHandler {
	return &WSHandler{sockets: s}
}

func (h *WSHandler) Connect(c *gin.Context) {
	// The upgrader has already answered the client when Serve fails.
	if err := h.sockets.Serve(c.Request.Context(), c.Writer, c.Request, types.ID(middleware.CallerUID(c))); err != nil {
		_ = c.Error(err)
	}
}
