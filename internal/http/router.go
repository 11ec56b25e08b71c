// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"herodispatch/internal/http/handlers"
	"herodispatch/internal/http/middleware"
	"herodispatch/internal/infra"
	"herodispatch/internal/ratelimit"
)

type RouterDeps struct {
	Dispatch   handlers.Dispatcher
	Locations  handlers.Locations
	Responders handlers.Responders
	Sockets    handlers.Sockets
	Verifier   infra.TokenVerifier
	Logger     zerolog.Logger

	// Per-caller budgets. PingLimiter is shared with the websocket hub.
	PingLimiter   *ratelimit.Keyed
	SubmitLimiter *ratelimit.Keyed
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(deps.Logger), middleware.Logging(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	auth := middleware.Auth(deps.Verifier)
	r.GET("/ws", auth, handlers.NewWSHandler(deps.Sockets).Connect)

	api := r.Group("/api", auth)

	incidentHandler := handlers.NewIncidentHandler(deps.Dispatch)
	api.POST("/incidents", middleware.RateLimit(deps.SubmitLimiter), incidentHandler.Submit)
	api.GET("/incidents", incidentHandler.Nearby)
	api.GET("/incidents/:id", incidentHandler.Get)
	api.POST("/incidents/:id/accept", incidentHandler.Accept)
	api.PUT("/incidents/:id/commitment", incidentHandler.AdvanceCommitment)
	api.POST("/incidents/:id/resolve", incidentHandler.Resolve)
	api.POST("/incidents/:id/false-alarm", middleware.RequireRole(handlers.RoleAdmin), incidentHandler.FalseAlarm)

	locationHandler := handlers.NewLocationHandler(deps.Locations)
	api.POST("/incidents/:id/locations", middleware.RateLimit(deps.PingLimiter), locationHandler.Ping)
	api.GET("/incidents/:id/locations", locationHandler.Latest)
	api.GET("/incidents/:id/locations/:helperId", locationHandler.Trail)

	responderHandler := handlers.NewResponderHandler(deps.Responders)
	api.PUT("/responders/me/presence", responderHandler.UpdatePresence)
	api.GET("/responders/me/stats", responderHandler.Stats)

	return r
}
