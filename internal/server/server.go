// Package server exposes the core operations over HTTP. Authentication and
// request validation happen at the gateway; this layer trusts the principal
// headers the gateway injects and only translates between HTTP and the
// service types.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/core"
	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/service"
)

type Server struct {
	matchmaker *service.Matchmaker
	lifecycle  *service.Lifecycle
	sessions   *service.SessionTracker
	discovery  *service.Discovery
}

func New(matchmaker *service.Matchmaker, lifecycle *service.Lifecycle, sessions *service.SessionTracker, discovery *service.Discovery) *Server {
	return &Server{
		matchmaker: matchmaker,
		lifecycle:  lifecycle,
		sessions:   sessions,
		discovery:  discovery,
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	r.GET("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	api := r.Group("/api/v1")
	{
		api.POST("/match", s.handleMatch)
		api.GET("/servers", s.handleListActive)
		api.GET("/servers/scheduled", s.handleFindScheduled)
		api.POST("/servers", s.handleRegister)
		api.GET("/servers/:id", s.handleGet)
		api.PUT("/servers/:id/heartbeat", s.handleHeartbeat)
		api.DELETE("/servers/:id", s.handleDelete)
		api.POST("/servers/:id/players/:userId/connect", s.handleConnect)
		api.POST("/servers/:id/players/:userId/disconnect", s.handleDisconnect)
		api.GET("/spaces/:id/servers", s.handleFindPublic)
	}

	return r
}

// requester reconstructs the principal the gateway authenticated upstream.
func requester(c *gin.Context) *core.Requester {
	id := c.GetHeader("X-User-Id")
	if id == "" {
		return nil
	}
	return &core.Requester{
		ID:         id,
		IsAdmin:    c.GetHeader("X-User-Admin") == "true",
		IsInternal: c.GetHeader("X-User-Internal") == "true",
		IsBanned:   c.GetHeader("X-User-Banned") == "true",
		IsActive:   c.GetHeader("X-User-Active") != "false",
	}
}

// fail maps core error kinds onto HTTP status codes.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrParameter):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrAccess):
		status = http.StatusForbidden
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrProvisioningInFlight):
		status = http.StatusConflict
	case errors.Is(err, core.ErrOrchestrator):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
