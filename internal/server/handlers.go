package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/VeVerse-Metaverse/artheon-api-sub000/internal/service"
)

type matchRequest struct {
	SpaceID string `json:"space_id" binding:"required"`
	Kind    string `json:"kind"`
	Build   string `json:"build"`
	Host    string `json:"host"`
}

func (s *Server) handleMatch(c *gin.Context) {
	var req matchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	workload, err := s.matchmaker.Match(c.Request.Context(), requester(c), service.MatchRequest{
		SpaceID: req.SpaceID,
		Kind:    req.Kind,
		Build:   req.Build,
		Host:    req.Host,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, workload)
}

type registerRequest struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	SpaceID    string `json:"space_id" binding:"required"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Build      string `json:"build"`
	Map        string `json:"map"`
	GameMode   string `json:"game_mode"`
	MaxPlayers int    `json:"max_players"`
	Public     bool   `json:"public"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	workload, err := s.lifecycle.Register(c.Request.Context(), requester(c), service.RegisterInput{
		ID:         req.ID,
		Kind:       req.Kind,
		SpaceID:    req.SpaceID,
		Host:       req.Host,
		Port:       req.Port,
		Build:      req.Build,
		Map:        req.Map,
		GameMode:   req.GameMode,
		MaxPlayers: req.MaxPlayers,
		Public:     req.Public,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, workload)
}

type heartbeatRequest struct {
	Status  string `json:"status"`
	Details string `json:"details"`
}

func (s *Server) handleHeartbeat(c *gin.Context) {
	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	accepted, err := s.lifecycle.Heartbeat(c.Request.Context(), requester(c), c.Param("id"), req.Status, req.Details)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accepted": accepted})
}

func (s *Server) handleDelete(c *gin.Context) {
	if err := s.lifecycle.Delete(c.Request.Context(), requester(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopping"})
}

func (s *Server) handleGet(c *gin.Context) {
	workload, err := s.lifecycle.Get(c.Request.Context(), requester(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, workload)
}

func (s *Server) handleConnect(c *gin.Context) {
	session, err := s.sessions.Connect(c.Request.Context(), requester(c), c.Param("id"), c.Param("userId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) handleDisconnect(c *gin.Context) {
	session, err := s.sessions.Disconnect(c.Request.Context(), requester(c), c.Param("id"), c.Param("userId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) handleListActive(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	workloads, total, err := s.matchmaker.ListActive(c.Request.Context(), requester(c), offset, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": workloads, "offset": offset, "limit": limit, "total": total})
}

func (s *Server) handleFindPublic(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	workloads, total, err := s.matchmaker.FindPublic(c.Request.Context(), c.Param("id"), offset, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entities": workloads, "offset": offset, "limit": limit, "total": total})
}

func (s *Server) handleFindScheduled(c *gin.Context) {
	space, err := s.discovery.FindUnhostedScheduledSpace(c.Request.Context(), requester(c), c.Query("platform"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, space)
}
