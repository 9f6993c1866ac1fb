package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenMatrixCore/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GET /api/v1/connection
func (s *Server) getConnection(c *gin.Context) {
	device := s.lm.Device()
	c.JSON(http.StatusOK, gin.H{
		"state":            device.State().String(),
		"address":          device.Address(),
		"session":          device.Session(),
		"family":           device.Family().String(),
		"pending_requests": device.Pending(),
	})
}

// PUT /api/v1/connection
func (s *Server) retarget(c *gin.Context) {
	var req struct {
		Transport  string `json:"transport"`
		Host       string `json:"host"`
		Port       int    `json:"port"`
		SerialPort string `json:"serial_port"`
		BaudRate   int    `json:"baud_rate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("CONNECTION_400", "Invalid request body", err.Error()))
		return
	}

	target := s.lm.Config().Device
	target.Transport = req.Transport
	if target.Transport == "" {
		target.Transport = "tcp"
	}
	target.Host = req.Host
	target.SerialPort = req.SerialPort
	if req.Port != 0 {
		target.Port = req.Port
	}
	if req.BaudRate != 0 {
		target.BaudRate = req.BaudRate
	}

	switch {
	case target.Transport == "tcp" && target.Host == "":
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("CONNECTION_400", "Invalid target", "host is required"))
		return
	case target.Transport == "serial" && target.SerialPort == "":
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("CONNECTION_400", "Invalid target", "serial_port is required"))
		return
	case target.Transport != "tcp" && target.Transport != "serial":
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("CONNECTION_400", "Invalid target", "unknown transport"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	if err := s.lm.Retarget(ctx, target); err != nil {
		s.logger.Warn("Retarget failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, types.NewErrorResponse("CONNECTION_502", "Failed to connect to new target", err.Error()))
		return
	}

	s.getConnection(c)
}
