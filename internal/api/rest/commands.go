package rest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenMatrixCore/internal/types"
	"github.com/gin-gonic/gin"
)

type commandRequest struct {
	Command   string `json:"command"`
	TimeoutMS int    `json:"timeout_ms,omitempty"`
}

// POST /api/v1/commands
func (s *Server) sendCommand(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("COMMAND_400", "Failed to read body", err.Error()))
		return
	}
	if err := s.validator.ValidateCommand(data); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("COMMAND_400", "Invalid command", err.Error()))
		return
	}

	var req commandRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("COMMAND_400", "Invalid request body", err.Error()))
		return
	}

	timeout := actionTimeout
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	body, err := s.lm.Device().SendContext(ctx, req.Command)
	if err != nil {
		s.respondDeviceError(c, "COMMAND", "Command failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"command": req.Command,
		"body":    body,
	})
}
