package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/KevinKickass/OpenMatrixCore/internal/matrix"
	"github.com/KevinKickass/OpenMatrixCore/internal/types"
	"github.com/gin-gonic/gin"
)

// actionTimeout bounds how long a handler waits for the device reply.
const actionTimeout = 10 * time.Second

func actionContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), actionTimeout)
}

type actionResponse struct {
	Result string `json:"result"`
}

// GET /api/v1/matrix
func (s *Server) getMatrix(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.Device().Model().Snapshot())
}

// GET /api/v1/matrix/choices
func (s *Server) getChoices(c *gin.Context) {
	model := s.lm.Device().Model()
	c.JSON(http.StatusOK, gin.H{
		"inputs":  model.InputChoices(),
		"outputs": model.OutputChoices(),
		"presets": model.Presets(),
	})
}

// GET /api/v1/matrix/routes/:output
// output is a port id ("O3") or an output number ("3").
func (s *Server) getRoute(c *gin.Context) {
	param := c.Param("output")

	n, err := strconv.Atoi(param)
	if err != nil {
		if matrix.KindOf(param) != matrix.PortOutput {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("MATRIX_400", "Invalid output", param))
			return
		}
		n = matrix.PortNumber(param)
	}

	source, ok := s.lm.Device().Model().SourceFor(n)
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("MATRIX_404", "Output not in destination list", param))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"output": matrix.OutputID(n),
		"source": source,
		"routed": source != "",
	})
}

// POST /api/v1/matrix/switch
func (s *Server) switchCrosspoint(c *gin.Context) {
	var req struct {
		Input  string `json:"input" binding:"required"`
		Output string `json:"output" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("MATRIX_400", "Invalid request body", err.Error()))
		return
	}

	ctx, cancel := actionContext(c)
	defer cancel()

	result, err := s.lm.Device().Switch(ctx, req.Input, req.Output)
	if err != nil {
		s.respondDeviceError(c, "MATRIX", "Switch failed", err)
		return
	}
	c.JSON(http.StatusOK, actionResponse{Result: result})
}

// GET /api/v1/presets
func (s *Server) listPresets(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.Device().Model().Presets())
}

// POST /api/v1/presets/:id/load
func (s *Server) loadPreset(c *gin.Context) {
	ctx, cancel := actionContext(c)
	defer cancel()

	result, err := s.lm.Device().LoadPreset(ctx, c.Param("id"))
	if err != nil {
		s.respondDeviceError(c, "PRESET", "Preset load failed", err)
		return
	}
	c.JSON(http.StatusOK, actionResponse{Result: result})
}

// POST /api/v1/usb/host
func (s *Server) switchUSB(c *gin.Context) {
	var req struct {
		Host string `json:"host" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("USB_400", "Invalid request body", err.Error()))
		return
	}

	ctx, cancel := actionContext(c)
	defer cancel()

	result, err := s.lm.Device().SwitchUSB(ctx, req.Host)
	if err != nil {
		s.respondDeviceError(c, "USB", "USB switch failed", err)
		return
	}
	c.JSON(http.StatusOK, actionResponse{Result: result})
}

// POST /api/v1/macros/:name/run
func (s *Server) runMacro(c *gin.Context) {
	ctx, cancel := actionContext(c)
	defer cancel()

	result, err := s.lm.Device().RunMacro(ctx, c.Param("name"))
	if err != nil {
		s.respondDeviceError(c, "MACRO", "Macro failed", err)
		return
	}
	c.JSON(http.StatusOK, actionResponse{Result: result})
}
