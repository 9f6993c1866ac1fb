package rest

import (
	"context"
	"errors"
	"net/http"

	"github.com/KevinKickass/OpenMatrixCore/internal/lw3"
	"github.com/KevinKickass/OpenMatrixCore/internal/types"
	"github.com/gin-gonic/gin"
)

// deviceStatus maps an LW3 client error to an HTTP status and error code suffix.
func deviceStatus(err error) (int, string) {
	switch {
	case errors.Is(err, lw3.ErrInvalidArgument):
		return http.StatusBadRequest, "400"
	case errors.Is(err, lw3.ErrUnknownFamily):
		return http.StatusConflict, "409"
	case errors.Is(err, lw3.ErrNotConnected), errors.Is(err, lw3.ErrConnectionReset):
		return http.StatusServiceUnavailable, "503"
	case errors.Is(err, lw3.ErrTransactionIDInUse):
		return http.StatusTooManyRequests, "429"
	case errors.Is(err, lw3.ErrRequestTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "504"
	default:
		return http.StatusBadGateway, "502"
	}
}

func (s *Server) respondDeviceError(c *gin.Context, prefix, message string, err error) {
	status, code := deviceStatus(err)
	c.JSON(status, types.NewErrorResponse(prefix+"_"+code, message, err.Error()))
}
