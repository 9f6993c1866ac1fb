package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenMatrixCore/internal/api/websocket"
	"github.com/KevinKickass/OpenMatrixCore/internal/auth"
	"github.com/KevinKickass/OpenMatrixCore/internal/config"
	"github.com/KevinKickass/OpenMatrixCore/internal/interfaces"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
	validator   *Validator
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
		validator:   validator,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	authed := s.authService.AuthMiddleware()

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// ==================== MATRIX (OPERATOR+) ====================
		matrix := v1.Group("/matrix", authed, auth.RequirePermission(auth.PermOperator))
		{
			matrix.GET("", s.getMatrix)
			matrix.GET("/choices", s.getChoices)
			matrix.GET("/routes/:output", s.getRoute)
			matrix.POST("/switch", s.switchCrosspoint)
		}

		// ==================== PRESETS (OPERATOR+) ====================
		presets := v1.Group("/presets", authed, auth.RequirePermission(auth.PermOperator))
		{
			presets.GET("", s.listPresets)
			presets.POST("/:id/load", s.loadPreset)
		}

		// ==================== CAPABILITIES (TECHNICIAN+) ====================
		v1.POST("/usb/host", authed, auth.RequirePermission(auth.PermTechnician), s.switchUSB)
		v1.POST("/macros/:name/run", authed, auth.RequirePermission(auth.PermTechnician), s.runMacro)

		// ==================== RAW LW3 (ADMIN ONLY) ====================
		v1.POST("/commands", authed, auth.RequirePermission(auth.PermAdmin), s.sendCommand)

		// ==================== CONNECTION ====================
		connection := v1.Group("/connection", authed)
		{
			connection.GET("", auth.RequirePermission(auth.PermOperator), s.getConnection)
			connection.PUT("", auth.RequirePermission(auth.PermAdmin), s.retarget)
		}

		// ==================== JOURNAL (ADMIN ONLY) ====================
		v1.GET("/journal/events", authed, auth.RequirePermission(auth.PermAdmin), s.listJournalEvents)

		// ==================== SYSTEM ====================
		system := v1.Group("/system", authed)
		{
			system.GET("/status", auth.RequirePermission(auth.PermOperator), s.getSystemStatus)
			system.POST("/shutdown", auth.RequirePermission(auth.PermAdmin), s.shutdown)
		}

		// ==================== WEBSOCKET (PUBLIC - Auth via first message) ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.wsStatusConnection)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request, false)
}

func (s *Server) wsStatusConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request, true)
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"connection": s.lm.Device().State().String(),
		"timestamp":  time.Now().Unix(),
	})
}
