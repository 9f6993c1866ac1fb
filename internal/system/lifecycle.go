package system

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/KevinKickass/OpenMatrixCore/internal/api/rest"
	"github.com/KevinKickass/OpenMatrixCore/internal/api/websocket"
	"github.com/KevinKickass/OpenMatrixCore/internal/auth"
	"github.com/KevinKickass/OpenMatrixCore/internal/config"
	"github.com/KevinKickass/OpenMatrixCore/internal/events"
	"github.com/KevinKickass/OpenMatrixCore/internal/interfaces"
	"github.com/KevinKickass/OpenMatrixCore/internal/lw3"
	"github.com/KevinKickass/OpenMatrixCore/internal/matrix"
	"github.com/KevinKickass/OpenMatrixCore/internal/storage"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name tracking the LW3 link.
const HealthService = "lw3"

type LifecycleManager struct {
	config      *config.Config
	logger      *zap.Logger
	authService *auth.AuthService
	wsHub       *websocket.Hub
	device      *lw3.Client
	supervisor  *lw3.Supervisor

	storage   *storage.PostgresClient
	journal   *storage.Journal
	publisher *events.Publisher

	restServer *rest.Server
	grpcServer *grpc.Server
	health     *health.Server
	grpcAddr   net.Addr

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    string

	listenersMu     sync.RWMutex
	statusListeners []chan SystemStatus

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewLifecycleManager(cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	dialer, err := NewDialer(cfg.Device)
	if err != nil {
		return nil, err
	}

	authService := auth.NewAuthService(cfg.Auth)
	if !cfg.Auth.IsProductionReady() {
		logger.Warn("JWT secret not set or too short, using development fallback",
			zap.String("env", cfg.Auth.JWTSecretEnv))
	}

	device := lw3.NewClient(dialer, matrix.NewModel(), lw3.Options{
		RequestTimeout: cfg.Device.RequestTimeout,
		SweepInterval:  cfg.Device.SweepInterval,
		WriteTimeout:   cfg.Device.WriteTimeout,
		StrictIDs:      cfg.Device.StrictIDs,
	}, logger)

	lm := &LifecycleManager{
		config:          cfg,
		logger:          logger,
		authService:     authService,
		wsHub:           websocket.NewHub(logger, authService),
		device:          device,
		health:          health.NewServer(),
		currentState:    StateInitializing,
		shutdownChan:    make(chan struct{}),
		statusListeners: make([]chan SystemStatus, 0),
	}

	if cfg.Reconnect.Enabled {
		lm.supervisor = lw3.NewSupervisor(device, cfg.Reconnect.InitialDelay, cfg.Reconnect.MaxDelay, logger)
	}

	return lm, nil
}

// Start starts the entire system
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting OpenMatrixCore",
		zap.String("device", lm.device.Address()))

	lm.broadcastStatus()

	if lm.config.Journal.Enabled {
		if err := lm.startJournal(); err != nil {
			lm.setError(fmt.Errorf("failed to start journal: %w", err))
			return err
		}
	}

	if lm.config.Events.NATS.Enabled {
		publisher, err := events.NewPublisher(lm.config.Events.NATS, lm.logger)
		if err != nil {
			// Nicht kritisch, ohne Events weiter
			lm.logger.Warn("NATS unavailable, change events disabled", zap.Error(err))
		} else {
			lm.publisher = publisher
		}
	}

	lm.wsHub.SetSnapshotProvider(lm)
	go lm.wsHub.Run()

	lm.wireDevice()

	// Start gRPC Server (health)
	if err := lm.startGRPCServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start gRPC: %w", err))
		return err
	}

	// Start REST API Server
	if err := lm.startRESTServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	if err := lm.connectDevice(); err != nil {
		lm.setError(err)
		return err
	}

	lm.setState(StateRunning)
	lm.broadcastStatus()

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Bool("journal_enabled", lm.journal != nil),
		zap.Bool("nats_enabled", lm.publisher != nil),
		zap.Bool("reconnect_enabled", lm.supervisor != nil))

	return nil
}

func (lm *LifecycleManager) startJournal() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := storage.NewPostgresClient(lm.config.Journal.Database)
	if err != nil {
		return err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return err
	}

	lm.storage = db
	lm.journal = storage.NewJournal(db, lm.config.Journal.BufferSize, lm.logger)
	lm.journal.Start()
	return nil
}

// wireDevice fans client events out to the websocket hub, NATS, the
// journal and the gRPC health status.
func (lm *LifecycleManager) wireDevice() {
	lm.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)

	lm.device.OnChange(func(kind matrix.ChangeKind) {
		snap := lm.device.Model().Snapshot()
		session := lm.device.Session()

		lm.wsHub.Broadcast(websocket.NewChangeMessage(kind, snap))
		if lm.publisher != nil {
			lm.publisher.Publish(kind, session, lm.device.Address(), snap)
		}
		if lm.journal != nil {
			lm.journal.RecordEvent(session, string(kind), snap)
		}
	})

	lm.device.OnStateChange(func(from, to lw3.ConnState, session string) {
		status := healthpb.HealthCheckResponse_NOT_SERVING
		if to == lw3.Connected {
			status = healthpb.HealthCheckResponse_SERVING
		}
		lm.health.SetServingStatus(HealthService, status)

		lm.wsHub.Broadcast(websocket.NewConnectionStateMessage(
			to.String(), from.String(), session, lm.device.Address()))
	})

	if lm.journal != nil {
		lm.device.OnCommand(lm.journal.RecordCommand)
	}
}

func (lm *LifecycleManager) connectDevice() error {
	if lm.supervisor != nil {
		return lm.supervisor.Start()
	}

	ctx, cancel := context.WithTimeout(context.Background(), lm.config.Device.DialTimeout+time.Second)
	defer cancel()

	if err := lm.device.Connect(ctx); err != nil {
		// Ohne Supervisor bleibt das Gerät getrennt bis zum Retarget
		lm.logger.Warn("Initial connect failed, reconnect disabled", zap.Error(err))
	}
	return nil
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)
		lm.broadcastStatus()

		if timeout := lm.config.Server.ShutdownTimeout; timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		lm.broadcastStatus()

		close(lm.shutdownChan)
	})

	return shutdownErr
}

// Done is closed once Shutdown has finished.
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.shutdownChan
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 4)

	// 1. Stop reconnecting, then drop the LW3 link
	wg.Add(1)
	go func() {
		defer wg.Done()
		if lm.supervisor != nil {
			lm.supervisor.Stop()
		}
		if err := lm.device.Close(); err != nil {
			errChan <- fmt.Errorf("lw3 close failed: %w", err)
		}
	}()

	// 2. REST API Server graceful shutdown
	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	// 3. gRPC Server graceful stop
	if lm.grpcServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.logger.Info("Stopping gRPC server")
			lm.health.Shutdown()
			lm.grpcServer.GracefulStop()
		}()
	}

	// Wait for all shutdowns
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		err = fmt.Errorf("shutdown timeout exceeded")
	}

	select {
	case e := <-errChan:
		if err == nil {
			err = e
		}
	default:
	}

	// Sinks last, so the final disconnect still reaches them
	lm.wsHub.Stop()
	if lm.publisher != nil {
		lm.publisher.Close()
	}
	if lm.journal != nil {
		lm.journal.Stop()
		if dropped := lm.journal.Dropped(); dropped > 0 {
			lm.logger.Warn("Journal dropped entries", zap.Int("dropped", dropped))
		}
	}
	if lm.storage != nil {
		lm.storage.Close()
	}

	return err
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	lm.grpcAddr = lis.Addr()

	lm.grpcServer = grpc.NewServer()
	healthpb.RegisterHealthServer(lm.grpcServer, lm.health)

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.String("address", lis.Addr().String()),
			zap.String("services", "grpc.health.v1.Health"))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	server, err := rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, lm.authService)
	if err != nil {
		return err
	}
	lm.restServer = server
	return lm.restServer.Start()
}

// Retarget points the LW3 client at another device.
func (lm *LifecycleManager) Retarget(ctx context.Context, target config.DeviceConfig) error {
	dialer, err := NewDialer(target)
	if err != nil {
		return err
	}

	lm.logger.Info("Retargeting LW3 client",
		zap.String("from", lm.device.Address()),
		zap.String("to", dialer.Address()))

	return lm.device.SetTarget(ctx, dialer)
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Unexpected system state change", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System error", zap.Error(err))

	lm.stateMu.Lock()
	lm.currentState = StateError
	lm.lastError = err.Error()
	lm.stateMu.Unlock()

	lm.broadcastStatus()
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	lm.stateMu.RUnlock()

	status := interfaces.SystemStatus{
		State:            state.String(),
		Connection:       lm.device.State().String(),
		Address:          lm.device.Address(),
		Session:          lm.device.Session(),
		ProductName:      lm.device.Model().ProductName(),
		Family:           lm.device.Family().String(),
		PendingRequests:  lm.device.Pending(),
		WebsocketClients: lm.wsHub.GetClientCount(),
	}
	if lm.journal != nil {
		status.JournalDropped = lm.journal.Dropped()
	}
	return status
}

// getStatusInternal returns typed status (for internal use)
func (lm *LifecycleManager) getStatusInternal() SystemStatus {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	return SystemStatus{
		State:     lm.currentState,
		Timestamp: time.Now().Unix(),
		Error:     lm.lastError,
	}
}

func (lm *LifecycleManager) broadcastStatus() {
	status := lm.getStatusInternal()

	lm.wsHub.Broadcast(websocket.NewMessage(websocket.MessageTypeSystemStatus, lm.GetCurrentStatus()))

	lm.listenersMu.RLock()
	defer lm.listenersMu.RUnlock()

	for _, listener := range lm.statusListeners {
		select {
		case listener <- status:
		default:
			// Channel full, skip
		}
	}
}

// SubscribeStatus subscribes to status updates
func (lm *LifecycleManager) SubscribeStatus() chan SystemStatus {
	ch := make(chan SystemStatus, 10)

	lm.listenersMu.Lock()
	lm.statusListeners = append(lm.statusListeners, ch)
	lm.listenersMu.Unlock()

	return ch
}

// UnsubscribeStatus unsubscribes from status updates
func (lm *LifecycleManager) UnsubscribeStatus(ch chan SystemStatus) {
	lm.listenersMu.Lock()
	defer lm.listenersMu.Unlock()

	for i, listener := range lm.statusListeners {
		if listener == ch {
			lm.statusListeners = append(lm.statusListeners[:i], lm.statusListeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// Snapshot feeds new websocket clients.
func (lm *LifecycleManager) Snapshot() any {
	return lm.device.Model().Snapshot()
}

// Device returns the LW3 client
func (lm *LifecycleManager) Device() *lw3.Client {
	return lm.device
}

// Storage returns the journal database, nil when the journal is disabled
func (lm *LifecycleManager) Storage() *storage.PostgresClient {
	return lm.storage
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

// AuthService issues and validates access tokens
func (lm *LifecycleManager) AuthService() *auth.AuthService {
	return lm.authService
}
