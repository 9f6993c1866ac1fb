package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenMatrixCore/internal/config"
	"github.com/KevinKickass/OpenMatrixCore/internal/lw3"
	"github.com/KevinKickass/OpenMatrixCore/internal/storage"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State            string `json:"state"`
	Connection       string `json:"connection"`
	Address          string `json:"address"`
	Session          string `json:"session,omitempty"`
	ProductName      string `json:"product_name,omitempty"`
	Family           string `json:"family"`
	PendingRequests  int    `json:"pending_requests"`
	WebsocketClients int    `json:"websocket_clients"`
	JournalDropped   int    `json:"journal_dropped,omitempty"`
}

type LifecycleManager interface {
	Config() *config.Config
	// Storage is nil when the journal is disabled.
	Storage() *storage.PostgresClient
	Device() *lw3.Client
	// Retarget points the client at another device, using the configured
	// dial timeout and baud rate.
	Retarget(ctx context.Context, target config.DeviceConfig) error
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
