package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenMatrixCore/internal/config"
	"github.com/KevinKickass/OpenMatrixCore/internal/matrix"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Event is published for every device model change.
type Event struct {
	Kind      matrix.ChangeKind `json:"kind"`
	Session   string            `json:"session"`
	Device    string            `json:"device"`
	Timestamp time.Time         `json:"timestamp"`
	Snapshot  matrix.Snapshot   `json:"snapshot"`
}

type publisher interface {
	Publish(subject string, data []byte) error
}

// Publisher fans model changes out on NATS subjects "<prefix>.<kind>".
type Publisher struct {
	conn   publisher
	close  func()
	prefix string
	logger *zap.Logger
}

func NewPublisher(cfg config.NATSConfig, logger *zap.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(2 * time.Second),
		nats.Name("openmatrixcore"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connection failed: %w", err)
	}

	return &Publisher{
		conn:   conn,
		close:  conn.Close,
		prefix: cfg.SubjectPrefix,
		logger: logger,
	}, nil
}

// Subject returns the subject a change kind is published on.
func (p *Publisher) Subject(kind matrix.ChangeKind) string {
	return p.prefix + "." + string(kind)
}

func (p *Publisher) PublishEvent(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(event.Kind), data); err != nil {
		return fmt.Errorf("publish %s: %w", event.Kind, err)
	}
	return nil
}

// Publish is a change listener body: it snapshots and publishes, logging failures.
func (p *Publisher) Publish(kind matrix.ChangeKind, session, device string, snapshot matrix.Snapshot) {
	err := p.PublishEvent(Event{
		Kind:      kind,
		Session:   session,
		Device:    device,
		Timestamp: time.Now().UTC(),
		Snapshot:  snapshot,
	})
	if err != nil {
		p.logger.Warn("Failed to publish matrix event", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (p *Publisher) Close() {
	if p.close != nil {
		p.close()
	}
}
