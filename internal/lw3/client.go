package lw3

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/KevinKickass/OpenMatrixCore/internal/matrix"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const readBufferSize = 4096

// Options tunes a Client. The zero value matches the classic behaviour:
// requests never expire and transaction ids are reused without checking.
type Options struct {
	// RequestTimeout expires pending requests. Zero disables expiry.
	RequestTimeout time.Duration
	// SweepInterval is how often expired requests are collected.
	SweepInterval time.Duration
	// WriteTimeout bounds a single write on transports with deadlines.
	WriteTimeout time.Duration
	// StrictIDs refuses to send while the next id is still pending.
	StrictIDs bool
	// SkipBringUp leaves discovery to the caller.
	SkipBringUp bool
}

// Client is the LW3 connection manager. It owns the transport, runs the
// framer/parser on a single reader goroutine and routes every message
// either to its pending request or to the dispatcher.
type Client struct {
	opts       Options
	model      *matrix.Model
	registry   *Registry
	dispatcher *Dispatcher
	logger     *zap.Logger

	mu      sync.RWMutex
	dialer  Dialer
	state   ConnState
	conn    io.ReadWriteCloser
	session string
	family  DeviceFamily
	cancel  context.CancelFunc
	done    chan struct{}

	// connectMu serializes Connect and SetTarget
	connectMu sync.Mutex
	writeMu   sync.Mutex

	listenersMu      sync.RWMutex
	stateListeners   []StateListener
	commandListeners []CommandListener
}

// CommandListener sees every command written to the device.
type CommandListener func(session, txid, command string)

func NewClient(dialer Dialer, model *matrix.Model, opts Options, logger *zap.Logger) *Client {
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = time.Second
	}

	dispatcher := NewDispatcher(logger)
	dispatcher.Subscribe(DefaultSubscriptions(model)...)

	return &Client{
		opts:       opts,
		model:      model,
		registry:   NewRegistry(opts.RequestTimeout),
		dispatcher: dispatcher,
		logger:     logger,
		dialer:     dialer,
		state:      Disconnected,
	}
}

func (c *Client) Model() *matrix.Model {
	return c.model
}

func (c *Client) Dispatcher() *Dispatcher {
	return c.dispatcher
}

func (c *Client) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Session returns the id of the live connection, empty when disconnected.
func (c *Client) Session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *Client) Address() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dialer.Address()
}

func (c *Client) Family() DeviceFamily {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.family
}

func (c *Client) setFamily(f DeviceFamily) {
	c.mu.Lock()
	c.family = f
	c.mu.Unlock()
}

// Pending returns the number of requests awaiting a reply.
func (c *Client) Pending() int {
	return c.registry.Pending()
}

// OnStateChange registers a lifecycle listener.
func (c *Client) OnStateChange(l StateListener) {
	c.listenersMu.Lock()
	c.stateListeners = append(c.stateListeners, l)
	c.listenersMu.Unlock()
}

// OnCommand registers a listener for outgoing commands.
func (c *Client) OnCommand(l CommandListener) {
	c.listenersMu.Lock()
	c.commandListeners = append(c.commandListeners, l)
	c.listenersMu.Unlock()
}

// OnChange registers a device model change listener.
func (c *Client) OnChange(l matrix.ChangeListener) {
	c.dispatcher.OnChange(l)
}

func (c *Client) notifyState(from, to ConnState, session string) {
	c.listenersMu.RLock()
	listeners := c.stateListeners
	c.listenersMu.RUnlock()

	for _, l := range listeners {
		l(from, to, session)
	}
}

// transition moves the state machine. Callers hold c.mu.
func (c *Client) transition(to ConnState) bool {
	if err := ValidateTransition(c.state, to); err != nil {
		c.logger.Error("Connection state not changed", zap.Error(err))
		return false
	}
	c.state = to
	return true
}

// Connect dials the device, starts the reader and runs the bring-up sequence.
func (c *Client) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()
	return c.connect(ctx)
}

func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.transition(Connecting)
	dialer := c.dialer
	c.mu.Unlock()
	c.notifyState(Disconnected, Connecting, "")

	conn, err := dialer.Dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.transition(Disconnected)
		c.mu.Unlock()
		c.notifyState(Connecting, Disconnected, "")
		return fmt.Errorf("failed to connect to %s: %w", dialer.Address(), err)
	}

	// fresh ids for the new session
	c.registry.Reset(ErrConnectionReset)

	session := uuid.NewString()
	readerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.session = session
	c.cancel = cancel
	c.done = done
	c.transition(Connected)
	c.mu.Unlock()

	go c.readLoop(readerCtx, conn, done)
	if c.opts.RequestTimeout > 0 {
		go c.sweepLoop(readerCtx)
	}

	c.logger.Info("Connected to device",
		zap.String("device", dialer.Address()),
		zap.String("session", session))
	c.notifyState(Connecting, Connected, session)

	if !c.opts.SkipBringUp {
		c.bringUp()
	}
	return nil
}

// Close tears the connection down. Pending requests are abandoned.
// Must not be called from a response callback.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state != Connected {
		c.mu.Unlock()
		return nil
	}
	conn, cancel, done, session := c.conn, c.cancel, c.done, c.session
	c.conn = nil
	c.cancel = nil
	c.session = ""
	// detach before Disconnected is visible, a following Connect owns the registry
	pending := c.registry.detach()
	c.transition(Disconnected)
	c.mu.Unlock()

	cancel()
	err := conn.Close()
	<-done

	dropped := abandon(pending, ErrConnectionReset)
	c.logger.Info("Disconnected from device",
		zap.String("session", session),
		zap.Int("abandoned_requests", dropped))
	c.notifyState(Connected, Disconnected, session)

	return err
}

// SetTarget points the client at another device. The connection and the
// device model are rebuilt from scratch.
func (c *Client) SetTarget(ctx context.Context, dialer Dialer) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if err := c.Close(); err != nil {
		c.logger.Warn("Close before retarget failed", zap.Error(err))
	}

	c.mu.Lock()
	c.dialer = dialer
	c.family = FamilyUnknown
	c.mu.Unlock()

	c.model.Reset()
	c.dispatcher.Notify(matrix.ChangeStructural)

	return c.connect(ctx)
}

// Send writes command with a fresh transaction id. fn runs once with the
// reply body. Without a connection the command is dropped and
// ErrNotConnected returned; fn is never called.
func (c *Client) Send(command string, fn ResponseFunc) error {
	_, _, err := c.send(command, fn, nil)
	return err
}

// SendCommand is Send for a structured command.
func (c *Client) SendCommand(cmd Command, fn ResponseFunc) error {
	return c.Send(cmd.String(), fn)
}

// SendContext sends command and waits for its reply body.
func (c *Client) SendContext(ctx context.Context, command string) (string, error) {
	type result struct {
		body string
		err  error
	}
	ch := make(chan result, 1)

	id, req, err := c.send(command,
		func(body string) { ch <- result{body: body} },
		func(err error) { ch <- result{err: err} })
	if err != nil {
		return "", err
	}

	select {
	case r := <-ch:
		return r.body, r.err
	case <-ctx.Done():
		c.registry.cancel(id, req)
		return "", ctx.Err()
	}
}

func (c *Client) send(command string, onResponse ResponseFunc, onError ErrorFunc) (string, *pendingRequest, error) {
	c.mu.RLock()
	conn, state, session := c.conn, c.state, c.session
	c.mu.RUnlock()

	if state != Connected || conn == nil {
		c.logger.Warn("Socket not connected, command dropped",
			zap.String("command", command))
		return "", nil, ErrNotConnected
	}

	id := c.registry.Allocate()
	if c.opts.StrictIDs && c.registry.IsPending(id) {
		c.logger.Warn("Transaction id still pending, command refused",
			zap.String("txid", id),
			zap.String("command", command))
		return "", nil, fmt.Errorf("%w: %s", ErrTransactionIDInUse, id)
	}

	// register before writing so a fast reply always finds its entry
	req := c.registry.register(id, command, onResponse, onError)

	c.writeMu.Lock()
	if d, ok := conn.(interface{ SetWriteDeadline(time.Time) error }); ok && c.opts.WriteTimeout > 0 {
		d.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	}
	_, err := conn.Write(EncodeRequest(id, command))
	c.writeMu.Unlock()

	if err != nil {
		c.registry.cancel(id, req)
		return "", nil, fmt.Errorf("write failed: %w", err)
	}

	c.logger.Debug("Sent command",
		zap.String("session", session),
		zap.String("txid", id),
		zap.String("command", command))

	c.listenersMu.RLock()
	listeners := c.commandListeners
	c.listenersMu.RUnlock()
	for _, l := range listeners {
		l(session, id, command)
	}
	return id, req, nil
}

func (c *Client) readLoop(ctx context.Context, conn io.ReadWriteCloser, done chan struct{}) {
	defer close(done)

	framer := NewLineFramer()
	parser := NewBlockParser()
	buf := make([]byte, readBufferSize)

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, line := range framer.Feed(buf[:n]) {
				c.logger.Debug("Received line", zap.String("line", line))
				if msg, ok := parser.Feed(line); ok {
					c.handleMessage(msg)
				}
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.handleDisconnect(conn, err)
			return
		}
	}
}

func (c *Client) handleMessage(msg Message) {
	if msg.Kind == MessageBlock {
		if msg.Errors != "" {
			c.logger.Warn("Error from device",
				zap.String("device", c.Address()),
				zap.String("session", c.Session()),
				zap.Error(&DeviceError{ID: msg.ID, Text: msg.Errors}))
		}
		// a solicited reply is never also treated as an event
		if c.registry.Resolve(msg.ID, msg.Body) {
			return
		}
	}
	c.dispatcher.Route(msg)
}

func (c *Client) handleDisconnect(conn io.ReadWriteCloser, cause error) {
	c.mu.Lock()
	if c.conn != conn || c.state != Connected {
		c.mu.Unlock()
		return
	}
	session, cancel := c.session, c.cancel
	c.conn = nil
	c.cancel = nil
	c.session = ""
	pending := c.registry.detach()
	c.transition(Disconnected)
	c.mu.Unlock()

	cancel()
	conn.Close()

	dropped := abandon(pending, ErrConnectionReset)
	c.logger.Error("Network error",
		zap.String("device", c.Address()),
		zap.String("session", session),
		zap.Int("abandoned_requests", dropped),
		zap.Error(cause))
	c.notifyState(Connected, Disconnected, session)
}

func (c *Client) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			for _, e := range c.registry.Expire(now) {
				c.logger.Warn("Request expired without reply",
					zap.String("txid", e.ID),
					zap.String("command", e.Command),
					zap.Error(ErrRequestTimeout))
			}
		}
	}
}
