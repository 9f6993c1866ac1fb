package lw3

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Supervisor keeps a Client connected. A lost connection is redialled
// with exponential backoff, starting at the initial delay and doubling up
// to the maximum.
type Supervisor struct {
	client       *Client
	initialDelay time.Duration
	maxDelay     time.Duration
	logger       *zap.Logger

	wake    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

func NewSupervisor(client *Client, initialDelay, maxDelay time.Duration, logger *zap.Logger) *Supervisor {
	if initialDelay <= 0 {
		initialDelay = time.Second
	}
	if maxDelay < initialDelay {
		maxDelay = initialDelay
	}

	s := &Supervisor{
		client:       client,
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		logger:       logger,
		wake:         make(chan struct{}, 1),
	}

	client.OnStateChange(func(from, to ConnState, session string) {
		if to == Disconnected {
			s.poke()
		}
	})
	return s
}

// Start begins supervising. The first connect attempt happens immediately.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.wg.Add(1)

	go s.superviseLoop(ctx)

	s.logger.Info("Supervisor started",
		zap.String("device", s.client.Address()),
		zap.Duration("initial_delay", s.initialDelay),
		zap.Duration("max_delay", s.maxDelay))

	return nil
}

// Stop ends supervision. The connection itself is left alone.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Supervisor stopped", zap.String("device", s.client.Address()))
}

func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Supervisor) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Supervisor) superviseLoop(ctx context.Context) {
	defer s.wg.Done()

	delay := s.initialDelay
	attempt := 0

	for {
		if s.client.State() == Disconnected {
			err := s.client.Connect(ctx)
			switch {
			case err == nil, errors.Is(err, ErrAlreadyConnected):
				delay = s.initialDelay
				attempt = 0
			default:
				attempt++
				s.logger.Warn("Connect attempt failed",
					zap.String("device", s.client.Address()),
					zap.Int("attempt", attempt),
					zap.Duration("retry_in", delay),
					zap.Error(err))

				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}

				delay *= 2
				if delay > s.maxDelay {
					delay = s.maxDelay
				}
				continue
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
	}
}
