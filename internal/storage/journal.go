package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JournalStore persists journal batches.
type JournalStore interface {
	InsertEvents(ctx context.Context, events []MatrixEvent) error
	InsertCommands(ctx context.Context, commands []CommandLogEntry) error
}

// InsertEvents writes a batch of model changes in one transaction.
func (p *PostgresClient) InsertEvents(ctx context.Context, events []MatrixEvent) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, e := range events {
		_, err := tx.Exec(ctx, `
			INSERT INTO matrix_events (id, session_id, kind, payload, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, e.ID, e.SessionID, e.Kind, e.Payload, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// InsertCommands writes a batch of sent commands in one transaction.
func (p *PostgresClient) InsertCommands(ctx context.Context, commands []CommandLogEntry) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, c := range commands {
		_, err := tx.Exec(ctx, `
			INSERT INTO command_log (id, session_id, txid, command, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, c.ID, c.SessionID, c.TxID, c.Command, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert command: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecentEvents returns the newest journal events, newest first.
func (p *PostgresClient) RecentEvents(ctx context.Context, limit int) ([]MatrixEvent, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, session_id, kind, payload, created_at
		FROM matrix_events
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []MatrixEvent
	for rows.Next() {
		var e MatrixEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

type journalEntry struct {
	event   *MatrixEvent
	command *CommandLogEntry
}

// Journal queues audit entries and writes them from a background goroutine.
// Record calls never block the LW3 reader; a full queue drops the entry.
type Journal struct {
	store  JournalStore
	logger *zap.Logger

	queue    chan journalEntry
	stopChan chan struct{}
	wg       sync.WaitGroup
	once     sync.Once

	flushInterval time.Duration
	maxBatch      int

	mu      sync.Mutex
	dropped int
}

func NewJournal(store JournalStore, bufferSize int, logger *zap.Logger) *Journal {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Journal{
		store:         store,
		logger:        logger,
		queue:         make(chan journalEntry, bufferSize),
		stopChan:      make(chan struct{}),
		flushInterval: time.Second,
		maxBatch:      64,
	}
}

func (j *Journal) Start() {
	j.wg.Add(1)
	go j.writeLoop()
	j.logger.Info("Journal started")
}

// Stop flushes queued entries and ends the writer.
func (j *Journal) Stop() {
	j.once.Do(func() {
		close(j.stopChan)
	})
	j.wg.Wait()
}

// RecordEvent queues a model change. payload is marshalled to JSON.
func (j *Journal) RecordEvent(sessionID, kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		j.logger.Warn("Journal payload not serializable", zap.String("kind", kind), zap.Error(err))
		return
	}
	j.enqueue(journalEntry{event: &MatrixEvent{
		ID:        uuid.New(),
		SessionID: sessionID,
		Kind:      kind,
		Payload:   data,
		CreatedAt: time.Now(),
	}})
}

// RecordCommand queues a sent command.
func (j *Journal) RecordCommand(sessionID, txid, command string) {
	j.enqueue(journalEntry{command: &CommandLogEntry{
		ID:        uuid.New(),
		SessionID: sessionID,
		TxID:      txid,
		Command:   command,
		CreatedAt: time.Now(),
	}})
}

// Dropped returns the number of entries lost to a full queue.
func (j *Journal) Dropped() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

func (j *Journal) enqueue(e journalEntry) {
	select {
	case j.queue <- e:
	default:
		j.mu.Lock()
		j.dropped++
		j.mu.Unlock()
		j.logger.Warn("Journal queue full, entry dropped")
	}
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.flushInterval)
	defer ticker.Stop()

	var (
		events   []MatrixEvent
		commands []CommandLogEntry
	)

	flush := func() {
		if len(events) == 0 && len(commands) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if len(events) > 0 {
			if err := j.store.InsertEvents(ctx, events); err != nil {
				j.logger.Error("Failed to write journal events", zap.Int("count", len(events)), zap.Error(err))
			}
		}
		if len(commands) > 0 {
			if err := j.store.InsertCommands(ctx, commands); err != nil {
				j.logger.Error("Failed to write command log", zap.Int("count", len(commands)), zap.Error(err))
			}
		}
		events = events[:0]
		commands = commands[:0]
	}

	add := func(e journalEntry) {
		if e.event != nil {
			events = append(events, *e.event)
		}
		if e.command != nil {
			commands = append(commands, *e.command)
		}
		if len(events)+len(commands) >= j.maxBatch {
			flush()
		}
	}

	for {
		select {
		case e := <-j.queue:
			add(e)
		case <-ticker.C:
			flush()
		case <-j.stopChan:
			// drain what is already queued
			for {
				select {
				case e := <-j.queue:
					add(e)
				default:
					flush()
					return
				}
			}
		}
	}
}
