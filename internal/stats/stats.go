// Package stats records how often commands are piped, per guild. Increments
// are fire-and-forget: they are queued and persisted to SQLite by a single
// worker.
package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/keshon/pipebot/internal/stats/migrations"
)

// ErrClosed is returned by a Sink after Close.
var ErrClosed = errors.New("stats: sink closed")

const defaultBuffer = 256

type event struct {
	guildID string
	// ack is set for flush barriers instead of guildID.
	ack chan struct{}
}

// Sink is a fire-and-forget statistics sink backed by SQLite.
type Sink struct {
	db  *sql.DB
	log *zap.Logger

	events  chan event
	done    chan struct{}
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
}

type Option func(*Sink)

// WithBuffer sets how many increments may be queued before new ones are
// dropped.
func WithBuffer(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.events = make(chan event, n)
		}
	}
}

// Open opens (or creates) the database at path, applies migrations and
// starts the worker. ":memory:" keeps the counters in memory.
func Open(ctx context.Context, path string, logger *zap.Logger, opts ...Option) (*Sink, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("stats: database path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection serializes writes and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrations.Run(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Sink{
		db:     db,
		log:    logger.Named("stats"),
		events: make(chan event, defaultBuffer),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.worker()
	return s, nil
}

// IncrementPiped counts one piped command for guildID. It never blocks: when
// the queue is full the increment is dropped. Direct messages are not
// counted.
func (s *Sink) IncrementPiped(guildID string) {
	if guildID == "" {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.events <- event{guildID: guildID}:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			s.log.Warn("Stats queue full, dropping increments", zap.Int64("dropped", n))
		}
	}
}

// Dropped returns how many increments were discarded because the queue was
// full.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

// Flush waits until every increment queued before the call is persisted.
func (s *Sink) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	select {
	case s.events <- event{ack: ack}:
		s.mu.RUnlock()
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PipedCount returns the persisted counter for guildID.
func (s *Sink) PipedCount(ctx context.Context, guildID string) (int64, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return 0, ErrClosed
	}

	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT count FROM piped_commands WHERE guild_id = ?", guildID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query piped count: %w", err)
	}
	return n, nil
}

// Close stops accepting increments, persists the queued ones and closes the
// database.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	<-s.done
	return s.db.Close()
}

func (s *Sink) worker() {
	defer close(s.done)

	pending := make(map[string]int64)
	for ev := range s.events {
		if ev.ack == nil {
			pending[ev.guildID]++
		}
		// Coalesce whatever else is already queued into the same write.
	drain:
		for len(s.events) > 0 && ev.ack == nil {
			next, ok := <-s.events
			if !ok {
				break drain
			}
			if next.ack != nil {
				ev = next
				break drain
			}
			pending[next.guildID]++
		}

		if len(pending) > 0 {
			if err := s.persist(pending); err != nil {
				s.log.Error("Failed to persist stats", zap.Int("guilds", len(pending)), zap.Error(err))
			}
			clear(pending)
		}
		if ev.ack != nil {
			close(ev.ack)
		}
	}
}

func (s *Sink) persist(counts map[string]int64) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO piped_commands (guild_id, count) VALUES (?, ?)
ON CONFLICT(guild_id) DO UPDATE SET
	count = piped_commands.count + excluded.count,
	updated_at = datetime('now')`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for guildID, n := range counts {
		if _, err := stmt.ExecContext(ctx, guildID, n); err != nil {
			return fmt.Errorf("upsert %s: %w", guildID, err)
		}
	}
	return tx.Commit()
}
