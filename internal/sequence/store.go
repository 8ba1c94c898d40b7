package sequence

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
)

// DB is the subset of pgx used by PostgresStore.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps one row per kind. The upsert takes the row lock, so
// concurrent callers serialize on the counter row and never share a value.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("sequence: db required")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Increment(ctx context.Context, kind Kind) (int64, error) {
	var issued int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO sequence_counters (kind, number)
		VALUES ($1, $2)
		ON CONFLICT (kind) DO UPDATE SET number = sequence_counters.number + 1
		RETURNING number - 1
	`, string(kind), Seed+1).Scan(&issued)
	if err != nil {
		return 0, fmt.Errorf("sequence: upsert counter: %w", err)
	}
	return issued, nil
}

// MemoryStore is a process-local Store with one mutex per kind.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[Kind]*memoryCounter
}

type memoryCounter struct {
	mu     sync.Mutex
	number int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[Kind]*memoryCounter)}
}

func (s *MemoryStore) counter(kind Kind) *memoryCounter {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[kind]
	if !ok {
		c = &memoryCounter{number: Seed}
		s.counters[kind] = c
	}
	return c
}

func (s *MemoryStore) Increment(ctx context.Context, kind Kind) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c := s.counter(kind)
	c.mu.Lock()
	defer c.mu.Unlock()
	issued := c.number
	c.number++
	return issued, nil
}
