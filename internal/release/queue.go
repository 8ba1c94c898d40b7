package release

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Entry is a pending release of one blocked token.
type Entry struct {
	TableID   uuid.UUID `json:"table_id"`
	Number    int       `json:"number"`
	BlockedAt time.Time `json:"blocked_at"`
}

// Queue is a delay queue of releases ordered by due time.
type Queue interface {
	Push(ctx context.Context, e Entry, due time.Time) error
	// PopDue removes and returns up to limit entries due at or before now.
	// An entry is returned to exactly one caller.
	PopDue(ctx context.Context, now time.Time, limit int) ([]Entry, error)
}

const defaultRedisKey = "release:due"

// RedisQueue keeps releases in a sorted set scored by due unix milliseconds,
// so pending releases survive restarts and are shared by every worker.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if client == nil {
		panic("release: redis client required")
	}
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Push(ctx context.Context, e Entry, due time.Time) error {
	member, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("release: marshal entry: %w", err)
	}
	if err := q.client.ZAdd(ctx, q.key, redis.Z{Score: float64(due.UnixMilli()), Member: string(member)}).Err(); err != nil {
		return fmt.Errorf("release: zadd: %w", err)
	}
	return nil
}

func (q *RedisQueue) PopDue(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	members, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("release: zrangebyscore: %w", err)
	}

	entries := make([]Entry, 0, len(members))
	for _, m := range members {
		removed, err := q.client.ZRem(ctx, q.key, m).Result()
		if err != nil {
			return entries, fmt.Errorf("release: zrem: %w", err)
		}
		if removed == 0 {
			// another worker claimed it
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(m), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Len reports the number of pending releases.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key).Result()
}

// MemoryQueue is a single-process Queue for development and tests.
type MemoryQueue struct {
	mu      sync.Mutex
	pending []memoryItem
}

type memoryItem struct {
	entry Entry
	due   time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Push(ctx context.Context, e Entry, due time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	i := sort.Search(len(q.pending), func(i int) bool { return q.pending[i].due.After(due) })
	q.pending = append(q.pending, memoryItem{})
	copy(q.pending[i+1:], q.pending[i:])
	q.pending[i] = memoryItem{entry: e, due: due}
	return nil
}

func (q *MemoryQueue) PopDue(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for n < len(q.pending) && n < limit && !q.pending[n].due.After(now) {
		n++
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		out[i] = q.pending[i].entry
	}
	q.pending = q.pending[n:]
	return out, nil
}

// Len reports the number of pending releases.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
