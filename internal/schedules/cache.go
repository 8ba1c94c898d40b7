package schedules

import (
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache holds recently read schedule templates. Entries are copies so callers
// cannot mutate cached state.
type Cache struct {
	lru *lru.Cache[uuid.UUID, Schedule]
}

func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New[uuid.UUID, Schedule](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

func (c *Cache) Get(id uuid.UUID) (*Schedule, bool) {
	if c == nil {
		return nil, false
	}
	sc, ok := c.lru.Get(id)
	if !ok {
		return nil, false
	}
	return cloneSchedule(sc), true
}

func (c *Cache) Put(sc *Schedule) {
	if c == nil || sc == nil {
		return
	}
	c.lru.Add(sc.ID, *cloneSchedule(*sc))
}

func (c *Cache) Invalidate(id uuid.UUID) {
	if c == nil {
		return
	}
	c.lru.Remove(id)
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

func cloneSchedule(sc Schedule) *Schedule {
	sc.Tokens = append(sc.Tokens[:0:0], sc.Tokens...)
	return &sc
}
