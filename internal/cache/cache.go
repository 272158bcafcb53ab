package cache

import (
	"sync"
)

// TileLocks hands out one mutex per tile id. Entries are dropped once no
// goroutine holds or waits on them, so the map only grows with contention.
type TileLocks struct {
	m     sync.Mutex
	locks map[string]*tileLock
}

type tileLock struct {
	mu   sync.Mutex
	refs int
}

func NewTileLocks() *TileLocks {
	return &TileLocks{
		locks: make(map[string]*tileLock),
	}
}

// Lock blocks until the caller owns id and returns the matching unlock.
func (c *TileLocks) Lock(id string) (unlock func()) {
	c.m.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &tileLock{}
		c.locks[id] = l
	}
	l.refs++
	c.m.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.m.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, id)
		}
		c.m.Unlock()
	}
}

// Len returns the number of tiles currently locked or awaited.
func (c *TileLocks) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.locks)
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
