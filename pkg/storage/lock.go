package storage

import (
	"sort"
	"sync"
)

// classLocker is the composable multi-key lock primitive every Store
// implementation embeds. Locking multiple classes always acquires them
// in the same sorted order, which is what makes concurrent Lock calls
// from different goroutines (one per check, say) deadlock-free without
// requiring callers to agree on an order themselves.
type classLocker struct {
	mu    sync.Mutex // guards the map itself, not the per-class locks
	locks map[EntityClass]*sync.Mutex
}

func newClassLocker() *classLocker {
	return &classLocker{locks: make(map[EntityClass]*sync.Mutex)}
}

func (c *classLocker) lockFor(class EntityClass) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.locks[class]
	if !ok {
		m = &sync.Mutex{}
		c.locks[class] = m
	}
	return m
}

// Lock acquires every named class's lock in sorted order, runs fn, and
// releases them in reverse order. A single class repeated in the slice
// is deduplicated so a caller can't deadlock itself.
func (c *classLocker) Lock(classes []EntityClass, fn func() error) error {
	seen := make(map[EntityClass]bool, len(classes))
	unique := make([]EntityClass, 0, len(classes))
	for _, cl := range classes {
		if !seen[cl] {
			seen[cl] = true
			unique = append(unique, cl)
		}
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })

	held := make([]*sync.Mutex, 0, len(unique))
	for _, cl := range unique {
		m := c.lockFor(cl)
		m.Lock()
		held = append(held, m)
	}
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}()

	return fn()
}
