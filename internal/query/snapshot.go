package query

import "time"

// Snapshot holds the cached values under a prefix so an optimistic update
// spanning several keys can be undone.
type Snapshot struct {
	values map[string]snapshotValue
}

type snapshotValue struct {
	key       Key
	data      any
	updatedAt time.Time
	invalid   bool
}

// Snapshot captures every cached value under prefix.
func (c *Cache) Snapshot(prefix Key) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Snapshot{values: make(map[string]snapshotValue)}
	for k, e := range c.entries {
		if e.hasData && e.key.HasPrefix(prefix) {
			s.values[k] = snapshotValue{key: e.key, data: e.data, updatedAt: e.updatedAt, invalid: e.invalid}
		}
	}
	return s
}

// Restore writes the captured values back together with their age, so
// restored data goes stale when the original would have.
func (c *Cache) Restore(s Snapshot) {
	keys := make([]Key, 0, len(s.values))
	c.mu.Lock()
	for _, v := range s.values {
		e := c.entryLocked(v.key)
		c.setLocked(e, v.data)
		e.updatedAt = v.updatedAt
		e.invalid = v.invalid
		keys = append(keys, v.key)
	}
	c.mu.Unlock()
	c.publish(keys)
}

// UpdateMatching applies fn to every cached value of type T under prefix and
// returns how many were updated.
func UpdateMatching[T any](c *Cache, prefix Key, fn func(Key, T) T) int {
	var keys []Key
	c.mu.Lock()
	for _, e := range c.entries {
		if !e.hasData || !e.key.HasPrefix(prefix) {
			continue
		}
		old, ok := e.data.(T)
		if !ok {
			continue
		}
		c.setLocked(e, fn(e.key, old))
		keys = append(keys, e.key)
	}
	c.mu.Unlock()
	c.publish(keys)
	return len(keys)
}
