package cache

import (
	"log/slog"
	"runtime"
	"sort"
	"time"
)

// evictFraction is the share of entries dropped from each region when the
// heap crosses the configured ceiling.
const evictFraction = 0.25

// checkPressure inspects the process heap and, when it exceeds the ceiling,
// evicts the oldest quarter of every region's entries. Oldest is by insertion
// time, the best available proxy for least useful under a TTL policy.
func (c *Cache) checkPressure() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapAlloc <= c.ceiling {
		return
	}

	total := 0
	for name, r := range c.regions {
		total += c.evictOldest(name, r)
	}

	c.logger.Warn("memory pressure eviction",
		slog.Uint64("heap_alloc", m.HeapAlloc),
		slog.Uint64("ceiling", c.ceiling),
		slog.Int("evicted", total),
	)
	c.emit(Event{Type: EventMemoryPressure, Count: total})
}

// evictOldest drops the oldest evictFraction of one region's entries and
// returns how many were removed.
func (c *Cache) evictOldest(name Region, r *region) int {
	r.mu.Lock()
	n := len(r.entries)
	if n == 0 {
		r.mu.Unlock()
		return 0
	}

	victims := int(float64(n) * evictFraction)
	if victims < 1 {
		victims = 1
	}

	type aged struct {
		key        string
		insertedAt time.Time
	}
	byAge := make([]aged, 0, n)
	for key, e := range r.entries {
		byAge = append(byAge, aged{key: key, insertedAt: e.insertedAt})
	}
	sort.Slice(byAge, func(i, j int) bool {
		return byAge[i].insertedAt.Before(byAge[j].insertedAt)
	})

	for _, v := range byAge[:victims] {
		delete(r.entries, v.key)
	}
	r.evictions += uint64(victims)
	r.mu.Unlock()

	c.emit(Event{Type: EventEvicted, Region: name, Count: victims})
	return victims
}
