// Package cache implements the tiered in-process cache. Data is partitioned
// into fixed regions, each with its own TTL, sweep cadence, and lock, so churn
// in one region never contends with reads in another. Values are stored as
// serialized JSON and transparently compressed above a size threshold.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenlabs/stellarb/internal/domain"
)

// Region names one of the cache's fixed data partitions.
type Region string

const (
	RegionMarketData    Region = "market_data"
	RegionOrderBooks    Region = "order_books"
	RegionOpportunities Region = "opportunities"
	RegionTrades        Region = "trades"
)

// Regions lists every region in a stable order.
func Regions() []Region {
	return []Region{RegionMarketData, RegionOrderBooks, RegionOpportunities, RegionTrades}
}

// EventType classifies cache lifecycle events delivered to observers.
type EventType string

const (
	EventExpired        EventType = "expired"
	EventEvicted        EventType = "evicted"
	EventCleared        EventType = "cleared"
	EventMemoryPressure EventType = "memory_pressure"
)

// Event describes a cache lifecycle occurrence. Key is set for single-entry
// events; Count for bulk ones.
type Event struct {
	Type      EventType
	Region    Region
	Key       string
	Count     int
	Timestamp time.Time
}

// Listener receives cache events. Listeners are invoked synchronously on the
// emitting goroutine and must not block; the cache never depends on them for
// correctness.
type Listener func(Event)

// RegionConfig holds one region's expiration policy.
type RegionConfig struct {
	// TTL is the entry lifetime. Expired entries are dropped lazily on
	// access and in bulk by the sweep loop.
	TTL time.Duration
	// Sweep is the interval between background expiration sweeps.
	Sweep time.Duration
}

// Config configures the tiered cache.
type Config struct {
	// Regions maps each region to its policy. Every region returned by
	// Regions() must be present.
	Regions map[Region]RegionConfig
	// CompressionThreshold is the serialized size in bytes above which an
	// entry is stored compressed. Zero disables compression.
	CompressionThreshold int
	// MemoryCeilingBytes is the heap size that triggers pressure eviction.
	// Zero disables the pressure check.
	MemoryCeilingBytes uint64
	// PressureCheckInterval is the cadence of heap inspections.
	PressureCheckInterval time.Duration
	// Codec compresses oversized entries. Defaults to GzipCodec.
	Codec Codec
}

// RegionStats is a point-in-time snapshot of one region's counters.
type RegionStats struct {
	Entries     int    `json:"entries"`
	SizeBytes   int64  `json:"size_bytes"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Expirations uint64 `json:"expirations"`
	Evictions   uint64 `json:"evictions"`
	TTLSeconds  int64  `json:"ttl_seconds"`
}

type entry struct {
	payload    []byte
	compressed bool
	insertedAt time.Time
}

// region is one partition. Counters are guarded by mu along with entries, so
// hit/miss accounting never races the map.
type region struct {
	cfg RegionConfig

	mu          sync.Mutex
	entries     map[string]*entry
	hits        uint64
	misses      uint64
	expirations uint64
	evictions   uint64
}

// Cache is the tiered in-process cache.
type Cache struct {
	regions   map[Region]*region
	threshold int
	ceiling   uint64
	pressure  time.Duration
	codec     Codec
	logger    *slog.Logger

	listenerMu sync.Mutex
	listeners  []Listener
}

// New creates a Cache with the given configuration. Missing regions fall back
// to a 60s TTL with a 20s sweep rather than failing, so a partially specified
// config still yields a working cache.
func New(cfg Config, logger *slog.Logger) *Cache {
	if cfg.Codec == nil {
		cfg.Codec = GzipCodec{}
	}

	regions := make(map[Region]*region, len(Regions()))
	for _, name := range Regions() {
		rc, ok := cfg.Regions[name]
		if !ok || rc.TTL <= 0 {
			rc = RegionConfig{TTL: 60 * time.Second, Sweep: 20 * time.Second}
		}
		regions[name] = &region{
			cfg:     rc,
			entries: make(map[string]*entry),
		}
	}

	return &Cache{
		regions:   regions,
		threshold: cfg.CompressionThreshold,
		ceiling:   cfg.MemoryCeilingBytes,
		pressure:  cfg.PressureCheckInterval,
		codec:     cfg.Codec,
		logger:    logger.With(slog.String("component", "cache")),
	}
}

// AddListener registers an observer for cache lifecycle events.
func (c *Cache) AddListener(fn Listener) {
	c.listenerMu.Lock()
	c.listeners = append(c.listeners, fn)
	c.listenerMu.Unlock()
}

func (c *Cache) emit(ev Event) {
	ev.Timestamp = time.Now().UTC()
	c.listenerMu.Lock()
	listeners := c.listeners
	c.listenerMu.Unlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

func (c *Cache) region(name Region) (*region, error) {
	r, ok := c.regions[name]
	if !ok {
		return nil, fmt.Errorf("cache: %q: %w", name, domain.ErrUnknownRegion)
	}
	return r, nil
}

// Put serializes v and stores it under key in the given region, replacing any
// existing entry and restarting its TTL. Payloads above the compression
// threshold are stored compressed.
func (c *Cache) Put(name Region, key string, v any) error {
	r, err := c.region(name)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: marshal %s/%s: %w", name, key, err)
	}

	compressed := false
	if c.threshold > 0 && len(payload) > c.threshold {
		encoded, err := c.codec.Encode(payload)
		if err != nil {
			return fmt.Errorf("cache: compress %s/%s: %w", name, key, err)
		}
		// Keep the plain form if compression did not help.
		if len(encoded) < len(payload) {
			payload = encoded
			compressed = true
		}
	}

	r.mu.Lock()
	r.entries[key] = &entry{
		payload:    payload,
		compressed: compressed,
		insertedAt: time.Now(),
	}
	r.mu.Unlock()
	return nil
}

// Get looks up key in the given region and, when present and fresh,
// unmarshals the stored value into dst. It returns false on a miss or an
// expired entry; reads never mutate the value, so repeated gets of the same
// key observe identical data.
func (c *Cache) Get(name Region, key string, dst any) (bool, error) {
	_, ok, err := c.GetWithAge(name, key, dst)
	return ok, err
}

// GetWithAge is Get plus the entry's age at read time, for callers that
// surface staleness alongside the value.
func (c *Cache) GetWithAge(name Region, key string, dst any) (time.Duration, bool, error) {
	r, err := c.region(name)
	if err != nil {
		return 0, false, err
	}

	r.mu.Lock()
	e, ok := r.entries[key]
	if !ok {
		r.misses++
		r.mu.Unlock()
		return 0, false, nil
	}

	age := time.Since(e.insertedAt)
	if age > r.cfg.TTL {
		// Lazy expiration: the sweep has not caught this entry yet.
		delete(r.entries, key)
		r.misses++
		r.expirations++
		r.mu.Unlock()
		c.emit(Event{Type: EventExpired, Region: name, Key: key, Count: 1})
		return 0, false, nil
	}

	r.hits++
	payload := e.payload
	compressed := e.compressed
	r.mu.Unlock()

	if compressed {
		payload, err = c.codec.Decode(payload)
		if err != nil {
			return 0, false, fmt.Errorf("cache: decompress %s/%s: %w", name, key, err)
		}
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return 0, false, fmt.Errorf("cache: unmarshal %s/%s: %w", name, key, err)
	}
	return age, true, nil
}

// Delete removes key from the given region if present.
func (c *Cache) Delete(name Region, key string) error {
	r, err := c.region(name)
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
	return nil
}

// Clear drops every entry in the given region.
func (c *Cache) Clear(name Region) error {
	r, err := c.region(name)
	if err != nil {
		return err
	}
	r.mu.Lock()
	n := len(r.entries)
	r.entries = make(map[string]*entry)
	r.mu.Unlock()
	if n > 0 {
		c.emit(Event{Type: EventCleared, Region: name, Count: n})
	}
	return nil
}

// ClearAll drops every entry in every region.
func (c *Cache) ClearAll() {
	for _, name := range Regions() {
		_ = c.Clear(name)
	}
}

// Len returns the number of live entries in the given region. Expired but
// unswept entries are counted; they vanish on access or at the next sweep.
func (c *Cache) Len(name Region) int {
	r, err := c.region(name)
	if err != nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Stats returns a per-region snapshot of entry counts and counters.
func (c *Cache) Stats() map[Region]RegionStats {
	out := make(map[Region]RegionStats, len(c.regions))
	for name, r := range c.regions {
		r.mu.Lock()
		var size int64
		for _, e := range r.entries {
			size += int64(len(e.payload))
		}
		out[name] = RegionStats{
			Entries:     len(r.entries),
			SizeBytes:   size,
			Hits:        r.hits,
			Misses:      r.misses,
			Expirations: r.expirations,
			Evictions:   r.evictions,
			TTLSeconds:  int64(r.cfg.TTL / time.Second),
		}
		r.mu.Unlock()
	}
	return out
}

// Run drives the background maintenance loops: one expiration sweeper per
// region plus the memory-pressure monitor. It blocks until ctx is cancelled
// and always returns nil so it can sit directly in an errgroup.
func (c *Cache) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for name, r := range c.regions {
		if r.cfg.Sweep <= 0 {
			continue
		}
		wg.Add(1)
		go func(name Region, r *region) {
			defer wg.Done()
			ticker := time.NewTicker(r.cfg.Sweep)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.sweep(name, r)
				}
			}
		}(name, r)
	}

	if c.ceiling > 0 && c.pressure > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticker := time.NewTicker(c.pressure)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.checkPressure()
				}
			}
		}()
	}

	c.logger.Info("cache maintenance started",
		slog.Int("regions", len(c.regions)),
		slog.String("codec", c.codec.Name()),
	)
	wg.Wait()
	return nil
}

// sweep removes every expired entry from one region.
func (c *Cache) sweep(name Region, r *region) {
	now := time.Now()
	r.mu.Lock()
	removed := 0
	for key, e := range r.entries {
		if now.Sub(e.insertedAt) > r.cfg.TTL {
			delete(r.entries, key)
			removed++
		}
	}
	r.expirations += uint64(removed)
	r.mu.Unlock()

	if removed > 0 {
		c.logger.Debug("sweep removed expired entries",
			slog.String("region", string(name)),
			slog.Int("removed", removed),
		)
		c.emit(Event{Type: EventExpired, Region: name, Count: removed})
	}
}
