package cache

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lumenlabs/stellarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(t *testing.T, regionTTL time.Duration, threshold int) *Cache {
	t.Helper()
	regions := make(map[Region]RegionConfig, len(Regions()))
	for _, name := range Regions() {
		regions[name] = RegionConfig{TTL: regionTTL, Sweep: time.Minute}
	}
	return New(Config{
		Regions:              regions,
		CompressionThreshold: threshold,
	}, testLogger())
}

type payload struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func TestPutGetRoundTrip(t *testing.T) {
	c := newTestCache(t, time.Minute, 0)

	in := payload{Name: "mid", Value: 2.5}
	if err := c.Put(RegionMarketData, "k", in); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Repeated reads must observe identical data.
	for i := 0; i < 3; i++ {
		var out payload
		ok, err := c.Get(RegionMarketData, "k", &out)
		if err != nil {
			t.Fatalf("Get #%d: %v", i, err)
		}
		if !ok {
			t.Fatalf("Get #%d: miss, want hit", i)
		}
		if out != in {
			t.Fatalf("Get #%d: got %+v, want %+v", i, out, in)
		}
	}

	stats := c.Stats()[RegionMarketData]
	if stats.Hits != 3 || stats.Misses != 0 {
		t.Errorf("stats = %+v, want 3 hits / 0 misses", stats)
	}
}

func TestGetMissOnAbsentKey(t *testing.T) {
	c := newTestCache(t, time.Minute, 0)

	var out payload
	ok, err := c.Get(RegionOrderBooks, "absent", &out)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("Get returned a hit for an absent key")
	}
	if got := c.Stats()[RegionOrderBooks].Misses; got != 1 {
		t.Errorf("misses = %d, want 1", got)
	}
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c := newTestCache(t, 50*time.Millisecond, 0)

	if err := c.Put(RegionOpportunities, "k", payload{Name: "x"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(80 * time.Millisecond)

	var out payload
	ok, err := c.Get(RegionOpportunities, "k", &out)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expired entry still readable")
	}
	stats := c.Stats()[RegionOpportunities]
	if stats.Expirations != 1 {
		t.Errorf("expirations = %d, want 1", stats.Expirations)
	}
}

func TestUnknownRegionRejected(t *testing.T) {
	c := newTestCache(t, time.Minute, 0)

	if err := c.Put(Region("bogus"), "k", payload{}); !errors.Is(err, domain.ErrUnknownRegion) {
		t.Errorf("Put error = %v, want ErrUnknownRegion", err)
	}
	var out payload
	if _, err := c.Get(Region("bogus"), "k", &out); !errors.Is(err, domain.ErrUnknownRegion) {
		t.Errorf("Get error = %v, want ErrUnknownRegion", err)
	}
}

func TestCompressedEntriesRoundTrip(t *testing.T) {
	c := newTestCache(t, time.Minute, 64)

	// Highly compressible payload well above the threshold.
	in := payload{Name: strings.Repeat("abcdefgh", 100), Value: 1}
	if err := c.Put(RegionTrades, "big", in); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var out payload
	ok, err := c.Get(RegionTrades, "big", &out)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("miss on compressed entry")
	}
	if out != in {
		t.Fatal("compressed round trip mutated the payload")
	}

	// The stored form should be smaller than the raw serialization.
	if size := c.Stats()[RegionTrades].SizeBytes; size >= int64(len(in.Name)) {
		t.Errorf("stored size = %d, expected compression below %d", size, len(in.Name))
	}
}

func TestGetWithAgeReportsAge(t *testing.T) {
	c := newTestCache(t, time.Minute, 0)

	if err := c.Put(RegionOpportunities, "k", payload{Name: "x"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	var out payload
	age, ok, err := c.GetWithAge(RegionOpportunities, "k", &out)
	if err != nil || !ok {
		t.Fatalf("GetWithAge: ok=%v err=%v", ok, err)
	}
	if age < 20*time.Millisecond || age > time.Second {
		t.Errorf("age = %v, want roughly 20ms", age)
	}
}

func TestClearDropsRegionOnly(t *testing.T) {
	c := newTestCache(t, time.Minute, 0)

	_ = c.Put(RegionMarketData, "a", payload{})
	_ = c.Put(RegionOrderBooks, "b", payload{})

	if err := c.Clear(RegionMarketData); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if c.Len(RegionMarketData) != 0 {
		t.Error("cleared region not empty")
	}
	if c.Len(RegionOrderBooks) != 1 {
		t.Error("Clear touched another region")
	}
}

func TestMemoryPressureEvictsOldestQuarter(t *testing.T) {
	c := newTestCache(t, time.Minute, 0)
	keys := []string{"k0", "k1", "k2", "k3", "k4", "k5", "k6", "k7"}
	for _, k := range keys {
		if err := c.Put(RegionOrderBooks, k, payload{Name: k}); err != nil {
			t.Fatalf("Put %s: %v", k, err)
		}
	}

	// Backdate the first two entries so eviction order is unambiguous.
	r := c.regions[RegionOrderBooks]
	r.mu.Lock()
	r.entries["k0"].insertedAt = time.Now().Add(-2 * time.Hour)
	r.entries["k1"].insertedAt = time.Now().Add(-1 * time.Hour)
	r.mu.Unlock()

	evicted := c.evictOldest(RegionOrderBooks, r)
	if evicted != 2 {
		t.Fatalf("evictOldest removed %d entries, want 2 (25%% of 8)", evicted)
	}

	var out payload
	if ok, _ := c.Get(RegionOrderBooks, "k0", &out); ok {
		t.Error("oldest entry k0 survived eviction")
	}
	if ok, _ := c.Get(RegionOrderBooks, "k1", &out); ok {
		t.Error("second-oldest entry k1 survived eviction")
	}
	if ok, _ := c.Get(RegionOrderBooks, "k7", &out); !ok {
		t.Error("recent entry k7 was evicted")
	}
	if got := c.Stats()[RegionOrderBooks].Evictions; got != 2 {
		t.Errorf("evictions = %d, want 2", got)
	}
}

func TestListenersObserveEvents(t *testing.T) {
	c := newTestCache(t, 30*time.Millisecond, 0)

	var mu sync.Mutex
	var events []Event
	c.AddListener(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	_ = c.Put(RegionMarketData, "k", payload{})
	time.Sleep(50 * time.Millisecond)
	var out payload
	_, _ = c.Get(RegionMarketData, "k", &out) // lazy expiry fires an event
	_ = c.Put(RegionMarketData, "k2", payload{})
	_ = c.Clear(RegionMarketData)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("observed %d events, want 2", len(events))
	}
	if events[0].Type != EventExpired || events[0].Key != "k" {
		t.Errorf("first event = %+v, want expired k", events[0])
	}
	if events[1].Type != EventCleared || events[1].Count != 1 {
		t.Errorf("second event = %+v, want cleared count 1", events[1])
	}
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	c := newTestCache(t, 30*time.Millisecond, 0)

	_ = c.Put(RegionTrades, "old", payload{})
	time.Sleep(50 * time.Millisecond)
	_ = c.Put(RegionTrades, "fresh", payload{})

	c.sweep(RegionTrades, c.regions[RegionTrades])

	if c.Len(RegionTrades) != 1 {
		t.Fatalf("Len = %d after sweep, want 1", c.Len(RegionTrades))
	}
	var out payload
	if ok, _ := c.Get(RegionTrades, "fresh", &out); !ok {
		t.Error("fresh entry removed by sweep")
	}
}
