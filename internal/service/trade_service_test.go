package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lumenlabs/stellarb/internal/cache"
	"github.com/lumenlabs/stellarb/internal/domain"
)

// fakeTradeStore captures inserted records in memory.
type fakeTradeStore struct {
	mu   sync.Mutex
	recs []domain.TradeRecord
	fail error
}

func (f *fakeTradeStore) Insert(ctx context.Context, rec domain.TradeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeTradeStore) ListRecent(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit <= 0 || limit > len(f.recs) {
		limit = len(f.recs)
	}
	out := make([]domain.TradeRecord, limit)
	copy(out, f.recs[len(f.recs)-limit:])
	return out, nil
}

func (f *fakeTradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeRecord, error) {
	return nil, nil
}

func (f *fakeTradeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs)
}

func (f *fakeTradeStore) snapshot() []domain.TradeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.TradeRecord, len(f.recs))
	copy(out, f.recs)
	return out
}

// fakeSignalBus hands tests a direct line into the intake channel and records
// everything published back out.
type fakeSignalBus struct {
	mu        sync.Mutex
	intake    chan []byte
	published map[string][][]byte
}

func (f *fakeSignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.published == nil {
		f.published = make(map[string][][]byte)
	}
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

func (f *fakeSignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return f.intake, nil
}

func (f *fakeSignalBus) publishedOn(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published[channel])
}

func TestRecordTradeFillsIdentity(t *testing.T) {
	c := cache.New(cache.Config{}, testLogger())
	store := &fakeTradeStore{}
	hub := &fakeBroadcaster{}
	svc := NewTradeService(c, hub, nil, store, TradeConfig{TradesChannel: "trades"}, testLogger())

	rec, err := svc.RecordTrade(context.Background(), domain.TradeRecord{
		LoopID:       "loop-1",
		Path:         []string{"X", "A", "B", "X"},
		InputAmount:  100,
		OutputAmount: 119,
		Profit:       19,
	})
	if err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}

	if rec.ID == "" {
		t.Error("record has no generated ID")
	}
	if rec.ExecutedAt.IsZero() {
		t.Error("record has no execution timestamp")
	}
	if rec.Status != domain.TradeStatusPending {
		t.Errorf("Status = %s, want pending", rec.Status)
	}

	if len(store.recs) != 1 || store.recs[0].ID != rec.ID {
		t.Errorf("store holds %d records, want the recorded one", len(store.recs))
	}
	if hub.eventCount() != 1 {
		t.Errorf("broadcaster saw %d events, want 1", hub.eventCount())
	}
}

func TestRecordTradeKeepsCallerFields(t *testing.T) {
	c := cache.New(cache.Config{}, testLogger())
	svc := NewTradeService(c, nil, nil, nil, TradeConfig{}, testLogger())

	executed := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rec, err := svc.RecordTrade(context.Background(), domain.TradeRecord{
		ID:           "trade-7",
		Status:       domain.TradeStatusFailed,
		FailureCause: "offer crossed",
		ExecutedAt:   executed,
	})
	if err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	if rec.ID != "trade-7" || rec.Status != domain.TradeStatusFailed || !rec.ExecutedAt.Equal(executed) {
		t.Errorf("caller-set fields were overwritten: %+v", rec)
	}
}

func TestRecordTradeSurfacesStoreFailure(t *testing.T) {
	c := cache.New(cache.Config{}, testLogger())
	store := &fakeTradeStore{fail: errors.New("fake: connection refused")}
	svc := NewTradeService(c, nil, nil, store, TradeConfig{}, testLogger())

	if _, err := svc.RecordTrade(context.Background(), domain.TradeRecord{LoopID: "loop-1"}); err == nil {
		t.Fatal("RecordTrade succeeded despite store failure")
	}
}

func TestGetCachedTradeRoundTrip(t *testing.T) {
	c := cache.New(cache.Config{}, testLogger())
	svc := NewTradeService(c, nil, nil, nil, TradeConfig{}, testLogger())

	rec, err := svc.RecordTrade(context.Background(), domain.TradeRecord{
		LoopID: "loop-2",
		Profit: 3.5,
	})
	if err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}

	got, ok, err := svc.GetCachedTrade(rec.ID)
	if err != nil {
		t.Fatalf("GetCachedTrade: %v", err)
	}
	if !ok {
		t.Fatal("recorded trade not in cache")
	}
	if got.LoopID != "loop-2" || got.Profit != 3.5 {
		t.Errorf("cached trade = %+v", got)
	}

	if _, ok, _ := svc.GetCachedTrade("absent"); ok {
		t.Error("cache hit for an unknown trade ID")
	}
}

func TestListenIntakeRecordsHandedBackTrades(t *testing.T) {
	bus := &fakeSignalBus{intake: make(chan []byte, 2)}
	store := &fakeTradeStore{}
	hub := &fakeBroadcaster{}
	svc := NewTradeService(cache.New(cache.Config{}, testLogger()), hub, bus, store,
		TradeConfig{TradesChannel: "trades", IntakeChannel: "trades.inbound"}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.ListenIntake(ctx) }()

	// A malformed payload is discarded; the listener keeps consuming.
	bus.intake <- []byte("{not json")
	payload, err := json.Marshal(domain.TradeRecord{
		LoopID: "loop-9",
		Profit: 1.5,
		Status: domain.TradeStatusFilled,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	bus.intake <- payload

	deadline := time.Now().Add(time.Second)
	for store.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("ListenIntake returned %v, want context.Canceled", err)
	}

	recs := store.snapshot()
	if len(recs) != 1 {
		t.Fatalf("store holds %d records, want 1", len(recs))
	}
	rec := recs[0]
	if rec.LoopID != "loop-9" || rec.Status != domain.TradeStatusFilled {
		t.Errorf("recorded trade = %+v", rec)
	}
	if rec.ID == "" {
		t.Error("handed-back trade got no generated ID")
	}
	// The recorded trade fans out on the outbound channel like any other.
	if got := bus.publishedOn("trades"); got != 1 {
		t.Errorf("outbound publishes = %d, want 1", got)
	}
	if hub.eventCount() != 1 {
		t.Errorf("broadcaster saw %d events, want 1", hub.eventCount())
	}
}

func TestListenIntakeWithoutBus(t *testing.T) {
	svc := NewTradeService(cache.New(cache.Config{}, testLogger()), nil, nil, nil,
		TradeConfig{IntakeChannel: "trades.inbound"}, testLogger())
	if err := svc.ListenIntake(context.Background()); err != nil {
		t.Fatalf("ListenIntake without a bus: %v", err)
	}
}

func TestListRecentTradesRequiresStore(t *testing.T) {
	c := cache.New(cache.Config{}, testLogger())
	svc := NewTradeService(c, nil, nil, nil, TradeConfig{}, testLogger())

	if _, err := svc.ListRecentTrades(context.Background(), 5); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ListRecentTrades error = %v, want ErrNotFound", err)
	}
}
