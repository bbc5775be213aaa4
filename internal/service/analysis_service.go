// Package service implements the application services: running the analysis
// pipeline, serving cached results, re-validating opportunities, and
// recording trades handed back by execution collaborators.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lumenlabs/stellarb/internal/arbitrage"
	"github.com/lumenlabs/stellarb/internal/cache"
	"github.com/lumenlabs/stellarb/internal/domain"
	"github.com/lumenlabs/stellarb/internal/graph"
	"github.com/lumenlabs/stellarb/internal/market"
	"github.com/lumenlabs/stellarb/internal/notify"
)

// opportunitiesKey is the cache key of the latest completed analysis run.
const opportunitiesKey = "latest"

// AnalysisConfig holds the analysis service parameters.
type AnalysisConfig struct {
	// MaxDeviationRatio is the relative profit deviation tolerated when
	// re-validating a previously detected opportunity.
	MaxDeviationRatio float64
	// PersistProfitable stores profitable loops in the history store when
	// one is wired.
	PersistProfitable bool
	// BroadcastChannel carries opportunity events to subscribers.
	BroadcastChannel string
}

// AnalysisService drives the fetch, graph-build, and cycle-search pipeline
// and caches its output. Optional collaborators (broadcaster, signal bus,
// history store, notifier) may be nil; the pipeline never depends on them.
type AnalysisService struct {
	catalog  market.Catalog
	fetcher  *market.Fetcher
	engine   *arbitrage.Engine
	cache    *cache.Cache
	hub      domain.Broadcaster
	bus      domain.SignalBus
	store    domain.OpportunityStore
	notifier *notify.Notifier
	cfg      AnalysisConfig
	logger   *slog.Logger

	flight singleflight.Group
}

// NewAnalysisService creates an AnalysisService. catalog, fetcher, engine,
// and c are required; the remaining collaborators may be nil.
func NewAnalysisService(
	catalog market.Catalog,
	fetcher *market.Fetcher,
	engine *arbitrage.Engine,
	c *cache.Cache,
	hub domain.Broadcaster,
	bus domain.SignalBus,
	store domain.OpportunityStore,
	notifier *notify.Notifier,
	cfg AnalysisConfig,
	logger *slog.Logger,
) *AnalysisService {
	if cfg.MaxDeviationRatio <= 0 {
		cfg.MaxDeviationRatio = 0.10
	}
	return &AnalysisService{
		catalog:  catalog,
		fetcher:  fetcher,
		engine:   engine,
		cache:    c,
		hub:      hub,
		bus:      bus,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "analysis_service")),
	}
}

// RunAnalysis returns the latest analysis result, serving from cache when a
// fresh run is available and executing the pipeline otherwise. Concurrent
// callers that miss the cache coalesce onto a single pipeline execution.
func (s *AnalysisService) RunAnalysis(ctx context.Context) (domain.AnalysisResult, error) {
	var cached domain.AnalysisResult
	if ok, err := s.cache.Get(cache.RegionOpportunities, opportunitiesKey, &cached); err != nil {
		s.logger.Warn("cached result unreadable, re-running analysis",
			slog.String("error", err.Error()),
		)
	} else if ok {
		return cached, nil
	}

	v, err, _ := s.flight.Do("analysis", func() (any, error) {
		return s.runPipeline(ctx)
	})
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	return v.(domain.AnalysisResult), nil
}

// runPipeline executes one full analysis pass: fetch order books, build the
// pricing graph, search for loops, apply fees, then cache and fan out.
func (s *AnalysisService) runPipeline(ctx context.Context) (domain.AnalysisResult, error) {
	started := time.Now()

	pairs := s.catalog.Pairs()
	if len(pairs) == 0 {
		return domain.AnalysisResult{}, domain.ErrNoTradingPairs
	}

	snapshots, err := s.fetcher.FetchOrderBooks(ctx, pairs)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("service: fetch order books: %w", err)
	}
	s.cacheSnapshots(snapshots)

	g := graph.Build(snapshots)
	loops := s.engine.FindLoops(g)
	profitable := s.engine.ApplyFees(loops)

	result := domain.AnalysisResult{
		Opportunities: profitable,
		Analysis: domain.AnalysisReport{
			TotalPairs:              len(pairs),
			ValidOrderBooks:         len(snapshots),
			OpportunitiesFound:      len(loops),
			ProfitableOpportunities: len(profitable),
			AnalysisTimeMs:          time.Since(started).Milliseconds(),
			Timestamp:               time.Now().UTC(),
		},
	}

	if err := s.cache.Put(cache.RegionOpportunities, opportunitiesKey, result); err != nil {
		s.logger.Warn("cache analysis result failed", slog.String("error", err.Error()))
	}

	s.fanOut(ctx, result)
	s.persistProfitable(ctx, profitable)

	s.logger.Info("analysis run complete",
		slog.Int("pairs", len(pairs)),
		slog.Int("valid_books", len(snapshots)),
		slog.Int("loops", len(loops)),
		slog.Int("profitable", len(profitable)),
		slog.Int64("elapsed_ms", result.Analysis.AnalysisTimeMs),
	)
	return result, nil
}

// cacheSnapshots stores each order book under its pair key and a compact
// per-pair price summary under the market-data region.
func (s *AnalysisService) cacheSnapshots(snapshots []domain.OrderBookSnapshot) {
	summary := make(map[string]float64, len(snapshots))
	for _, snap := range snapshots {
		key := snap.Pair.Key()
		if err := s.cache.Put(cache.RegionOrderBooks, key, snap); err != nil {
			s.logger.Warn("cache order book failed",
				slog.String("pair", key),
				slog.String("error", err.Error()),
			)
		}
		if snap.HasMid() {
			summary[key] = snap.MidPrice
		}
	}
	if err := s.cache.Put(cache.RegionMarketData, "mid_prices", summary); err != nil {
		s.logger.Warn("cache mid prices failed", slog.String("error", err.Error()))
	}
}

// fanOut delivers the run result to the broadcaster and mirrors it onto the
// signal bus. Both are best effort.
func (s *AnalysisService) fanOut(ctx context.Context, result domain.AnalysisResult) {
	event := map[string]any{
		"type":    "opportunities",
		"payload": result,
	}
	if s.hub != nil {
		s.hub.Broadcast(event, s.cfg.BroadcastChannel)
	}
	if s.bus != nil {
		payload, err := json.Marshal(event)
		if err == nil {
			if err := s.bus.Publish(ctx, s.cfg.BroadcastChannel, payload); err != nil {
				s.logger.Warn("bus publish failed", slog.String("error", err.Error()))
			}
		}
	}
}

// persistProfitable writes profitable loops to the history store and alerts
// the notifier. Failures are logged; the run result is unaffected.
func (s *AnalysisService) persistProfitable(ctx context.Context, loops []domain.ArbitrageLoop) {
	if len(loops) == 0 {
		return
	}

	if s.store != nil && s.cfg.PersistProfitable {
		for _, loop := range loops {
			if err := s.store.Insert(ctx, loop); err != nil {
				s.logger.Warn("persist opportunity failed",
					slog.String("loop_id", loop.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if s.notifier != nil {
		best := loops[0]
		for _, loop := range loops[1:] {
			if loop.NetProfitPercent > best.NetProfitPercent {
				best = loop
			}
		}
		msg := fmt.Sprintf("%d profitable loop(s); best %s at %.3f%% net",
			len(loops), pathString(best.Path), best.NetProfitPercent)
		if err := s.notifier.Notify(ctx, notify.EventOpportunity, "Arbitrage detected", msg); err != nil {
			s.logger.Warn("notify failed", slog.String("error", err.Error()))
		}
	}
}

// GetCachedOpportunities returns the latest completed run's opportunities
// with their age. found is false when no fresh run is cached.
func (s *AnalysisService) GetCachedOpportunities(ctx context.Context) (domain.CachedOpportunities, bool, error) {
	var result domain.AnalysisResult
	age, ok, err := s.cache.GetWithAge(cache.RegionOpportunities, opportunitiesKey, &result)
	if err != nil {
		return domain.CachedOpportunities{}, false, fmt.Errorf("service: read cached opportunities: %w", err)
	}
	if !ok {
		return domain.CachedOpportunities{}, false, nil
	}
	return domain.CachedOpportunities{
		Opportunities: result.Opportunities,
		Count:         len(result.Opportunities),
		Age:           age,
	}, true, nil
}

// ValidationResult reports whether a previously detected loop still holds
// against fresh prices.
type ValidationResult struct {
	Valid     bool                  `json:"valid"`
	Reason    string                `json:"reason,omitempty"`
	Deviation float64               `json:"deviation"`
	Current   *domain.ArbitrageLoop `json:"current,omitempty"`
}

// ValidateOpportunity re-fetches the order books along a loop's path,
// re-simulates it, and accepts it only when the fresh profit stays within
// the configured relative deviation of the original.
func (s *AnalysisService) ValidateOpportunity(ctx context.Context, loop domain.ArbitrageLoop) (ValidationResult, error) {
	if len(loop.Steps) == 0 {
		return ValidationResult{Valid: false, Reason: "loop has no steps"}, nil
	}

	pairs := make([]domain.TradingPair, 0, len(loop.Steps))
	seen := make(map[string]bool, len(loop.Steps))
	for _, step := range loop.Steps {
		key := step.Pair.Key()
		if !seen[key] {
			seen[key] = true
			pairs = append(pairs, step.Pair)
		}
	}

	snapshots, err := s.fetcher.FetchOrderBooks(ctx, pairs)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("service: validate %s: %w", loop.ID, err)
	}

	g := graph.Build(snapshots)
	current, ok := s.engine.Simulate(g, loop.Path)
	if !ok {
		return ValidationResult{
			Valid:  false,
			Reason: "loop is no longer profitable at current prices",
		}, nil
	}

	deviation := relativeDeviation(loop.ProfitPercent, current.ProfitPercent)
	if deviation > s.cfg.MaxDeviationRatio {
		return ValidationResult{
			Valid:     false,
			Reason:    fmt.Sprintf("profit moved %.1f%% from detection", deviation*100),
			Deviation: deviation,
			Current:   &current,
		}, nil
	}

	return ValidationResult{Valid: true, Deviation: deviation, Current: &current}, nil
}

// Stats returns the cache counters for operational visibility.
func (s *AnalysisService) Stats() map[cache.Region]cache.RegionStats {
	return s.cache.Stats()
}

// relativeDeviation measures how far current profit has drifted from the
// originally detected profit, relative to the original.
func relativeDeviation(original, current float64) float64 {
	if original == 0 {
		if current == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return math.Abs(current-original) / math.Abs(original)
}

func pathString(path []string) string {
	out := ""
	for i, p := range path {
		if i > 0 {
			out += "->"
		}
		out += p
	}
	return out
}
