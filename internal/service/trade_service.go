package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lumenlabs/stellarb/internal/cache"
	"github.com/lumenlabs/stellarb/internal/domain"
)

// TradeConfig holds the trade service parameters.
type TradeConfig struct {
	// TradesChannel carries trade events to subscribers.
	TradesChannel string
	// IntakeChannel is the signal-bus channel on which execution
	// collaborators hand finished trades back. Empty disables intake.
	IntakeChannel string
}

// TradeService records trade outcomes handed back by execution collaborators
// and fans them out. Execution itself lives outside this core.
type TradeService struct {
	cache  *cache.Cache
	hub    domain.Broadcaster
	bus    domain.SignalBus
	store  domain.TradeStore
	cfg    TradeConfig
	logger *slog.Logger
}

// NewTradeService creates a TradeService. cache is required; hub, bus, and
// store may be nil.
func NewTradeService(
	c *cache.Cache,
	hub domain.Broadcaster,
	bus domain.SignalBus,
	store domain.TradeStore,
	cfg TradeConfig,
	logger *slog.Logger,
) *TradeService {
	return &TradeService{
		cache:  c,
		hub:    hub,
		bus:    bus,
		store:  store,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "trade_service")),
	}
}

// RecordTrade caches, persists, and broadcasts a finished trade record.
// Missing identity and timestamp fields are filled in.
func (s *TradeService) RecordTrade(ctx context.Context, rec domain.TradeRecord) (domain.TradeRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.Must(uuid.NewRandom()).String()
	}
	if rec.ExecutedAt.IsZero() {
		rec.ExecutedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = domain.TradeStatusPending
	}

	if err := s.cache.Put(cache.RegionTrades, rec.ID, rec); err != nil {
		return domain.TradeRecord{}, fmt.Errorf("service: cache trade %s: %w", rec.ID, err)
	}

	if s.store != nil {
		if err := s.store.Insert(ctx, rec); err != nil {
			return domain.TradeRecord{}, fmt.Errorf("service: persist trade %s: %w", rec.ID, err)
		}
	}

	event := map[string]any{
		"type":    "trade",
		"payload": rec,
	}
	if s.hub != nil {
		s.hub.Broadcast(event, s.cfg.TradesChannel)
	}
	if s.bus != nil {
		if payload, err := json.Marshal(event); err == nil {
			if err := s.bus.Publish(ctx, s.cfg.TradesChannel, payload); err != nil {
				s.logger.Warn("bus publish failed",
					slog.String("trade_id", rec.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	s.logger.Info("trade recorded",
		slog.String("trade_id", rec.ID),
		slog.String("loop_id", rec.LoopID),
		slog.String("status", string(rec.Status)),
		slog.Float64("profit", rec.Profit),
	)
	return rec, nil
}

// ListenIntake consumes trade records that execution collaborators publish on
// the signal-bus intake channel and records each one. Malformed payloads are
// discarded. It blocks until ctx is cancelled and is a no-op when no bus or
// intake channel is wired.
func (s *TradeService) ListenIntake(ctx context.Context) error {
	if s.bus == nil || s.cfg.IntakeChannel == "" {
		return nil
	}

	ch, err := s.bus.Subscribe(ctx, s.cfg.IntakeChannel)
	if err != nil {
		return fmt.Errorf("service: subscribe %s: %w", s.cfg.IntakeChannel, err)
	}
	s.logger.Info("listening for trade hand-backs",
		slog.String("channel", s.cfg.IntakeChannel),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			var rec domain.TradeRecord
			if err := json.Unmarshal(payload, &rec); err != nil {
				s.logger.Warn("discarding malformed trade hand-back",
					slog.String("error", err.Error()),
				)
				continue
			}
			if _, err := s.RecordTrade(ctx, rec); err != nil {
				s.logger.Warn("record handed-back trade failed",
					slog.String("loop_id", rec.LoopID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// GetCachedTrade returns a recently recorded trade by ID.
func (s *TradeService) GetCachedTrade(id string) (domain.TradeRecord, bool, error) {
	var rec domain.TradeRecord
	ok, err := s.cache.Get(cache.RegionTrades, id, &rec)
	if err != nil {
		return domain.TradeRecord{}, false, fmt.Errorf("service: read cached trade %s: %w", id, err)
	}
	return rec, ok, nil
}

// ListRecentTrades returns the most recent persisted trades. It requires the
// history store.
func (s *TradeService) ListRecentTrades(ctx context.Context, limit int) ([]domain.TradeRecord, error) {
	if s.store == nil {
		return nil, fmt.Errorf("service: list trades: %w", domain.ErrNotFound)
	}
	recs, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("service: list trades: %w", err)
	}
	return recs, nil
}
