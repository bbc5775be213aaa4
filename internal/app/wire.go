package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lumenlabs/stellarb/internal/arbitrage"
	s3blob "github.com/lumenlabs/stellarb/internal/blob/s3"
	busredis "github.com/lumenlabs/stellarb/internal/bus/redis"
	"github.com/lumenlabs/stellarb/internal/cache"
	"github.com/lumenlabs/stellarb/internal/config"
	"github.com/lumenlabs/stellarb/internal/domain"
	"github.com/lumenlabs/stellarb/internal/market"
	"github.com/lumenlabs/stellarb/internal/notify"
	"github.com/lumenlabs/stellarb/internal/platform/horizon"
	"github.com/lumenlabs/stellarb/internal/server/ws"
	"github.com/lumenlabs/stellarb/internal/service"
	"github.com/lumenlabs/stellarb/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Cache   *cache.Cache
	Catalog market.Catalog
	Fetcher *market.Fetcher
	Engine  *arbitrage.Engine

	// Hub is nil when the WebSocket broadcaster is disabled.
	Hub *ws.Hub
	// Bus is nil when the Redis event mirror is disabled.
	Bus domain.SignalBus

	OpportunityStore domain.OpportunityStore
	TradeStore       domain.TradeStore
	Archiver         domain.Archiver
	Notifier         *notify.Notifier

	Analysis *service.AnalysisService
	Trades   *service.TradeService
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Core pipeline ---
	source := horizon.NewClient(cfg.Horizon.BaseURL, cfg.Horizon.DepthLimit, cfg.Horizon.RequestTimeout.Duration)
	deps.Catalog = market.CatalogFromConfig(cfg.Pairs)
	deps.Fetcher = market.NewFetcher(source, market.FetcherConfig{
		BatchSize:      cfg.Fetcher.BatchSize,
		BatchDelay:     cfg.Fetcher.BatchDelay.Duration,
		RequestTimeout: cfg.Horizon.RequestTimeout.Duration,
		LiquidityFloor: cfg.Fetcher.LiquidityFloor,
	}, logger)
	deps.Engine = arbitrage.NewEngine(arbitrage.Config{
		StartAmount:        cfg.Engine.StartAmount,
		UtilizationCeiling: cfg.Engine.UtilizationCeiling,
		NetworkFee:         cfg.Engine.NetworkFee,
		ExchangeFeeRate:    cfg.Engine.ExchangeFeeRate,
	}, logger)

	// --- Tiered cache ---
	deps.Cache = cache.New(cache.Config{
		Regions: map[cache.Region]cache.RegionConfig{
			cache.RegionMarketData:    {TTL: cfg.Cache.MarketData.TTL.Duration, Sweep: cfg.Cache.MarketData.Sweep.Duration},
			cache.RegionOrderBooks:    {TTL: cfg.Cache.OrderBooks.TTL.Duration, Sweep: cfg.Cache.OrderBooks.Sweep.Duration},
			cache.RegionOpportunities: {TTL: cfg.Cache.Opportunities.TTL.Duration, Sweep: cfg.Cache.Opportunities.Sweep.Duration},
			cache.RegionTrades:        {TTL: cfg.Cache.Trades.TTL.Duration, Sweep: cfg.Cache.Trades.Sweep.Duration},
		},
		CompressionThreshold:  cfg.Cache.CompressionThreshold,
		MemoryCeilingBytes:    uint64(cfg.Cache.MemoryCeilingMB) * 1024 * 1024,
		PressureCheckInterval: cfg.Cache.PressureCheckInterval.Duration,
	}, logger)

	// --- WebSocket hub ---
	if cfg.WS.Enabled {
		deps.Hub = ws.NewHub(ws.Config{
			MaxSubscribers:    cfg.WS.MaxSubscribers,
			HeartbeatInterval: cfg.WS.HeartbeatInterval.Duration,
		}, logger)
	}

	// --- Redis event mirror ---
	if cfg.Redis.Enabled {
		redisClient, err := busredis.New(ctx, busredis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Bus = busredis.NewSignalBus(redisClient)
	}

	// --- PostgreSQL history store ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		opportunityStore := postgres.NewOpportunityStore(pool)
		tradeStore := postgres.NewTradeStore(pool)
		deps.OpportunityStore = opportunityStore
		deps.TradeStore = tradeStore

		// --- S3 archiver (needs the history store to archive from) ---
		if cfg.S3.Enabled {
			s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
				Endpoint:       cfg.S3.Endpoint,
				Region:         cfg.S3.Region,
				Bucket:         cfg.S3.Bucket,
				AccessKey:      cfg.S3.AccessKey,
				SecretKey:      cfg.S3.SecretKey,
				UseSSL:         cfg.S3.UseSSL,
				ForcePathStyle: cfg.S3.ForcePathStyle,
			})
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: s3: %w", err)
			}
			closers = append(closers, func() { _ = s3Client.Close() })

			deps.Archiver = s3blob.NewArchiver(
				s3blob.NewWriter(s3Client),
				opportunityStore,
				tradeStore,
				logger,
			)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	var broadcaster domain.Broadcaster
	if deps.Hub != nil {
		broadcaster = deps.Hub
	}
	deps.Analysis = service.NewAnalysisService(
		deps.Catalog, deps.Fetcher, deps.Engine, deps.Cache,
		broadcaster, deps.Bus, deps.OpportunityStore, deps.Notifier,
		service.AnalysisConfig{
			MaxDeviationRatio: cfg.Analysis.MaxDeviationRatio,
			PersistProfitable: cfg.Analysis.PersistProfitable,
			BroadcastChannel:  cfg.Analysis.BroadcastChannel,
		},
		logger,
	)
	deps.Trades = service.NewTradeService(
		deps.Cache, broadcaster, deps.Bus, deps.TradeStore,
		service.TradeConfig{
			TradesChannel: cfg.Analysis.TradesChannel,
			IntakeChannel: cfg.Analysis.TradesIntakeChannel,
		},
		logger,
	)

	// Surface cache lifecycle events at debug level.
	deps.Cache.AddListener(func(ev cache.Event) {
		logger.Debug("cache event",
			slog.String("type", string(ev.Type)),
			slog.String("region", string(ev.Region)),
			slog.Int("count", ev.Count),
		)
	})

	return deps, cleanup, nil
}
