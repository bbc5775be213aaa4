package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lumenlabs/stellarb/internal/server"
	"github.com/lumenlabs/stellarb/internal/server/handler"
)

// AnalyzeMode runs the analysis pipeline on its configured interval without
// any network surface. Results land in the cache and, when wired, in the
// history store and notification channels.
func (a *App) AnalyzeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting analyze mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Cache.Run(ctx)
	})
	g.Go(func() error {
		return a.analysisLoop(ctx, deps)
	})

	return g.Wait()
}

// ServeMode runs the analysis loop together with the WebSocket hub and the
// HTTP host, so subscribers receive opportunity events as they are found.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Cache.Run(ctx)
	})
	if deps.Hub != nil {
		g.Go(func() error {
			return deps.Hub.Run(ctx)
		})
	}
	g.Go(func() error {
		return a.analysisLoop(ctx, deps)
	})
	if deps.Bus != nil {
		g.Go(func() error {
			return deps.Trades.ListenIntake(ctx)
		})
	}

	a.startServer(ctx, g, deps)

	return g.Wait()
}

// FullMode is ServeMode plus the periodic archival of aged history to object
// storage.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Cache.Run(ctx)
	})
	if deps.Hub != nil {
		g.Go(func() error {
			return deps.Hub.Run(ctx)
		})
	}
	g.Go(func() error {
		return a.analysisLoop(ctx, deps)
	})
	if deps.Bus != nil {
		g.Go(func() error {
			return deps.Trades.ListenIntake(ctx)
		})
	}
	if deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps)
		})
	}

	a.startServer(ctx, g, deps)

	return g.Wait()
}

// analysisLoop runs one analysis immediately and then repeats on the
// configured interval. Pipeline errors are logged, not fatal; only context
// cancellation stops the loop.
func (a *App) analysisLoop(ctx context.Context, deps *Dependencies) error {
	run := func() {
		result, err := deps.Analysis.RunAnalysis(ctx)
		if err != nil {
			a.logger.ErrorContext(ctx, "analysis run failed",
				slog.String("error", err.Error()),
			)
			return
		}
		a.logger.InfoContext(ctx, "analysis loop tick",
			slog.Int("opportunities", len(result.Opportunities)),
			slog.Int64("elapsed_ms", result.Analysis.AnalysisTimeMs),
		)
	}

	run()

	ticker := time.NewTicker(a.cfg.Analysis.Interval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			run()
		}
	}
}

// archiveLoop periodically moves history older than the configured cutoff to
// object storage.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.S3.ArchiveEvery.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			before := time.Now().Add(-a.cfg.S3.ArchiveAfter.Duration)

			if n, err := deps.Archiver.ArchiveOpportunities(ctx, before); err != nil {
				a.logger.ErrorContext(ctx, "archive opportunities failed",
					slog.String("error", err.Error()),
				)
			} else if n > 0 {
				a.logger.InfoContext(ctx, "archived opportunities", slog.Int64("count", n))
			}

			if n, err := deps.Archiver.ArchiveTrades(ctx, before); err != nil {
				a.logger.ErrorContext(ctx, "archive trades failed",
					slog.String("error", err.Error()),
				)
			} else if n > 0 {
				a.logger.InfoContext(ctx, "archived trades", slog.Int64("count", n))
			}
		}
	}
}

// startServer builds the HTTP host and registers its start and shutdown
// goroutines on the group.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	health := handler.NewHealthHandler(a.logger)

	var counter handler.SubscriberCounter
	if deps.Hub != nil {
		counter = deps.Hub
	}
	status := handler.NewStatusHandler(deps.Analysis, counter, a.logger)

	srv := server.NewServer(server.Config{Port: a.cfg.WS.Port}, health, status, deps.Hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
