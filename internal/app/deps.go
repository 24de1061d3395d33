package app

import (
	"context"
	"log/slog"

	"github.com/vidclash/backend/internal/battles"
	"github.com/vidclash/backend/internal/cache"
	"github.com/vidclash/backend/internal/config"
	"github.com/vidclash/backend/internal/db"
	"github.com/vidclash/backend/internal/handlers"
	"github.com/vidclash/backend/internal/middleware"
	"github.com/vidclash/backend/internal/notifications"
	"github.com/vidclash/backend/internal/presence"
	"github.com/vidclash/backend/internal/push"
	"github.com/vidclash/backend/internal/social"
	"github.com/vidclash/backend/internal/store"
	"github.com/vidclash/backend/internal/views"
)

// workers groups the long-running background tasks owned by serve. They share
// the serve context and are stopped together during shutdown.
type workers struct {
	sweeper     *battles.Sweeper
	invalidator *cache.Invalidator
	presence    *presence.Tracker
}

func (w *workers) start(ctx context.Context) error {
	if err := w.sweeper.Start(ctx); err != nil {
		return err
	}
	if err := w.invalidator.Start(ctx); err != nil {
		w.sweeper.Stop()
		return err
	}
	if err := w.presence.Start(ctx); err != nil {
		w.invalidator.Stop()
		w.sweeper.Stop()
		return err
	}
	return nil
}

func (w *workers) stop() {
	w.presence.Stop()
	w.invalidator.Stop()
	w.sweeper.Stop()
}

// buildDependencies wires together concrete implementations used by the HTTP
// handlers and the background workers.
func buildDependencies(pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, *workers) {
	st := store.NewPostgres(pool, cfg.SubscribePoll, logger)

	var sender push.Sender
	if cfg.PushGatewayURL != "" {
		sender = push.NewGatewayClient(cfg.PushGatewayURL, cfg.PushTimeout)
	}
	dispatcher := notifications.NewDispatcher(st, sender, logger)

	battleSvc := battles.NewService(st, dispatcher, battles.Config{
		Duration:       cfg.BattleDuration,
		SweepBatchSize: cfg.SweepBatchSize,
		FeedLimit:      cfg.FeedLimit,
	}, logger)

	feedCache := cache.New(cfg.CacheTTL)

	deps := handlers.Dependencies{
		Battles:       battleSvc,
		Views:         views.NewLedger(st, cfg.MinViewDuration, logger),
		Notifications: dispatcher,
		Follows:       social.NewService(st, dispatcher, logger),
		FeedCache:     feedCache,
		VoteLimiter:   middleware.NewKeyRateLimiter(cfg.VoteRateLimit, cfg.VoteRateWindow, cfg.VoteRateLimit, 10*cfg.VoteRateWindow),
		ViewLimiter:   middleware.NewKeyRateLimiter(cfg.VoteRateLimit, cfg.VoteRateWindow, cfg.VoteRateLimit, 10*cfg.VoteRateWindow),
	}

	w := &workers{
		sweeper:     battles.NewSweeper(battleSvc, cfg.SweepInterval, logger),
		invalidator: cache.NewInvalidator(feedCache, st, logger, battles.FeedKeyNew, battles.FeedKeyTrending, battles.FeedKeyGames),
		presence:    presence.NewTracker(st, cfg.PresenceInterval, logger),
	}

	return deps, w
}
