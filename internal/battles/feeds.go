package battles

import (
	"context"
	"fmt"

	"github.com/vidclash/backend/internal/models"
	"github.com/vidclash/backend/internal/store"
)

// Feed cache keys, shared with the HTTP layer and the feed invalidator.
const (
	FeedKeyNew      = "feed:new"
	FeedKeyTrending = "feed:trending"
	FeedKeyGames    = "feed:games"
)

// FeedNew returns active battles, newest first.
func (s *Service) FeedNew(ctx context.Context) ([]models.Battle, error) {
	return s.feed(ctx, store.Query{
		Filters: []store.Filter{{Field: "status", Op: store.OpEqual, Value: models.BattleStatusActive}},
		OrderBy: &store.Order{Field: "createdAt", Desc: true},
		Limit:   s.cfg.FeedLimit,
	})
}

// FeedTrending returns active battles ordered by total votes.
func (s *Service) FeedTrending(ctx context.Context) ([]models.Battle, error) {
	return s.feed(ctx, store.Query{
		Filters: []store.Filter{{Field: "status", Op: store.OpEqual, Value: models.BattleStatusActive}},
		OrderBy: &store.Order{Field: "totalVotes", Desc: true, Numeric: true},
		Limit:   s.cfg.FeedLimit,
	})
}

// FeedByCategory returns active battles in one category, newest first.
func (s *Service) FeedByCategory(ctx context.Context, category string) ([]models.Battle, error) {
	return s.feed(ctx, store.Query{
		Filters: []store.Filter{
			{Field: "status", Op: store.OpEqual, Value: models.BattleStatusActive},
			{Field: "category", Op: store.OpEqual, Value: category},
		},
		OrderBy: &store.Order{Field: "createdAt", Desc: true},
		Limit:   s.cfg.FeedLimit,
	})
}

// FeedGameBattles returns active battles across the game category union,
// newest first.
func (s *Service) FeedGameBattles(ctx context.Context) ([]models.Battle, error) {
	return s.feed(ctx, store.Query{
		Filters: []store.Filter{
			{Field: "status", Op: store.OpEqual, Value: models.BattleStatusActive},
			{Field: "category", Op: store.OpIn, Value: GameCategories},
		},
		OrderBy: &store.Order{Field: "createdAt", Desc: true},
		Limit:   s.cfg.FeedLimit,
	})
}

func (s *Service) feed(ctx context.Context, q store.Query) ([]models.Battle, error) {
	docs, err := s.store.Query(ctx, store.CollectionBattles, q)
	if err != nil {
		return nil, fmt.Errorf("battle feed: %w", err)
	}

	battles := make([]models.Battle, 0, len(docs))
	for _, doc := range docs {
		var battle models.Battle
		if err := doc.Decode(&battle); err != nil {
			s.logger.Warn("feed: skip malformed battle", "battleId", doc.ID, "error", err)
			continue
		}
		battles = append(battles, battle)
	}
	return battles, nil
}
