package handlers

import (
	"context"
	"time"

	"github.com/vidclash/backend/internal/models"
)

// BattleService captures the lifecycle operations required by the battle
// handlers.
type BattleService interface {
	Challenge(ctx context.Context, challengerID, challengerVideoID, opponentID, opponentVideoID, category string) (models.Battle, error)
	Accept(ctx context.Context, battleID, userID string) (models.Battle, error)
	Decline(ctx context.Context, battleID, userID string) (models.Battle, error)
	CastVote(ctx context.Context, battleID, voterID string, player int) (models.Battle, error)
	FeedNew(ctx context.Context) ([]models.Battle, error)
	FeedTrending(ctx context.Context) ([]models.Battle, error)
	FeedByCategory(ctx context.Context, category string) ([]models.Battle, error)
	FeedGameBattles(ctx context.Context) ([]models.Battle, error)
}

// ViewRecorder registers deduplicated playback observations.
type ViewRecorder interface {
	RecordView(ctx context.Context, videoID, userID, source string, duration time.Duration) (bool, error)
}

// NotificationService captures the notification operations exposed over HTTP.
type NotificationService interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id string) error
}

// FollowService manages follow edges.
type FollowService interface {
	Follow(ctx context.Context, followerID, followeeID string) (models.Follow, error)
	Unfollow(ctx context.Context, followerID, followeeID string) error
}
