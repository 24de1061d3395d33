// Package social manages follow edges between users.
package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vidclash/backend/internal/effects"
	"github.com/vidclash/backend/internal/models"
	"github.com/vidclash/backend/internal/store"
)

// ErrAlreadyFollowing is returned when the follow edge already exists.
var ErrAlreadyFollowing = errors.New("already following")

// Notifier sends a user-facing notification for a domain event.
type Notifier interface {
	Notify(ctx context.Context, recipientID, senderID, ntype string, data map[string]any) (string, error)
}

// Service persists follow edges and notifies followees.
type Service struct {
	store    store.Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the follow service.
func NewService(st store.Store, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, notifier: notifier, logger: logger, now: time.Now}
}

// FollowID returns the deterministic document id for a follow edge, making
// duplicate follows collide at the store.
func FollowID(followerID, followeeID string) string {
	return followerID + ":" + followeeID
}

// Follow creates the edge and notifies the followee.
func (s *Service) Follow(ctx context.Context, followerID, followeeID string) (models.Follow, error) {
	switch {
	case followerID == "" || followeeID == "":
		return models.Follow{}, errors.New("follow: both user ids are required")
	case followerID == followeeID:
		return models.Follow{}, errors.New("follow: users must differ")
	}

	follow := models.Follow{
		ID:         FollowID(followerID, followeeID),
		FollowerID: followerID,
		FolloweeID: followeeID,
		CreatedAt:  s.now().UTC(),
	}
	data, err := store.Encode(follow)
	if err != nil {
		return models.Follow{}, fmt.Errorf("follow: %w", err)
	}
	if _, err := s.store.Create(ctx, store.CollectionFollows, follow.ID, data); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return follow, ErrAlreadyFollowing
		}
		return models.Follow{}, fmt.Errorf("follow: %w", err)
	}

	_ = effects.Run(ctx, s.logger, effects.Effect{
		Name: "notify follow",
		Run: func(ctx context.Context) error {
			_, err := s.notifier.Notify(ctx, followeeID, followerID, models.NotificationFollowRequest, nil)
			return err
		},
	})

	return follow, nil
}

// Unfollow removes the edge. Removing an absent edge returns ErrNotFound.
func (s *Service) Unfollow(ctx context.Context, followerID, followeeID string) error {
	if err := s.store.Delete(ctx, store.CollectionFollows, FollowID(followerID, followeeID)); err != nil {
		return fmt.Errorf("unfollow: %w", err)
	}
	return nil
}
