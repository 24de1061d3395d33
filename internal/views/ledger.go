// Package views records at most one playback observation per (video, viewer)
// pair and keeps the video's denormalized view counter in step.
package views

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vidclash/backend/internal/models"
	"github.com/vidclash/backend/internal/store"
)

// Ledger deduplicates views against the backing store. The View document id
// is the deterministic (video, user) composite, so a duplicate create
// collides at the store instead of racing through a check-then-act window.
type Ledger struct {
	store       store.Store
	minDuration time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// NewLedger constructs the view ledger. minDuration is the playback time a
// view must reach before it counts.
func NewLedger(st store.Store, minDuration time.Duration, logger *slog.Logger) *Ledger {
	if minDuration <= 0 {
		minDuration = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: st, minDuration: minDuration, logger: logger, now: time.Now}
}

// WithNowFunc overrides the clock. Useful for tests.
func (l *Ledger) WithNowFunc(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// ViewID returns the deterministic document id for a (video, viewer) pair.
func ViewID(videoID, userID string) string {
	return videoID + ":" + userID
}

// RecordView registers a playback observation. It returns true only the first
// time a qualifying view is seen for the pair; short playbacks and repeat
// views return false without writing.
func (l *Ledger) RecordView(ctx context.Context, videoID, userID, source string, duration time.Duration) (bool, error) {
	if videoID == "" || userID == "" {
		return false, errors.New("record view: video and user ids are required")
	}

	id := ViewID(videoID, userID)

	// Fast path: the pair has already been counted.
	if _, err := l.store.Get(ctx, store.CollectionViews, id); err == nil {
		return false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("check existing view: %w", err)
	}

	if duration < l.minDuration {
		return false, nil
	}

	view := models.View{
		ID:           id,
		VideoID:      videoID,
		UserID:       userID,
		Source:       source,
		ViewDuration: duration.Milliseconds(),
		ViewedAt:     l.now().UTC(),
	}
	data, err := store.Encode(view)
	if err != nil {
		return false, fmt.Errorf("record view: %w", err)
	}

	if _, err := l.store.Create(ctx, store.CollectionViews, id, data); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost the race to a concurrent viewer; their view counted.
			return false, nil
		}
		return false, fmt.Errorf("record view: %w", err)
	}

	if err := l.store.Increment(ctx, store.CollectionVideos, videoID, map[string]int64{"views": 1}); err != nil {
		// The view record is durable; counter drift is reconciled by an
		// offline recount, not rolled back.
		l.logger.Warn("increment video views", "videoId", videoID, "error", err)
	}
	return true, nil
}
