// Package presence keeps users' lastActiveAt stamps fresh without turning
// every request into a store write.
package presence

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vidclash/backend/internal/store"
)

// ErrAlreadyStarted is returned when Start is called on a running tracker.
var ErrAlreadyStarted = errors.New("presence tracker already started")

// Tracker batches activity signals and stamps each user's lastActiveAt at
// most once per interval. A process owns at most one running tracker; Stop is
// idempotent and waits for the worker to exit.
type Tracker struct {
	store    store.Store
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	queue chan string

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	lastSeen map[string]time.Time
}

// NewTracker constructs a tracker that writes at most one stamp per user per
// interval.
func NewTracker(st store.Store, interval time.Duration, logger *slog.Logger) *Tracker {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:    st,
		interval: interval,
		logger:   logger,
		now:      time.Now,
		queue:    make(chan string, 256),
		lastSeen: make(map[string]time.Time),
	}
}

// Start launches the stamping worker.
func (t *Tracker) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.cancel = cancel
	t.done = done

	go t.loop(runCtx, done)
	return nil
}

// Touch signals activity for userID. Never blocks; signals are dropped when
// the queue is full or the tracker is stopped.
func (t *Tracker) Touch(userID string) {
	if userID == "" {
		return
	}
	select {
	case t.queue <- userID:
	default:
	}
}

func (t *Tracker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		var userID string
		select {
		case <-ctx.Done():
			return
		case userID = <-t.queue:
		}

		now := t.now().UTC()
		t.mu.Lock()
		last, seen := t.lastSeen[userID]
		throttled := seen && now.Sub(last) < t.interval
		if !throttled {
			t.lastSeen[userID] = now
		}
		t.mu.Unlock()
		if throttled {
			continue
		}

		if err := t.store.Update(ctx, store.CollectionUsers, userID, map[string]any{"lastActiveAt": now}); err != nil {
			if ctx.Err() == nil {
				t.logger.Debug("presence stamp failed", "userId", userID, "error", err)
			}
		}
	}
}

// Stop cancels the worker and waits for it to exit. Idempotent.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
