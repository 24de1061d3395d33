package battles

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrSweeperRunning is returned when Start is called on a running sweeper.
var ErrSweeperRunning = errors.New("sweeper already running")

// Sweeper periodically forces time-based battle completion. A process owns at
// most one running sweeper: Start reports an error when already running, and
// Stop is safe to call any number of times. Stop waits for an in-flight pass
// to finish.
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweeper constructs a sweeper invoking service.Sweep every interval.
func NewSweeper(service *Service, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{service: service, interval: interval, logger: logger}
}

// Start launches the sweep loop. The loop also stops when ctx is canceled.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrSweeperRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.loop(runCtx, done)
	return nil
}

func (s *Sweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		swept, err := s.service.Sweep(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("expiration sweep failed", "error", err)
			}
			continue
		}
		if swept > 0 {
			s.logger.Info("expiration sweep completed battles", "count", swept)
		}
	}
}

// Stop cancels the loop and waits for it to exit. Idempotent.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
