// Package effects runs best-effort side effects after a primary state change
// has committed. Each effect is isolated: one failing never cancels or rolls
// back its siblings.
package effects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Effect is one named side-effect task.
type Effect struct {
	Name string
	Run  func(ctx context.Context) error
}

// Run executes every effect in order, logging and collecting failures. The
// returned error joins all failures and is nil when everything succeeded.
func Run(ctx context.Context, logger *slog.Logger, effs ...Effect) error {
	if logger == nil {
		logger = slog.Default()
	}

	var errs []error
	for _, e := range effs {
		if e.Run == nil {
			continue
		}
		if err := e.Run(ctx); err != nil {
			logger.Error("side effect failed", "effect", e.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
		}
	}
	return errors.Join(errs...)
}
