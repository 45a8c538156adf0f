package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Cycler runs one fetch, store, track and publish cycle.
type Cycler interface {
	StartTime() int64
	RunOnce(ctx context.Context) error
}

// Activities holds the dependencies of the poll activities.
type Activities struct {
	cycler Cycler
	logger *slog.Logger
}

// NewActivities creates a new Activities instance.
func NewActivities(cycler Cycler, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		cycler: cycler,
		logger: logger,
	}
}

// PollCycle runs a single poll cycle. Upstream failures are recorded in the
// status by the cycle itself; only storage and status failures are returned.
func (a *Activities) PollCycle(ctx context.Context) (*PollCycleResult, error) {
	start := a.cycler.StartTime()
	a.logger.DebugContext(ctx, "running scheduled poll cycle", "start_time", start)

	if err := a.cycler.RunOnce(ctx); err != nil {
		a.logger.ErrorContext(ctx, "scheduled poll cycle failed", "error", err)
		return nil, fmt.Errorf("poll cycle failed: %w", err)
	}

	return &PollCycleResult{
		StartTime:   start,
		CompletedAt: time.Now(),
	}, nil
}
