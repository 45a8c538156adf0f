package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/whalealert/service/config"
	"github.com/brojonat/whalealert/service/temporal"
)

// runScheduled hands the poll loop to Temporal. The schedule starts
// PollWhalesWorkflow every poll interval and this process runs its worker.
func runScheduled(ctx context.Context, cfg *config.Config, cycler temporal.Cycler, logger *slog.Logger) error {
	tc, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
	if err != nil {
		return err
	}
	defer tc.Close()

	if err := ensureSchedule(ctx, tc, cfg.PollInterval, logger); err != nil {
		return err
	}

	w, err := temporal.NewWorker(temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Cycler:            cycler,
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	interruptCh := make(chan interface{})
	go func() {
		<-ctx.Done()
		close(interruptCh)
	}()
	return w.Run(interruptCh)
}

// ensureSchedule makes the poll schedule fire every interval.
func ensureSchedule(ctx context.Context, s temporal.Scheduler, interval time.Duration, logger *slog.Logger) error {
	if interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", interval)
	}
	if err := s.UpsertPollSchedule(ctx, interval); err != nil {
		return fmt.Errorf("failed to upsert poll schedule: %w", err)
	}
	logger.Info("poll schedule ready", "schedule_id", temporal.ScheduleID, "interval", interval)
	return nil
}
