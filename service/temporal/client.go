package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
)

// Client is a production implementation of Scheduler that talks to Temporal.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// scheduleOptions builds the schedule definition for the given interval.
func (c *Client) scheduleOptions(interval time.Duration) client.ScheduleOptions {
	return client.ScheduleOptions{
		ID: ScheduleID,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{
				{Every: interval},
			},
		},
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
		Action: &client.ScheduleWorkflowAction{
			ID:        ScheduleID + "-run",
			Workflow:  WorkflowName,
			TaskQueue: c.taskQueue,
			Args:      []interface{}{PollWhalesInput{Trigger: "schedule"}},
		},
		Memo: map[string]interface{}{
			"poll_interval": interval.String(),
			"created_by":    "whalealert",
		},
	}
}

// UpsertPollSchedule creates or updates the poll schedule.
func (c *Client) UpsertPollSchedule(ctx context.Context, interval time.Duration) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, ScheduleID)
	if _, err := handle.Describe(ctx); err != nil {
		c.logger.Debug("schedule not found, creating new one",
			"schedule_id", ScheduleID,
			"error", err,
		)
		if _, err := c.client.ScheduleClient().Create(ctx, c.scheduleOptions(interval)); err != nil {
			c.logger.Error("failed to create schedule", "schedule_id", ScheduleID, "error", err)
			return fmt.Errorf("failed to create schedule %q: %w", ScheduleID, err)
		}
		c.logger.Info("poll schedule created", "schedule_id", ScheduleID, "interval", interval)
		return nil
	}

	err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			input.Description.Schedule.Spec.Intervals = []client.ScheduleIntervalSpec{
				{Every: interval},
			}
			return &client.ScheduleUpdate{
				Schedule: &input.Description.Schedule,
			}, nil
		},
	})
	if err != nil {
		c.logger.Error("failed to update schedule", "schedule_id", ScheduleID, "error", err)
		return fmt.Errorf("failed to update schedule %q: %w", ScheduleID, err)
	}

	c.logger.Info("poll schedule updated", "schedule_id", ScheduleID, "interval", interval)
	return nil
}

// DeletePollSchedule deletes the poll schedule.
func (c *Client) DeletePollSchedule(ctx context.Context) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, ScheduleID)
	if err := handle.Delete(ctx); err != nil {
		c.logger.Error("failed to delete schedule", "schedule_id", ScheduleID, "error", err)
		return fmt.Errorf("failed to delete schedule %q: %w", ScheduleID, err)
	}
	c.logger.Info("poll schedule deleted", "schedule_id", ScheduleID)
	return nil
}

// PausePollSchedule pauses the poll schedule with a note.
func (c *Client) PausePollSchedule(ctx context.Context, note string) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, ScheduleID)
	if err := handle.Pause(ctx, client.SchedulePauseOptions{Note: note}); err != nil {
		return fmt.Errorf("failed to pause schedule %q: %w", ScheduleID, err)
	}
	c.logger.Info("poll schedule paused", "schedule_id", ScheduleID)
	return nil
}

// ResumePollSchedule unpauses the poll schedule.
func (c *Client) ResumePollSchedule(ctx context.Context, note string) error {
	handle := c.client.ScheduleClient().GetHandle(ctx, ScheduleID)
	if err := handle.Unpause(ctx, client.ScheduleUnpauseOptions{Note: note}); err != nil {
		return fmt.Errorf("failed to resume schedule %q: %w", ScheduleID, err)
	}
	c.logger.Info("poll schedule resumed", "schedule_id", ScheduleID)
	return nil
}

// ScheduleInfo is a summary of the poll schedule.
type ScheduleInfo struct {
	Interval   time.Duration `json:"interval"`
	Paused     bool          `json:"paused"`
	Note       string        `json:"note,omitempty"`
	NextRuns   []time.Time   `json:"next_runs,omitempty"`
	RecentRuns int           `json:"recent_runs"`
}

// DescribePollSchedule returns the state of the poll schedule.
func (c *Client) DescribePollSchedule(ctx context.Context) (*ScheduleInfo, error) {
	handle := c.client.ScheduleClient().GetHandle(ctx, ScheduleID)
	desc, err := handle.Describe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to describe schedule %q: %w", ScheduleID, err)
	}

	info := &ScheduleInfo{
		NextRuns:   desc.Info.NextActionTimes,
		RecentRuns: len(desc.Info.RecentActions),
	}
	if desc.Schedule.Spec != nil && len(desc.Schedule.Spec.Intervals) > 0 {
		info.Interval = desc.Schedule.Spec.Intervals[0].Every
	}
	if desc.Schedule.State != nil {
		info.Paused = desc.Schedule.State.Paused
		info.Note = desc.Schedule.State.Note
	}
	return info, nil
}

// TriggerPoll starts one PollWhalesWorkflow run immediately.
func (c *Client) TriggerPoll(ctx context.Context) (string, error) {
	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("%s-manual-%d", ScheduleID, time.Now().Unix()),
		TaskQueue: c.taskQueue,
	}, WorkflowName, PollWhalesInput{Trigger: "manual"})
	if err != nil {
		return "", fmt.Errorf("failed to start workflow: %w", err)
	}
	return run.GetID(), nil
}

// SDKClient returns the underlying Temporal SDK client.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
