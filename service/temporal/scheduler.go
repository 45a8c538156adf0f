package temporal

import (
	"context"
	"time"
)

// ScheduleID is the Temporal schedule that drives the poll loop. There is one
// per namespace.
const ScheduleID = "poll-whales"

// Scheduler manages the Temporal schedule that triggers PollWhalesWorkflow.
type Scheduler interface {
	// UpsertPollSchedule creates the schedule, or updates its interval if it exists.
	UpsertPollSchedule(ctx context.Context, interval time.Duration) error

	// DeletePollSchedule deletes the schedule. Polling stops.
	DeletePollSchedule(ctx context.Context) error
}
