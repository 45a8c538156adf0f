package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// WorkflowName is the registered name of PollWhalesWorkflow.
const WorkflowName = "PollWhalesWorkflow"

// PollWhalesWorkflow runs one poll cycle. It is started by the poll schedule
// every poll interval; overlapping runs are skipped by the schedule.
func PollWhalesWorkflow(ctx workflow.Context, input PollWhalesInput) (*PollWhalesResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("PollWhalesWorkflow started", "trigger", input.Trigger)

	result := &PollWhalesResult{}

	// The cycle retries upstream calls itself and must not fetch twice.
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporalsdk.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	var cycle *PollCycleResult
	if err := workflow.ExecuteActivity(ctx, a.PollCycle).Get(ctx, &cycle); err != nil {
		errMsg := fmt.Sprintf("poll cycle failed: %v", err)
		result.Error = &errMsg
		result.CompletedAt = workflow.Now(ctx)
		return result, fmt.Errorf("poll cycle failed: %w", err)
	}

	result.StartTime = cycle.StartTime
	result.CompletedAt = cycle.CompletedAt

	logger.Info("PollWhalesWorkflow completed", "start_time", result.StartTime)
	return result, nil
}
