package temporal

import "time"

// PollWhalesInput is the input of PollWhalesWorkflow.
type PollWhalesInput struct {
	// Trigger names what started the run ("schedule" or "manual").
	Trigger string `json:"trigger"`
}

// PollWhalesResult summarizes one scheduled poll cycle.
type PollWhalesResult struct {
	StartTime   int64     `json:"start_time"`
	CompletedAt time.Time `json:"completed_at"`
	Error       *string   `json:"error,omitempty"`
}

// PollCycleResult is returned by the PollCycle activity.
type PollCycleResult struct {
	// StartTime is the unix start of the fetch window the cycle used.
	StartTime   int64     `json:"start_time"`
	CompletedAt time.Time `json:"completed_at"`
}
