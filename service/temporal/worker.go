package temporal

import (
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// Temporal connection settings
	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string

	// Dependencies
	Cycler Cycler
	Logger *slog.Logger
}

// Worker wraps a Temporal worker and provides lifecycle management.
type Worker struct {
	client client.Client
	worker worker.Worker
	logger *slog.Logger
}

// NewWorker creates and configures a new Temporal worker.
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	logger := config.Logger.With("component", "temporal_worker")

	logger.Info("creating temporal worker",
		"host", config.TemporalHost,
		"namespace", config.TemporalNamespace,
		"task_queue", config.TaskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  config.TemporalHost,
		Namespace: config.TemporalNamespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}

	// One cycle at a time: the cycle owns the cursor state.
	w := worker.New(c, config.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     1,
		MaxConcurrentWorkflowTaskExecutionSize: 2,
	})
	register(w, NewActivities(config.Cycler, logger))
	logger.Info("registered workflow and activities", "workflow", WorkflowName)

	return &Worker{
		client: c,
		worker: w,
		logger: logger,
	}, nil
}

// registry is the part of worker.Worker used to register handlers.
type registry interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

func register(r registry, activities *Activities) {
	r.RegisterWorkflowWithOptions(PollWhalesWorkflow, workflow.RegisterOptions{Name: WorkflowName})
	r.RegisterActivityWithOptions(activities.PollCycle, activity.RegisterOptions{Name: "PollCycle"})
}

// Run processes workflows and activities until interruptCh is closed.
func (w *Worker) Run(interruptCh <-chan interface{}) error {
	w.logger.Info("starting temporal worker")
	if err := w.worker.Run(interruptCh); err != nil {
		w.logger.Error("worker stopped with error", "error", err)
		return fmt.Errorf("worker stopped with error: %w", err)
	}
	w.logger.Info("worker stopped gracefully")
	return nil
}

// Close closes the worker's Temporal connection.
func (w *Worker) Close() {
	w.client.Close()
	w.logger.Info("temporal worker stopped")
}
