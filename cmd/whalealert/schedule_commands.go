package main

import (
	"fmt"
	"io"
	"time"

	"github.com/brojonat/whalealert/service/temporal"
	"github.com/urfave/cli/v2"
)

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Manage the Temporal poll schedule",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "temporal-host",
				Usage:   "Temporal server address",
				EnvVars: []string{"TEMPORAL_HOST"},
				Value:   "localhost:7233",
			},
			&cli.StringFlag{
				Name:    "temporal-namespace",
				Usage:   "Temporal namespace",
				EnvVars: []string{"TEMPORAL_NAMESPACE"},
				Value:   "default",
			},
			&cli.StringFlag{
				Name:    "task-queue",
				Usage:   "Task queue the poller worker listens on",
				EnvVars: []string{"TEMPORAL_TASK_QUEUE"},
				Value:   "whalealert",
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:  "describe",
				Usage: "Show the poll schedule",
				Action: withScheduleClient(func(c *cli.Context, tc *temporal.Client) error {
					info, err := tc.DescribePollSchedule(c.Context)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					if c.Bool("json") {
						return writeJSON(c.App.Writer, info)
					}
					printScheduleInfo(c.App.Writer, info)
					return nil
				}),
			},
			{
				Name:  "set",
				Usage: "Create or update the poll schedule",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:    "interval",
						Usage:   "Time between poll cycles",
						EnvVars: []string{"POLL_INTERVAL"},
						Value:   60 * time.Second,
					},
				},
				Before: func(c *cli.Context) error {
					if c.Duration("interval") <= 0 {
						return cli.Exit("interval must be positive", 1)
					}
					return nil
				},
				Action: withScheduleClient(func(c *cli.Context, tc *temporal.Client) error {
					interval := c.Duration("interval")
					if err := tc.UpsertPollSchedule(c.Context, interval); err != nil {
						return cli.Exit(err.Error(), 1)
					}
					fmt.Fprintf(c.App.Writer, "✓ Poll schedule set to every %s\n", interval)
					return nil
				}),
			},
			{
				Name:  "pause",
				Usage: "Pause polling",
				Flags: []cli.Flag{noteFlag("paused from CLI")},
				Action: withScheduleClient(func(c *cli.Context, tc *temporal.Client) error {
					if err := tc.PausePollSchedule(c.Context, c.String("note")); err != nil {
						return cli.Exit(err.Error(), 1)
					}
					fmt.Fprintf(c.App.Writer, "✓ Poll schedule paused\n")
					return nil
				}),
			},
			{
				Name:  "resume",
				Usage: "Resume polling",
				Flags: []cli.Flag{noteFlag("resumed from CLI")},
				Action: withScheduleClient(func(c *cli.Context, tc *temporal.Client) error {
					if err := tc.ResumePollSchedule(c.Context, c.String("note")); err != nil {
						return cli.Exit(err.Error(), 1)
					}
					fmt.Fprintf(c.App.Writer, "✓ Poll schedule resumed\n")
					return nil
				}),
			},
			{
				Name:  "trigger",
				Usage: "Run one poll cycle now",
				Action: withScheduleClient(func(c *cli.Context, tc *temporal.Client) error {
					id, err := tc.TriggerPoll(c.Context)
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					fmt.Fprintf(c.App.Writer, "✓ Poll cycle started\n")
					fmt.Fprintf(c.App.Writer, "  Workflow ID: %s\n", id)
					return nil
				}),
			},
			{
				Name:  "delete",
				Usage: "Delete the poll schedule",
				Action: withScheduleClient(func(c *cli.Context, tc *temporal.Client) error {
					if err := tc.DeletePollSchedule(c.Context); err != nil {
						return cli.Exit(err.Error(), 1)
					}
					fmt.Fprintf(c.App.Writer, "✓ Poll schedule deleted\n")
					return nil
				}),
			},
		},
	}
}

func noteFlag(value string) cli.Flag {
	return &cli.StringFlag{
		Name:  "note",
		Usage: "Note recorded on the schedule",
		Value: value,
	}
}

// withScheduleClient connects to Temporal with the schedule flags before
// running fn.
func withScheduleClient(fn func(*cli.Context, *temporal.Client) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		tc, err := temporal.NewClient(
			c.String("temporal-host"),
			c.String("temporal-namespace"),
			c.String("task-queue"),
			cliLogger(c),
		)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}
		defer tc.Close()
		return fn(c, tc)
	}
}

func printScheduleInfo(w io.Writer, info *temporal.ScheduleInfo) {
	state := "active"
	if info.Paused {
		state = "paused"
	}
	fmt.Fprintf(w, "✓ Schedule: %s (%s)\n", temporal.ScheduleID, state)
	fmt.Fprintf(w, "  Interval: %s\n", info.Interval)
	if info.Note != "" {
		fmt.Fprintf(w, "  Note: %s\n", info.Note)
	}
	fmt.Fprintf(w, "  Recent runs: %d\n", info.RecentRuns)
	for _, next := range info.NextRuns {
		fmt.Fprintf(w, "  Next run: %s\n", next.Local().Format(time.RFC3339))
	}
}
