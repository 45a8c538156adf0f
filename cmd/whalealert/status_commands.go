package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/whalealert/client"
	"github.com/brojonat/whalealert/service/status"
	"github.com/urfave/cli/v2"
)

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show poller call health",
		Description: `Reads the status report from the read API, or from a local
status file with --file.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "file",
				Usage: "Read a local status file instead of the read API",
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "Poll interval used to judge staleness of a local status file",
				EnvVars: []string{"POLL_INTERVAL"},
				Value:   60 * time.Second,
			},
		},
		Action: func(c *cli.Context) error {
			var (
				s   *client.Status
				err error
			)
			if path := c.String("file"); path != "" {
				s, err = loadStatusFile(c, path, c.Duration("poll-interval"))
			} else {
				s, err = client.NewClient(c.String("server-url"), nil, cliLogger(c)).Status(c.Context)
			}
			if errors.Is(err, client.ErrNoStatus) || errors.Is(err, status.ErrNoStatus) {
				return cli.Exit("no status recorded yet", 1)
			}
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return writeJSON(c.App.Writer, s)
			}
			printStatus(c, s)
			return nil
		},
	}
}

func loadStatusFile(c *cli.Context, path string, pollInterval time.Duration) (*client.Status, error) {
	state, err := status.NewFileStore(path).Load(c.Context)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, status.ErrNoStatus
	}
	report, err := status.BuildReport(*state, pollInterval, time.Now())
	if err != nil {
		return nil, err
	}
	return &client.Status{
		LastCallMinutes: report.LastCallMinutes,
		Health:          report.Health,
		Status:          report.Status,
		AllTime:         state.AllTime,
		Session:         state.Session,
		LastGood:        state.LastGood,
		LastFailed:      state.LastFailed,
	}, nil
}

func printStatus(c *cli.Context, s *client.Status) {
	out := c.App.Writer

	mark := "✓"
	if s.Status != status.StatusOK {
		mark = "✗"
	}
	fmt.Fprintf(out, "%s Status: %s\n", mark, s.Status)
	fmt.Fprintf(out, "  Health:            %.1f%%\n", s.Health)
	if s.LastCallMinutes >= 0 {
		fmt.Fprintf(out, "  Last good call:    %d min ago\n", s.LastCallMinutes)
	} else {
		fmt.Fprintf(out, "  Last good call:    never\n")
	}
	fmt.Fprintf(out, "  All time:          %d ok / %d failed (%.2f%%)\n",
		s.AllTime.SuccessfulCalls, s.AllTime.FailedCalls, s.AllTime.SuccessRate)
	fmt.Fprintf(out, "  Current session:   %d ok / %d failed (%.2f%%)\n",
		s.Session.SuccessfulCalls, s.Session.FailedCalls, s.Session.SuccessRate)
	if s.LastFailed != nil {
		fmt.Fprintf(out, "  Last failure:      %s code %d: %s\n",
			s.LastFailed.Timestamp.Local().Format(time.RFC3339), s.LastFailed.Code, s.LastFailed.Message)
	}
}
