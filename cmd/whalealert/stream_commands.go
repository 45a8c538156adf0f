package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/whalealert/client"
	natspkg "github.com/brojonat/whalealert/service/nats"
	"github.com/brojonat/whalealert/service/query"
	"github.com/urfave/cli/v2"
)

func streamCommand() *cli.Command {
	return &cli.Command{
		Name:      "stream",
		Usage:     "Stream newly stored whale transactions via SSE",
		ArgsUsage: "[blockchain]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Usage:   "jq filter over each event that must evaluate to true (can be specified multiple times)",
				Aliases: []string{"jq"},
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Colored output",
			},
		},
		Action: func(c *cli.Context) error {
			blockchain := c.Args().First()
			jsonOutput := c.Bool("json")

			codes, err := compileJQ(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !jsonOutput {
				if blockchain != "" {
					fmt.Fprintf(c.App.ErrWriter, "Connected to whale stream for blockchain: %s\n", blockchain)
				} else {
					fmt.Fprintf(c.App.ErrWriter, "Connected to whale stream for all blockchains\n")
				}
				fmt.Fprintf(c.App.ErrWriter, "Streaming transactions... (Ctrl+C to stop)\n\n")
			}

			renderer := query.NewRenderer(time.Local)
			cl := client.NewClient(c.String("server-url"), nil, cliLogger(c))

			err = cl.Stream(ctx, blockchain, func(e *natspkg.WhaleEvent) error {
				if len(codes) > 0 {
					v, err := toJQValue(e)
					if err != nil || !matchesAll(codes, v) {
						return nil
					}
				}
				if jsonOutput {
					data, err := json.Marshal(e)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, string(data))
					return nil
				}
				fmt.Fprintln(c.App.Writer, renderer.Line(e.Row(), c.Bool("pretty")))
				return nil
			})
			if err != nil && ctx.Err() == nil {
				return err
			}
			if ctx.Err() != nil && !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "\nDisconnected\n")
			}
			return nil
		},
	}
}
