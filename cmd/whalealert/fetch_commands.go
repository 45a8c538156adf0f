package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/brojonat/whalealert/service/config"
	"github.com/brojonat/whalealert/service/db"
	"github.com/brojonat/whalealert/service/query"
	"github.com/brojonat/whalealert/service/whale"
	"github.com/urfave/cli/v2"
)

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "Make one upstream call and print the accepted transactions",
		Description: `Calls the upstream transactions endpoint once with the configured
API key (WHALE_API_KEY) and prints the result. Nothing is stored.`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "since",
				Usage: "How far back the fetch window starts (default: HISTORY_LIMIT)",
			},
			&cli.Int64Flag{
				Name:  "min-value",
				Usage: "Minimum USD value (default: MIN_VALUE_USD)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum transactions per call, 1-100 (default: FETCH_LIMIT)",
			},
			&cli.StringFlag{
				Name:  "cursor",
				Usage: "Pagination cursor from a previous call",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Colored output",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateFetch(); err != nil {
				return err
			}

			since := cfg.HistoryLimit
			if c.IsSet("since") {
				since = c.Duration("since")
			}
			params := whale.FetchParams{
				Start:    time.Now().Add(-since).Unix(),
				APIKey:   cfg.WhaleAPIKey,
				MinValue: cfg.MinValueUSD,
				Limit:    cfg.FetchLimit,
			}
			if c.IsSet("min-value") {
				params.MinValue = c.Int64("min-value")
			}
			if c.IsSet("limit") {
				params.Limit = c.Int("limit")
			}
			if cursor := c.String("cursor"); cursor != "" {
				params.Cursor = &cursor
			}

			fetcher := whale.NewClient(
				whale.WithBaseURL(strings.TrimRight(cfg.WhaleAPIURL, "/")),
				whale.WithRetries(cfg.FetchRetries),
				whale.WithTimeout(cfg.FetchTimeout),
				whale.WithLogger(cliLogger(c)),
			)

			res := fetcher.Fetch(c.Context, params)
			return printFetchResult(c, res, fetcher.LastCursor())
		},
	}
}

func printFetchResult(c *cli.Context, res whale.Result, cursor *string) error {
	out := c.App.Writer

	if c.Bool("json") {
		if err := writeJSON(out, map[string]interface{}{
			"status":       res.Status,
			"transactions": res.Transactions,
			"cursor":       cursor,
		}); err != nil {
			return err
		}
	} else if res.Success {
		rows := make([]db.Row, 0, len(res.Transactions))
		for _, txn := range res.Transactions {
			row, err := db.FlattenTransaction(txn)
			if err != nil {
				fmt.Fprintf(c.App.ErrWriter, "skipping transaction %s: %v\n", txn.ID, err)
				continue
			}
			rows = append(rows, row)
		}

		mode := query.ModeText
		if c.Bool("pretty") {
			mode = query.ModePretty
		}
		if text := query.NewRenderer(time.Local).Render(rows, mode).Text; text != "" {
			fmt.Fprintln(out, text)
		}
		fmt.Fprintf(out, "✓ %d transaction(s)\n", res.Status.TransactionCount)
		if cursor != nil {
			fmt.Fprintf(out, "  Cursor: %s\n", *cursor)
		}
	}

	if !res.Success {
		return cli.Exit(fmt.Sprintf("fetch failed (code %d): %s", res.Status.Code, res.Status.Message), 1)
	}
	return nil
}
