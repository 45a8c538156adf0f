package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/brojonat/whalealert/client"
	"github.com/brojonat/whalealert/service/db"
	"github.com/brojonat/whalealert/service/query"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:  "query",
		Usage: "Query stored whale transactions through the read API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "blockchain",
				Aliases: []string{"b"},
				Value:   query.Wildcard,
				Usage:   "Comma separated blockchains, or * for all",
			},
			&cli.StringFlag{
				Name:    "symbol",
				Aliases: []string{"s"},
				Value:   query.Wildcard,
				Usage:   "Comma separated symbols, or * for all",
			},
			&cli.Int64Flag{
				Name:  "from",
				Usage: "Only transactions after this unix timestamp",
			},
			&cli.DurationFlag{
				Name:  "since",
				Usage: "Only transactions newer than this (overrides --from)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   query.Unlimited,
				Usage:   "Keep only the newest N transactions (-1 for all)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   string(query.ModeText),
				Usage:   "Output format: text, pretty, records or table",
			},
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Usage:   "jq filter over each row that must evaluate to true (can be specified multiple times, all must match)",
				Aliases: []string{"jq"},
			},
		},
		Action: func(c *cli.Context) error {
			mode, ok := query.ParseMode(c.String("format"))
			if !ok {
				return fmt.Errorf("format must be one of text, pretty, records, table")
			}

			codes, err := compileJQ(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			f := query.Filter{
				Blockchains: splitList(c.String("blockchain")),
				Symbols:     splitList(c.String("symbol")),
				FromTime:    c.Int64("from"),
				MaxResults:  c.Int("limit"),
				Mode:        mode,
			}
			if c.IsSet("since") {
				f.FromTime = time.Now().Add(-c.Duration("since")).Unix()
			}

			cl := client.NewClient(c.String("server-url"), nil, cliLogger(c))

			// jq filters need the raw rows; the rows are rendered locally afterwards.
			var res query.Result
			if len(codes) > 0 {
				raw := f
				raw.Mode = query.ModeTable
				raw.MaxResults = query.Unlimited
				tableRes, err := cl.Transactions(c.Context, raw)
				if err != nil {
					return err
				}
				rows, err := filterRows(tableRes.Rows, codes)
				if err != nil {
					return err
				}
				if f.MaxResults >= 0 && len(rows) > f.MaxResults {
					rows = rows[len(rows)-f.MaxResults:]
				}
				res = query.NewRenderer(time.Local).Render(rows, mode)
			} else {
				res, err = cl.Transactions(c.Context, f)
				if err != nil {
					return err
				}
			}

			return printQueryResult(c, res)
		},
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{query.Wildcard}
	}
	return out
}

func filterRows(rows []db.Row, codes []*gojq.Code) ([]db.Row, error) {
	kept := make([]db.Row, 0, len(rows))
	for _, row := range rows {
		v, err := toJQValue(row)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare row for jq: %w", err)
		}
		if matchesAll(codes, v) {
			kept = append(kept, row)
		}
	}
	return kept, nil
}

func printQueryResult(c *cli.Context, res query.Result) error {
	out := c.App.Writer
	if c.Bool("json") {
		return writeJSON(out, res)
	}

	switch res.Mode {
	case query.ModeRecords:
		for _, rec := range res.Records {
			fmt.Fprintf(out, "%s  %s\n", rec.Timestamp, rec.Text)
		}
	case query.ModeTable:
		for _, row := range res.Rows {
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%.2f\t%.2f\t%s -> %s\n",
				time.Unix(row.Timestamp, 0).Format(query.TimeLayout),
				row.Blockchain, row.Symbol, row.Type,
				row.Amount, row.AmountUSD,
				ownerOrAddress(row.FromOwner, row.FromAddress),
				ownerOrAddress(row.ToOwner, row.ToAddress),
			)
		}
	default:
		if res.Text != "" {
			fmt.Fprintln(out, res.Text)
		}
	}
	return nil
}

func ownerOrAddress(owner, address string) string {
	if owner != "" {
		return owner
	}
	return address
}
