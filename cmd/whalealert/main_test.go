package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brojonat/whalealert/service/config"
	"github.com/brojonat/whalealert/service/db"
	"github.com/brojonat/whalealert/service/query"
	"github.com/brojonat/whalealert/service/server"
	"github.com/brojonat/whalealert/service/status"
	"github.com/brojonat/whalealert/service/whale"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// runApp runs the CLI with args and returns its stdout.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"whalealert"}, args...))
	return out.String(), err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readAPI(t *testing.T, statuses status.Persister, txns ...whale.Transaction) *httptest.Server {
	t.Helper()
	store := db.NewStore(db.NewMemoryDB(), db.WithLogger(discardLogger()))
	if len(txns) > 0 {
		require.NoError(t, store.WriteTransactions(context.Background(), txns))
	}
	engine := query.NewEngine(store, query.WithLogger(discardLogger()))
	if statuses == nil {
		statuses = status.NewMemoryStore()
	}
	srv := server.New(":0", &config.Config{PollInterval: time.Minute}, engine, statuses, nil, nil, discardLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func cliTxn(blockchain, symbol string, ts int64, usd float64) whale.Transaction {
	return whale.Transaction{
		Blockchain:       blockchain,
		Symbol:           symbol,
		ID:               "id-" + blockchain,
		Type:             "transfer",
		Hash:             "hash-" + blockchain,
		From:             whale.Party{Address: "addr-from", Owner: "binance", OwnerType: "exchange"},
		To:               whale.Party{Address: "addr-to", OwnerType: whale.OwnerTypeUnknown},
		Timestamp:        ts,
		Amount:           100,
		AmountUSD:        usd,
		TransactionCount: 1,
	}
}
