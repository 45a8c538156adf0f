package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/brojonat/whalealert/service/whale"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleTransaction(blockchain, symbol string, ts int64) whale.Transaction {
	return whale.Transaction{
		Blockchain: blockchain,
		Symbol:     symbol,
		ID:         fmt.Sprintf("%s-%d", blockchain, ts),
		Type:       "transfer",
		Hash:       fmt.Sprintf("hash-%d", ts),
		From: whale.Party{
			Address:   "from-addr",
			Owner:     "binance",
			OwnerType: "exchange",
		},
		To: whale.Party{
			Address:   "to-addr",
			OwnerType: whale.OwnerTypeUnknown,
		},
		Timestamp:        ts,
		Amount:           1234.5,
		AmountUSD:        2500000,
		TransactionCount: 1,
	}
}

// failingDB fails inserts after a number of successes.
type failingDB struct {
	*MemoryDB
	okInserts int
	inserts   int
}

func (f *failingDB) InsertRow(ctx context.Context, partition string, row Row) error {
	f.inserts++
	if f.inserts > f.okInserts {
		return errors.New("disk full")
	}
	return f.MemoryDB.InsertRow(ctx, partition, row)
}

func TestWriteTransactions(t *testing.T) {
	ctx := context.Background()

	t.Run("empty batch touches nothing", func(t *testing.T) {
		mem := NewMemoryDB()
		store := NewStore(mem, WithLogger(testLogger()))

		err := store.WriteTransactions(ctx, nil)
		assert.ErrorIs(t, err, ErrEmptyBatch)

		names, err := mem.ListPartitions(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("creates partitions lazily with the fixed schema", func(t *testing.T) {
		mem := NewMemoryDB()
		store := NewStore(mem, WithLogger(testLogger()))

		err := store.WriteTransactions(ctx, []whale.Transaction{
			sampleTransaction("bitcoin", "btc", 100),
			sampleTransaction("ethereum", "eth", 101),
			sampleTransaction("bitcoin", "BTC", 102),
		})
		require.NoError(t, err)

		names, err := store.PartitionNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"bitcoin", "ethereum"}, names)

		cols, err := mem.Columns(ctx, "bitcoin")
		require.NoError(t, err)
		assert.Equal(t, Schema, cols)
		assert.Len(t, cols, 15)

		rows, err := store.RowsSince(ctx, "bitcoin", 0, 1000)
		require.NoError(t, err)
		require.Len(t, rows, 2)
		for _, r := range rows {
			assert.Equal(t, "BTC", r.Symbol)
			assert.Equal(t, "binance", r.FromOwner)
			assert.Equal(t, "", r.ToOwner)
			assert.Equal(t, whale.OwnerTypeUnknown, r.ToOwnerType)
		}
	})

	t.Run("unknown owner is blanked before storage", func(t *testing.T) {
		store := NewStore(NewMemoryDB(), WithLogger(testLogger()))
		txn := sampleTransaction("tron", "usdt", 100)
		txn.To.Owner = "leaked"

		require.NoError(t, store.WriteTransactions(ctx, []whale.Transaction{txn}))

		written := store.GetLastWritten()
		require.Len(t, written, 1)
		assert.Equal(t, "", written[0].ToOwner)
	})

	t.Run("invalid record aborts but keeps earlier rows", func(t *testing.T) {
		store := NewStore(NewMemoryDB(), WithLogger(testLogger()))
		bad := sampleTransaction("bitcoin", "btc", 101)
		bad.Hash = ""

		err := store.WriteTransactions(ctx, []whale.Transaction{
			sampleTransaction("bitcoin", "btc", 100),
			bad,
			sampleTransaction("bitcoin", "btc", 102),
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidRecord)

		rows, err := store.RowsSince(ctx, "bitcoin", 0, 1000)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int64(100), rows[0].Timestamp)
	})

	t.Run("known owner type requires an owner", func(t *testing.T) {
		store := NewStore(NewMemoryDB(), WithLogger(testLogger()))
		bad := sampleTransaction("bitcoin", "btc", 100)
		bad.From.Owner = ""

		err := store.WriteTransactions(ctx, []whale.Transaction{bad})
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})

	t.Run("insert failure keeps earlier rows", func(t *testing.T) {
		fdb := &failingDB{MemoryDB: NewMemoryDB(), okInserts: 1}
		store := NewStore(fdb, WithLogger(testLogger()))

		err := store.WriteTransactions(ctx, []whale.Transaction{
			sampleTransaction("bitcoin", "btc", 100),
			sampleTransaction("bitcoin", "btc", 101),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")

		rows, err := store.RowsSince(ctx, "bitcoin", 0, 1000)
		require.NoError(t, err)
		assert.Len(t, rows, 1)
		assert.Len(t, store.GetLastWritten(), 1)
	})
}

func TestGetLastWritten(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryDB(), WithLogger(testLogger()), WithLastWrittenCapacity(3))

	var batch []whale.Transaction
	for ts := int64(1); ts <= 5; ts++ {
		batch = append(batch, sampleTransaction("bitcoin", "btc", ts))
	}
	require.NoError(t, store.WriteTransactions(ctx, batch))

	written := store.GetLastWritten()
	require.Len(t, written, 3, "buffer keeps only the newest rows")
	assert.Equal(t, int64(3), written[0].Timestamp)
	assert.Equal(t, int64(5), written[2].Timestamp)

	assert.Empty(t, store.GetLastWritten(), "draining clears the buffer")
}

func TestGetLastTimeEntry(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryDB(), WithLogger(testLogger()))

	row, err := store.GetLastTimeEntry(ctx, "bitcoin")
	require.NoError(t, err)
	assert.Nil(t, row, "absent partition has no last entry")

	require.NoError(t, store.WriteTransactions(ctx, []whale.Transaction{
		sampleTransaction("bitcoin", "btc", 300),
		sampleTransaction("bitcoin", "btc", 100),
		sampleTransaction("bitcoin", "btc", 200),
	}))

	row, err = store.GetLastTimeEntry(ctx, "bitcoin")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(300), row.Timestamp)
}

// scanOnlyDB hides LastRow so the store falls back to a range scan.
type scanOnlyDB struct {
	Database
}

func TestGetLastTimeEntry_RangeFallback(t *testing.T) {
	ctx := context.Background()
	store := NewStore(scanOnlyDB{NewMemoryDB()}, WithLogger(testLogger()))

	require.NoError(t, store.WriteTransactions(ctx, []whale.Transaction{
		sampleTransaction("bitcoin", "btc", 100),
		sampleTransaction("bitcoin", "btc", 250),
	}))

	row, err := store.GetLastTimeEntry(ctx, "bitcoin")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(250), row.Timestamp)
}

func TestRowsSince_Bounds(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryDB(), WithLogger(testLogger()))
	require.NoError(t, store.WriteTransactions(ctx, []whale.Transaction{
		sampleTransaction("bitcoin", "btc", 100),
		sampleTransaction("bitcoin", "btc", 200),
		sampleTransaction("bitcoin", "btc", 300),
	}))

	rows, err := store.RowsSince(ctx, "bitcoin", 100, 300)
	require.NoError(t, err)
	require.Len(t, rows, 2, "lower bound is exclusive, upper bound inclusive")
	assert.Equal(t, int64(200), rows[0].Timestamp)
	assert.Equal(t, int64(300), rows[1].Timestamp)

	_, err = store.RowsSince(ctx, "ethereum", 0, 300)
	assert.ErrorIs(t, err, ErrNoPartition)
}

func TestMemoryDB_SelectRange(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryDB()
	require.NoError(t, mem.CreatePartition(ctx, "bitcoin", Schema))
	require.NoError(t, mem.CreatePartition(ctx, "bitcoin", Schema), "creating twice is a no-op")

	require.NoError(t, mem.InsertRow(ctx, "bitcoin", Row{Timestamp: 10, TransactionCount: 1}))
	require.NoError(t, mem.InsertRow(ctx, "bitcoin", Row{Timestamp: 20, TransactionCount: 5}))

	rows, err := mem.SelectRange(ctx, "bitcoin", "transaction_count", 2, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(20), rows[0].Timestamp)

	_, err = mem.SelectRange(ctx, "bitcoin", "hash", 0, 1)
	assert.ErrorIs(t, err, ErrUnknownColumn)

	err = mem.InsertRow(ctx, "ethereum", Row{})
	assert.ErrorIs(t, err, ErrNoPartition)
}
