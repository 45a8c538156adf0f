package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"github.com/brojonat/whalealert/service/metrics"
	"github.com/brojonat/whalealert/service/whale"
)

var (
	// ErrEmptyBatch is returned when WriteTransactions is called with no records.
	ErrEmptyBatch = errors.New("empty transaction batch")

	// ErrInvalidRecord is returned when a record lacks a required field.
	ErrInvalidRecord = errors.New("invalid transaction record")
)

// DefaultLastWrittenCapacity bounds the buffer of recently written rows.
const DefaultLastWrittenCapacity = 1000

// Store appends validated transactions into per-blockchain partitions.
//
// A batch is not atomic: when a record fails validation or insertion the
// rows written before it stay committed, and a concurrent reader may see a
// partially written batch.
type Store struct {
	db      Database
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu          sync.Mutex
	known       map[string]bool
	lastWritten *ring
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithMetrics enables metrics recording.
func WithMetrics(m *metrics.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithLastWrittenCapacity sets the size of the recently written buffer.
func WithLastWrittenCapacity(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.lastWritten = newRing(n)
		}
	}
}

// NewStore creates a Store over the given database.
func NewStore(database Database, opts ...StoreOption) *Store {
	s := &Store{
		db:          database,
		logger:      slog.New(slog.NewJSONHandler(io.Discard, nil)),
		known:       make(map[string]bool),
		lastWritten: newRing(DefaultLastWrittenCapacity),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WriteTransactions flattens and appends each transaction to its blockchain's
// partition, creating the partition on first use.
func (s *Store) WriteTransactions(ctx context.Context, txns []whale.Transaction) error {
	if len(txns) == 0 {
		s.recordFailure("empty_batch")
		return ErrEmptyBatch
	}

	written := make(map[string]int)
	defer func() {
		if s.metrics == nil {
			return
		}
		for blockchain, n := range written {
			s.metrics.RecordTransactionsWritten(blockchain, n)
		}
	}()

	for i, txn := range txns {
		row, err := FlattenTransaction(txn)
		if err != nil {
			s.recordFailure("invalid_record")
			s.logger.ErrorContext(ctx, "rejected transaction record",
				"index", i,
				"id", txn.ID,
				"error", err,
			)
			return fmt.Errorf("record %d: %w", i, err)
		}

		if err := s.ensurePartition(ctx, row.Blockchain); err != nil {
			s.recordFailure("create_partition")
			return err
		}
		if err := s.db.InsertRow(ctx, row.Blockchain, row); err != nil {
			s.recordFailure("insert")
			return fmt.Errorf("failed to insert record %d: %w", i, err)
		}

		s.mu.Lock()
		s.lastWritten.push(row)
		s.mu.Unlock()
		written[row.Blockchain]++
	}

	s.logger.DebugContext(ctx, "wrote transaction batch", "count", len(txns))
	return nil
}

func (s *Store) ensurePartition(ctx context.Context, name string) error {
	s.mu.Lock()
	ok := s.known[name]
	s.mu.Unlock()
	if ok {
		return nil
	}
	if err := s.db.CreatePartition(ctx, name, Schema); err != nil {
		return fmt.Errorf("failed to create partition %s: %w", name, err)
	}
	s.mu.Lock()
	s.known[name] = true
	s.mu.Unlock()
	s.logger.InfoContext(ctx, "partition ready", "partition", name)
	return nil
}

func (s *Store) recordFailure(reason string) {
	if s.metrics != nil {
		s.metrics.RecordWriteFailure(reason)
	}
}

// GetLastWritten returns the rows written since the previous call, oldest
// first, and clears the buffer.
func (s *Store) GetLastWritten() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastWritten.drain()
}

// GetLastTimeEntry returns the newest row of a partition by timestamp, or nil
// when the partition is absent or empty.
func (s *Store) GetLastTimeEntry(ctx context.Context, partition string) (*Row, error) {
	var (
		row *Row
		err error
	)
	if finder, ok := s.db.(lastRowFinder); ok {
		row, err = finder.LastRow(ctx, partition)
	} else {
		var rows []Row
		rows, err = s.db.SelectRange(ctx, partition, ColumnTimestamp, math.MinInt64, math.MaxInt64)
		for i := range rows {
			if row == nil || rows[i].Timestamp >= row.Timestamp {
				row = &rows[i]
			}
		}
	}
	if errors.Is(err, ErrNoPartition) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// PartitionNames lists the existing partitions.
func (s *Store) PartitionNames(ctx context.Context) ([]string, error) {
	return s.db.ListPartitions(ctx)
}

// RowsSince returns the rows of a partition with timestamp in (fromTime, now].
func (s *Store) RowsSince(ctx context.Context, partition string, fromTime, now int64) ([]Row, error) {
	if fromTime >= now {
		return nil, nil
	}
	return s.db.SelectRange(ctx, partition, ColumnTimestamp, fromTime+1, now)
}

// ring is a fixed-capacity FIFO that evicts the oldest row when full.
type ring struct {
	buf   []Row
	start int
	size  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Row, capacity)}
}

func (r *ring) push(row Row) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = row
		r.size++
		return
	}
	r.buf[r.start] = row
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) drain() []Row {
	out := make([]Row, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	r.start, r.size = 0, 0
	return out
}
