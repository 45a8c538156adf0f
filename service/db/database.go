package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrNoPartition is returned when a partition does not exist.
	ErrNoPartition = errors.New("partition does not exist")

	// ErrUnknownColumn is returned when a range query names a column that is
	// not an integer column of the schema.
	ErrUnknownColumn = errors.New("unknown range column")
)

// Database is the relational store the ingestion path writes through.
// Partitions are append-only tables of Rows, one per blockchain.
type Database interface {
	// CreatePartition creates the partition if it is absent.
	CreatePartition(ctx context.Context, name string, schema []Column) error
	// InsertRow appends a row to an existing partition.
	InsertRow(ctx context.Context, partition string, row Row) error
	// SelectRange returns the rows whose column value is within [low, high].
	SelectRange(ctx context.Context, partition, column string, low, high int64) ([]Row, error)
	// ListPartitions returns the partition names in lexical order.
	ListPartitions(ctx context.Context) ([]string, error)
	// Columns returns the schema of a partition.
	Columns(ctx context.Context, partition string) ([]Column, error)
}

// lastRowFinder is implemented by databases that can find the newest row
// without scanning the partition.
type lastRowFinder interface {
	LastRow(ctx context.Context, partition string) (*Row, error)
}

// MemoryDB is an in-process Database. It is safe for concurrent use.
type MemoryDB struct {
	mu         sync.RWMutex
	partitions map[string]*memoryPartition
}

type memoryPartition struct {
	columns []Column
	rows    []Row
}

// NewMemoryDB creates an empty in-memory database.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{partitions: make(map[string]*memoryPartition)}
}

// CreatePartition creates the partition if it is absent.
func (m *MemoryDB) CreatePartition(ctx context.Context, name string, schema []Column) error {
	if name == "" {
		return fmt.Errorf("partition name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.partitions[name]; ok {
		return nil
	}
	columns := make([]Column, len(schema))
	copy(columns, schema)
	m.partitions[name] = &memoryPartition{columns: columns}
	return nil
}

// InsertRow appends a row to an existing partition.
func (m *MemoryDB) InsertRow(ctx context.Context, partition string, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.partitions[partition]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPartition, partition)
	}
	p.rows = append(p.rows, row)
	return nil
}

// SelectRange returns the rows whose column value is within [low, high], in insertion order.
func (m *MemoryDB) SelectRange(ctx context.Context, partition, column string, low, high int64) ([]Row, error) {
	if _, ok := (Row{}).intColumn(column); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.partitions[partition]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPartition, partition)
	}
	var out []Row
	for _, r := range p.rows {
		v, _ := r.intColumn(column)
		if v >= low && v <= high {
			out = append(out, r)
		}
	}
	return out, nil
}

// ListPartitions returns the partition names in lexical order.
func (m *MemoryDB) ListPartitions(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.partitions))
	for name := range m.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Columns returns the schema of a partition.
func (m *MemoryDB) Columns(ctx context.Context, partition string) ([]Column, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.partitions[partition]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPartition, partition)
	}
	columns := make([]Column, len(p.columns))
	copy(columns, p.columns)
	return columns, nil
}

// LastRow returns the row with the greatest timestamp, or nil for an empty partition.
func (m *MemoryDB) LastRow(ctx context.Context, partition string) (*Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.partitions[partition]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPartition, partition)
	}
	var last *Row
	for i := range p.rows {
		if last == nil || p.rows[i].Timestamp >= last.Timestamp {
			last = &p.rows[i]
		}
	}
	if last == nil {
		return nil, nil
	}
	row := *last
	return &row, nil
}
