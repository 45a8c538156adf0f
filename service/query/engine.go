package query

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/brojonat/whalealert/service/db"
	"github.com/brojonat/whalealert/service/metrics"
)

// Wildcard selects every blockchain or every symbol.
const Wildcard = "*"

// Unlimited disables tail truncation.
const Unlimited = -1

// Mode selects the shape of a query result.
type Mode string

const (
	ModeText    Mode = "text"
	ModePretty  Mode = "pretty"
	ModeRecords Mode = "records"
	ModeTable   Mode = "table"
)

// ParseMode maps a format name to a Mode.
func ParseMode(s string) (Mode, bool) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeText, ModePretty, ModeRecords, ModeTable:
		return m, true
	default:
		return "", false
	}
}

// Source is the read side of the ingestion store.
type Source interface {
	PartitionNames(ctx context.Context) ([]string, error)
	RowsSince(ctx context.Context, partition string, fromTime, now int64) ([]db.Row, error)
}

// Filter selects rows for a query. Nil Blockchains or Symbols make the
// filter invalid; []string{"*"} matches everything.
type Filter struct {
	Blockchains []string `json:"blockchain"`
	Symbols     []string `json:"symbols"`
	// FromTime is an exclusive lower bound on the unix timestamp.
	FromTime int64 `json:"from_time"`
	// MaxResults keeps only the newest N rows; negative means unlimited.
	MaxResults int  `json:"max_results"`
	Mode       Mode `json:"mode"`
}

func (f Filter) valid() bool {
	if f.Blockchains == nil || f.Symbols == nil {
		return false
	}
	_, ok := ParseMode(string(f.Mode))
	return ok
}

func isWildcard(list []string) bool {
	return len(list) == 1 && list[0] == Wildcard
}

// TextRecord is one rendered row of a records-mode result.
type TextRecord struct {
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

// Result holds the output of a query in the shape its Mode asks for.
// The fields of other modes are left empty.
type Result struct {
	Mode    Mode         `json:"mode"`
	Text    string       `json:"text,omitempty"`
	Records []TextRecord `json:"records,omitempty"`
	Rows    []db.Row     `json:"rows,omitempty"`
}

func emptyResult(mode Mode) Result {
	r := Result{Mode: mode}
	switch mode {
	case ModeRecords:
		r.Records = []TextRecord{}
	case ModeTable:
		r.Rows = []db.Row{}
	}
	return r
}

// Len returns the number of rows in the result.
func (r Result) Len() int {
	switch r.Mode {
	case ModeRecords:
		return len(r.Records)
	case ModeTable:
		return len(r.Rows)
	default:
		if r.Text == "" {
			return 0
		}
		return strings.Count(r.Text, "\n") + 1
	}
}

// Engine answers filtered, time-ranged queries over a Source.
type Engine struct {
	source   Source
	now      func() time.Time
	renderer *Renderer
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for the upper time bound.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the time zone timestamps are rendered in.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.renderer = NewRenderer(loc) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics enables metrics recording.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an Engine. A nil source yields empty results.
func NewEngine(source Source, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		now:      time.Now,
		renderer: NewRenderer(time.Local),
		logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query selects rows in (FromTime, now] from the requested blockchains, keeps
// the requested symbols, sorts them by timestamp and keeps the newest
// MaxResults before rendering. Errors never escape: a failed query returns
// the empty result of the requested shape.
func (e *Engine) Query(ctx context.Context, f Filter) Result {
	var count int
	if e.metrics != nil {
		defer metrics.Timer(time.Now(), func(d float64) {
			e.metrics.RecordQuery(string(f.Mode), count, d)
		})()
	}

	if e.source == nil {
		e.logger.ErrorContext(ctx, "query against an absent store")
		return emptyResult(f.Mode)
	}
	if !f.valid() {
		e.logger.ErrorContext(ctx, "invalid query filter", "filter", f)
		return emptyResult(f.Mode)
	}

	rows, err := e.selectRows(ctx, f)
	if err != nil {
		e.logger.ErrorContext(ctx, "query failed", "error", err)
		return emptyResult(f.Mode)
	}
	count = len(rows)

	e.logger.DebugContext(ctx, "query complete", "results", count, "mode", f.Mode)
	return e.renderer.Render(rows, f.Mode)
}

func (e *Engine) selectRows(ctx context.Context, f Filter) ([]db.Row, error) {
	blockchains := f.Blockchains
	if isWildcard(blockchains) {
		names, err := e.source.PartitionNames(ctx)
		if err != nil {
			return nil, err
		}
		blockchains = names
	}

	now := e.now().Unix()
	var rows []db.Row
	for _, blockchain := range blockchains {
		part, err := e.source.RowsSince(ctx, blockchain, f.FromTime, now)
		if errors.Is(err, db.ErrNoPartition) {
			e.logger.WarnContext(ctx, "query for blockchain with no partition", "blockchain", blockchain)
			continue
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, part...)
	}

	if !isWildcard(f.Symbols) {
		wanted := make(map[string]bool, len(f.Symbols))
		for _, s := range f.Symbols {
			wanted[strings.ToUpper(s)] = true
		}
		kept := rows[:0]
		for _, r := range rows {
			if wanted[r.Symbol] {
				kept = append(kept, r)
			}
		}
		rows = kept
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp < rows[j].Timestamp
	})

	if f.MaxResults >= 0 && len(rows) > f.MaxResults {
		rows = rows[len(rows)-f.MaxResults:]
	}
	if rows == nil {
		rows = []db.Row{}
	}
	return rows, nil
}
