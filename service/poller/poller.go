package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/brojonat/whalealert/service/db"
	"github.com/brojonat/whalealert/service/metrics"
	"github.com/brojonat/whalealert/service/nats"
	"github.com/brojonat/whalealert/service/whale"
)

// Fetcher is the upstream side of a poll cycle.
type Fetcher interface {
	Fetch(ctx context.Context, params whale.FetchParams) whale.Result
	LastCursor() *string
	LastTimestamp() int64
}

// Writer persists accepted transactions.
type Writer interface {
	WriteTransactions(ctx context.Context, txns []whale.Transaction) error
	GetLastWritten() []db.Row
}

// StatusWriter records the outcome of each fetch.
type StatusWriter interface {
	WriteStatus(ctx context.Context, st whale.Status) error
}

// Config holds the poll parameters.
type Config struct {
	APIKey       string
	MinValueUSD  int64
	Limit        int
	PollInterval time.Duration
	HistoryLimit time.Duration
}

// Poller runs the fetch, write, track and publish cycle.
type Poller struct {
	cfg       Config
	fetcher   Fetcher
	writer    Writer
	status    StatusWriter
	publisher nats.Publisher
	now       func() time.Time
	sleep     whale.SleepFunc
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a Poller.
type Option func(*Poller)

// WithPublisher publishes written rows to NATS.
func WithPublisher(p nats.Publisher) Option {
	return func(pl *Poller) { pl.publisher = p }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(pl *Poller) { pl.now = now }
}

// WithSleep replaces the wait between cycles.
func WithSleep(fn whale.SleepFunc) Option {
	return func(pl *Poller) { pl.sleep = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(pl *Poller) { pl.logger = l }
}

// WithMetrics enables metrics recording.
func WithMetrics(m *metrics.Metrics) Option {
	return func(pl *Poller) { pl.metrics = m }
}

// New creates a Poller.
func New(cfg Config, fetcher Fetcher, writer Writer, status StatusWriter, opts ...Option) *Poller {
	p := &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		writer:  writer,
		status:  status,
		now:     time.Now,
		sleep:   sleepContext,
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StartTime returns the start of the next fetch window: the completion time
// of the last successful call, but never further back than the history limit.
func (p *Poller) StartTime() int64 {
	earliest := p.now().Add(-p.cfg.HistoryLimit).Unix()
	last := p.fetcher.LastTimestamp()
	if last > earliest {
		return last
	}
	return earliest
}

// RunOnce performs a single cycle. Upstream failures are recorded in the
// status and are not returned; the error reports storage or status failures.
func (p *Poller) RunOnce(ctx context.Context) error {
	start := time.Now()

	params := whale.FetchParams{
		Start:    p.StartTime(),
		APIKey:   p.cfg.APIKey,
		Cursor:   p.fetcher.LastCursor(),
		MinValue: p.cfg.MinValueUSD,
		Limit:    p.cfg.Limit,
	}
	res := p.fetcher.Fetch(ctx, params)

	var errs []error
	if res.Success && len(res.Transactions) > 0 {
		if err := p.writer.WriteTransactions(ctx, res.Transactions); err != nil {
			p.logger.ErrorContext(ctx, "failed to write transactions", "error", err)
			errs = append(errs, err)
		}
		p.publish(ctx, p.writer.GetLastWritten())
	}

	if err := p.status.WriteStatus(ctx, res.Status); err != nil {
		p.logger.ErrorContext(ctx, "failed to write status", "error", err)
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if p.metrics != nil {
		status := "success"
		switch {
		case err != nil:
			status = "error"
		case !res.Success:
			status = "upstream_failure"
		}
		p.metrics.RecordPollCycle(status, time.Since(start).Seconds())
	}

	p.logger.InfoContext(ctx, "poll cycle complete",
		"start", params.Start,
		"code", res.Status.Code,
		"count", len(res.Transactions),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return err
}

func (p *Poller) publish(ctx context.Context, rows []db.Row) {
	if p.publisher == nil || len(rows) == 0 {
		return
	}
	events := make([]*nats.WhaleEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, nats.FromRow(row))
	}
	if err := p.publisher.PublishWhaleBatch(ctx, events); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish whale events", "count", len(events), "error", err)
	}
}

// Run repeats RunOnce every poll interval until ctx is done. No cycle
// failure stops the loop.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "poller started",
		"poll_interval", p.cfg.PollInterval.String(),
		"history_limit", p.cfg.HistoryLimit.String(),
		"min_value_usd", p.cfg.MinValueUSD,
	)
	for {
		if err := p.RunOnce(ctx); err != nil {
			p.logger.WarnContext(ctx, "poll cycle failed", "error", err)
		}
		if err := p.sleep(ctx, p.cfg.PollInterval); err != nil {
			p.logger.InfoContext(ctx, "poller stopped")
			return nil
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
