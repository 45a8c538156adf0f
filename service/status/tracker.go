package status

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/whalealert/service/metrics"
	"github.com/brojonat/whalealert/service/whale"
)

// Tracker maintains the call counters, the rolling health window and the
// last-good/last-failed snapshots, persisting every change.
type Tracker struct {
	persister    Persister
	pollInterval time.Duration
	windowSize   int
	logger       *slog.Logger
	metrics      *metrics.Metrics

	mu     sync.Mutex
	state  State
	window *window
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

// WithMetrics exports health and success rates.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

// WithWindowSize sets the health window capacity.
func WithWindowSize(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.windowSize = n
		}
	}
}

// NewTracker loads the persisted state and starts a new session: the
// session counters are reset and the health window is filled with successes.
func NewTracker(ctx context.Context, persister Persister, pollInterval time.Duration, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		persister:    persister,
		pollInterval: pollInterval,
		windowSize:   DefaultWindowSize,
		logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(t)
	}

	loaded, err := persister.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load status: %w", err)
	}
	if loaded != nil {
		t.state = loaded.clone()
	}
	t.state.Session = Counters{}
	t.window = newWindow(t.windowSize)
	t.state.Health = t.window.health()

	if err := persister.Save(ctx, t.state); err != nil {
		return nil, fmt.Errorf("failed to save status: %w", err)
	}
	t.export()
	return t, nil
}

// WriteStatus records the outcome of one fetch call. When persistence fails
// the in-memory state is restored to what it was before the call.
func (t *Tracker) WriteStatus(ctx context.Context, st whale.Status) error {
	if st.Timestamp.IsZero() || st.Code == 0 {
		return ErrIncompleteStatus
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	prevState := t.state.clone()
	prevWindow := t.window.clone()

	ok := st.OK()
	t.state.AllTime.add(ok)
	t.state.Session.add(ok)
	t.window.push(ok)
	t.state.Health = t.window.health()
	if ok {
		t.state.LastGood = &LastGood{
			Timestamp:        st.Timestamp,
			TransactionCount: st.TransactionCount,
		}
	} else {
		t.state.LastFailed = &LastFailed{
			Timestamp: st.Timestamp,
			Code:      st.Code,
			Message:   st.Message,
		}
	}

	if err := t.persister.Save(ctx, t.state); err != nil {
		t.state = prevState
		t.window = prevWindow
		t.logger.ErrorContext(ctx, "failed to persist status", "error", err)
		return fmt.Errorf("failed to save status: %w", err)
	}

	t.export()
	t.logger.DebugContext(ctx, "recorded call status",
		"code", st.Code,
		"health", t.state.Health,
		"session_success_rate", t.state.Session.SuccessRate,
	)
	return nil
}

// StatusRequest reports the time since the last good call and the health.
func (t *Tracker) StatusRequest(now time.Time) (*Report, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return BuildReport(t.state, t.pollInterval, now)
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.clone()
}

func (t *Tracker) export() {
	if t.metrics == nil {
		return
	}
	t.metrics.SetHealth(t.state.Health)
	t.metrics.SetSuccessRate("all_time", t.state.AllTime.SuccessRate)
	t.metrics.SetSuccessRate("session", t.state.Session.SuccessRate)
}
