package temporal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockScheduler is an in-memory Scheduler for testing.
type MockScheduler struct {
	mu        sync.Mutex
	interval  time.Duration
	exists    bool
	upserts   int
	upsertErr error
	deleteErr error
}

// NewMockScheduler creates a new MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{}
}

// UpsertPollSchedule records the schedule interval.
func (m *MockScheduler) UpsertPollSchedule(ctx context.Context, interval time.Duration) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.interval = interval
	m.exists = true
	m.upserts++
	return nil
}

// DeletePollSchedule removes the schedule.
func (m *MockScheduler) DeletePollSchedule(ctx context.Context) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.exists {
		return fmt.Errorf("schedule %q not found", ScheduleID)
	}
	m.exists = false
	m.interval = 0
	return nil
}

// Interval returns the scheduled interval and whether the schedule exists.
func (m *MockScheduler) Interval() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval, m.exists
}

// Upserts returns how many times the schedule was upserted.
func (m *MockScheduler) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// SetUpsertError makes UpsertPollSchedule fail with err.
func (m *MockScheduler) SetUpsertError(err error) {
	m.upsertErr = err
}

// SetDeleteError makes DeletePollSchedule fail with err.
func (m *MockScheduler) SetDeleteError(err error) {
	m.deleteErr = err
}

var (
	_ Scheduler = (*MockScheduler)(nil)
	_ Scheduler = (*Client)(nil)
)
