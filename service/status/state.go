package status

import (
	"errors"
	"math"
	"time"
)

var (
	// ErrIncompleteStatus is returned when a status lacks its timestamp or code.
	ErrIncompleteStatus = errors.New("status is missing required fields")

	// ErrNoStatus is returned when no call has ever been recorded.
	ErrNoStatus = errors.New("no status available")
)

// Report values for Report.Status.
const (
	StatusOK    = "Ok"
	StatusError = "Error"
)

// Counters holds the call counts of one scope.
type Counters struct {
	SuccessfulCalls int     `json:"successful_calls" yaml:"successful_calls"`
	FailedCalls     int     `json:"failed_calls" yaml:"failed_calls"`
	SuccessRate     float64 `json:"success_rate" yaml:"success_rate"`
}

func (c *Counters) add(success bool) {
	if success {
		c.SuccessfulCalls++
	} else {
		c.FailedCalls++
	}
	c.SuccessRate = successRate(c.SuccessfulCalls, c.FailedCalls)
}

// LastGood is the snapshot of the most recent successful call.
type LastGood struct {
	Timestamp        time.Time `json:"timestamp" yaml:"timestamp"`
	TransactionCount int       `json:"transaction_count" yaml:"transaction_count"`
}

// LastFailed is the snapshot of the most recent failed call.
type LastFailed struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Code      int       `json:"error_code" yaml:"error_code"`
	Message   string    `json:"error_message" yaml:"error_message"`
}

// State is the persisted status document.
type State struct {
	AllTime    Counters    `json:"all_time" yaml:"all_time"`
	Session    Counters    `json:"current_session" yaml:"current_session"`
	Health     float64     `json:"health" yaml:"health"`
	LastGood   *LastGood   `json:"last_good_status,omitempty" yaml:"last_good_status,omitempty"`
	LastFailed *LastFailed `json:"last_failed_status,omitempty" yaml:"last_failed_status,omitempty"`
}

// clone returns a deep copy of s.
func (s State) clone() State {
	out := s
	if s.LastGood != nil {
		lg := *s.LastGood
		out.LastGood = &lg
	}
	if s.LastFailed != nil {
		lf := *s.LastFailed
		out.LastFailed = &lf
	}
	return out
}

// Report is the answer to a status request.
type Report struct {
	LastCallMinutes int     `json:"last_call_minutes"`
	Health          float64 `json:"health"`
	Status          string  `json:"status"`
}

// BuildReport derives a Report from a persisted state. The status is "Error"
// when the last successful call is older than five poll intervals. A state
// with failures only reports LastCallMinutes -1.
func BuildReport(s State, pollInterval time.Duration, now time.Time) (*Report, error) {
	if s.LastGood == nil && s.LastFailed == nil {
		return nil, ErrNoStatus
	}
	if s.LastGood == nil {
		return &Report{LastCallMinutes: -1, Health: s.Health, Status: StatusError}, nil
	}

	elapsed := now.Sub(s.LastGood.Timestamp)
	report := &Report{
		LastCallMinutes: int(elapsed / time.Minute),
		Health:          s.Health,
		Status:          StatusOK,
	}
	if elapsed.Seconds() > 5*pollInterval.Seconds() {
		report.Status = StatusError
	}
	return report, nil
}

func successRate(success, failed int) float64 {
	total := success + failed
	if total == 0 {
		return 0
	}
	return round(100*float64(success)/float64(total), 2)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
