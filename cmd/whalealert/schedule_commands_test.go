package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/brojonat/whalealert/service/temporal"
	"github.com/stretchr/testify/assert"
)

func TestPrintScheduleInfo(t *testing.T) {
	var buf bytes.Buffer
	printScheduleInfo(&buf, &temporal.ScheduleInfo{
		Interval:   time.Minute,
		Paused:     true,
		Note:       "maintenance",
		RecentRuns: 3,
		NextRuns:   []time.Time{time.Unix(1_700_000_000, 0)},
	})

	out := buf.String()
	assert.Contains(t, out, "✓ Schedule: poll-whales (paused)")
	assert.Contains(t, out, "Interval: 1m0s")
	assert.Contains(t, out, "Note: maintenance")
	assert.Contains(t, out, "Recent runs: 3")
	assert.Contains(t, out, "Next run: ")
}

func TestPrintScheduleInfo_Active(t *testing.T) {
	var buf bytes.Buffer
	printScheduleInfo(&buf, &temporal.ScheduleInfo{Interval: 30 * time.Second})

	out := buf.String()
	assert.Contains(t, out, "(active)")
	assert.NotContains(t, out, "Note:")
	assert.NotContains(t, out, "Next run:")
}

func TestScheduleSet_RejectsNonPositiveInterval(t *testing.T) {
	_, err := runApp(t, "schedule", "set", "--interval", "0s")
	assert.ErrorContains(t, err, "interval must be positive")
}
