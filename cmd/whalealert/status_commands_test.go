package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/brojonat/whalealert/service/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand_ReadAPI(t *testing.T) {
	statuses := status.NewMemoryStore()
	require.NoError(t, statuses.Save(context.Background(), status.State{
		AllTime: status.Counters{SuccessfulCalls: 10, SuccessRate: 100},
		Session: status.Counters{SuccessfulCalls: 2, SuccessRate: 100},
		Health:  100,
		LastGood: &status.LastGood{
			Timestamp:        time.Now().Add(-2 * time.Minute),
			TransactionCount: 3,
		},
	}))
	ts := readAPI(t, statuses)

	out, err := runApp(t, "--server-url", ts.URL, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: Ok")
	assert.Contains(t, out, "2 min ago")
	assert.Contains(t, out, "10 ok / 0 failed")
}

func TestStatusCommand_NoStatus(t *testing.T) {
	ts := readAPI(t, nil)

	_, err := runApp(t, "--server-url", ts.URL, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no status recorded")
}

func TestStatusCommand_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.yaml")
	require.NoError(t, status.NewFileStore(path).Save(context.Background(), status.State{
		AllTime: status.Counters{FailedCalls: 1},
		Health:  96.7,
		LastFailed: &status.LastFailed{
			Timestamp: time.Now(),
			Code:      2,
			Message:   "Internal error: Timeout exception when conducting API call",
		},
	}))

	out, err := runApp(t, "status", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Status: Error")
	assert.Contains(t, out, "never")
	assert.Contains(t, out, "code 2")
}
