package main

import (
	"testing"

	"github.com/brojonat/whalealert/service/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJQFilterMatching(t *testing.T) {
	row := db.Row{
		Blockchain: "ethereum",
		Symbol:     "USDT",
		FromOwner:  "binance",
		ToOwner:    "",
		AmountUSD:  25_000_000,
	}

	tests := []struct {
		name        string
		filters     []string
		expectMatch bool
	}{
		{name: "no filters", filters: nil, expectMatch: true},
		{name: "field equality", filters: []string{`.symbol == "USDT"`}, expectMatch: true},
		{name: "field mismatch", filters: []string{`.symbol == "BTC"`}, expectMatch: false},
		{name: "numeric comparison", filters: []string{`.amount_usd > 20000000`}, expectMatch: true},
		{name: "all must match", filters: []string{`.blockchain == "ethereum"`, `.from_owner == "kraken"`}, expectMatch: false},
		{name: "null is falsy", filters: []string{`.missing`}, expectMatch: false},
		{name: "string is truthy", filters: []string{`.from_owner`}, expectMatch: true},
		{name: "runtime error fails", filters: []string{`.symbol | tonumber`}, expectMatch: false},
		{name: "empty output fails", filters: []string{`empty`}, expectMatch: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes, err := compileJQ(tt.filters)
			require.NoError(t, err)

			v, err := toJQValue(row)
			require.NoError(t, err)

			assert.Equal(t, tt.expectMatch, matchesAll(codes, v))
		})
	}
}

func TestCompileJQ_InvalidFilter(t *testing.T) {
	_, err := compileJQ([]string{`.symbol ==`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse jq filter")
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(nil))
	assert.False(t, isTruthy(false))
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy(0.0))
	assert.True(t, isTruthy(""))
}
