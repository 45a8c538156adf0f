package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const upstreamBatch = `{
  "result": "success",
  "cursor": "abc-123",
  "count": 1,
  "transactions": [
    {
      "blockchain": "ethereum",
      "symbol": "eth",
      "id": "1",
      "transaction_type": "burn",
      "hash": "0xburn",
      "from": {"address": "0xfrom", "owner": "tether", "owner_type": "other"},
      "to": {"address": "0xto", "owner_type": "unknown"},
      "timestamp": 1700000000,
      "amount": 1000,
      "amount_usd": 2000000,
      "transaction_count": 1
    }
  ]
}`

func fakeUpstream(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestFetchCommand_Success(t *testing.T) {
	ts := fakeUpstream(t, http.StatusOK, upstreamBatch)
	t.Setenv("WHALE_API_KEY", "test-key")
	t.Setenv("WHALE_API_URL", ts.URL)

	out, err := runApp(t, "fetch", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "ETH")
	assert.Contains(t, out, "burn from tether to unknown.")
	assert.Contains(t, out, "1 transaction(s)")
	assert.Contains(t, out, "Cursor: abc-123")
}

func TestFetchCommand_JSON(t *testing.T) {
	ts := fakeUpstream(t, http.StatusOK, upstreamBatch)
	t.Setenv("WHALE_API_KEY", "test-key")
	t.Setenv("WHALE_API_URL", ts.URL)

	out, err := runApp(t, "--json", "fetch")
	require.NoError(t, err)

	var resp struct {
		Status struct {
			Code int `json:"error_code"`
		} `json:"status"`
		Transactions []map[string]interface{} `json:"transactions"`
		Cursor       string                   `json:"cursor"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 200, resp.Status.Code)
	require.Len(t, resp.Transactions, 1)
	assert.Equal(t, "ETH", resp.Transactions[0]["symbol"])
	assert.Equal(t, "abc-123", resp.Cursor)
}

func TestFetchCommand_UpstreamError(t *testing.T) {
	ts := fakeUpstream(t, http.StatusUnauthorized, `{"result":"error","message":"invalid api_key"}`)
	t.Setenv("WHALE_API_KEY", "test-key")
	t.Setenv("WHALE_API_URL", ts.URL)

	_, err := runApp(t, "fetch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code 401")
	assert.Contains(t, err.Error(), "invalid api_key")
}

func TestFetchCommand_MissingAPIKey(t *testing.T) {
	t.Setenv("WHALE_API_KEY", "")

	_, err := runApp(t, "fetch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WHALE_API_KEY")
}
