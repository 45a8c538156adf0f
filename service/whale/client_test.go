package whale

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodResponse = `{
  "result": "success",
  "cursor": "2bc7e46-2bc7e46-5c66c0a7",
  "count": 2,
  "transactions": [
    {
      "blockchain": "bitcoin",
      "symbol": "btc",
      "id": "662472177",
      "transaction_type": "transfer",
      "hash": "8d5ae34805f70d0a412964dca4dbd3f48bc103700686035a61b293cb91fe750d",
      "from": {"address": "f2103b01cd7957f3a9d9726bbb74c0ccd3f355d3", "owner": "binance", "owner_type": "exchange"},
      "to": {"address": "3f5ce5fbfe3e9af3971dd833d26ba9b5c936f0be", "owner": "binance", "owner_type": "exchange"},
      "timestamp": 1588874414,
      "amount": 3486673,
      "amount_usd": 3508660.2,
      "transaction_count": 1
    },
    {
      "blockchain": "tron",
      "symbol": "USDT",
      "id": 662472729,
      "transaction_type": "transfer",
      "hash": "55f5fa53fd9c1a8430d79248e45f130b6ac08892ecd68e54cc600228919058d0",
      "from": {"address": "c5a8859c44ac8aa2169afacf45b87c08593bec10", "owner_type": "unknown"},
      "to": {"address": "7286c758578a2457e9ba36d46893176582acefb5", "owner": "binance", "owner_type": "exchange"},
      "timestamp": 1588874451,
      "amount": 500000000,
      "amount_usd": 500000000,
      "transaction_count": 1
    }
  ]
}`

// sleepRecorder replaces the backoff sleep and remembers what was requested.
type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return nil
}

// faultTransport fails every round trip with err and counts attempts.
type faultTransport struct {
	err      error
	attempts atomic.Int32
}

func (f *faultTransport) RoundTrip(*http.Request) (*http.Response, error) {
	f.attempts.Add(1)
	return nil, f.err
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(baseURL string, opts ...Option) (*Client, *sleepRecorder) {
	rec := &sleepRecorder{}
	base := []Option{
		WithBaseURL(baseURL),
		WithRateLimiter(nil),
		WithSleep(rec.sleep),
		WithLogger(testLogger()),
	}
	return NewClient(append(base, opts...)...), rec
}

func serveBody(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func defaultParams() FetchParams {
	return FetchParams{Start: 1588874000, APIKey: "key", MinValue: 500000, Limit: 100}
}

func TestFetch_Success(t *testing.T) {
	srv := serveBody(t, http.StatusOK, goodResponse)
	client, _ := newTestClient(srv.URL)

	res := client.Fetch(context.Background(), defaultParams())

	require.True(t, res.Success)
	require.Len(t, res.Transactions, 2)
	assert.Equal(t, CodeOK, res.Status.Code)
	assert.Equal(t, "", res.Status.Message)
	assert.Equal(t, 2, res.Status.TransactionCount)
	assert.False(t, res.Status.Timestamp.IsZero())

	first := res.Transactions[0]
	assert.Equal(t, "BTC", first.Symbol, "symbol must be upper-cased")
	assert.Equal(t, "662472177", first.ID)
	assert.Equal(t, int64(1588874414), first.Timestamp)
	assert.InDelta(t, 3508660.2, first.AmountUSD, 1e-9)
	assert.Equal(t, "binance", first.From.Owner)

	second := res.Transactions[1]
	assert.Equal(t, "662472729", second.ID, "numeric ids are accepted")
	assert.Equal(t, "", second.From.Owner)
	assert.Equal(t, OwnerTypeUnknown, second.From.OwnerType)

	require.NotNil(t, client.LastCursor())
	assert.Equal(t, "2bc7e46-2bc7e46-5c66c0a7", *client.LastCursor())
}

func TestFetch_RequestParameters(t *testing.T) {
	var got map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transactions", r.URL.Path)
		got = r.URL.Query()
		fmt.Fprint(w, `{"result":"success","cursor":"c","count":0}`)
	}))
	defer srv.Close()
	client, _ := newTestClient(srv.URL)

	t.Run("optional parameters omitted", func(t *testing.T) {
		res := client.Fetch(context.Background(), defaultParams())
		require.True(t, res.Success)
		assert.Equal(t, []string{"key"}, got["api_key"])
		assert.Equal(t, []string{"1588874000"}, got["start"])
		assert.Equal(t, []string{"500000"}, got["min_value"])
		assert.Equal(t, []string{"100"}, got["limit"])
		assert.NotContains(t, got, "end")
		assert.NotContains(t, got, "cursor")
	})

	t.Run("optional parameters present", func(t *testing.T) {
		end := int64(1588875000)
		cursor := "abc"
		p := defaultParams()
		p.End = &end
		p.Cursor = &cursor
		p.Limit = 500

		res := client.Fetch(context.Background(), p)
		require.True(t, res.Success)
		assert.Equal(t, []string{"1588875000"}, got["end"])
		assert.Equal(t, []string{"abc"}, got["cursor"])
		assert.Equal(t, []string{"100"}, got["limit"], "limit is bounded by the upstream maximum")
	})
}

func TestFetch_ZeroCount(t *testing.T) {
	srv := serveBody(t, http.StatusOK, `{"result":"success","cursor":"new-cursor","count":0}`)
	now := time.Unix(1600000000, 0)
	client, _ := newTestClient(srv.URL, WithClock(func() time.Time { return now }))

	res := client.Fetch(context.Background(), defaultParams())

	require.True(t, res.Success)
	assert.NotNil(t, res.Transactions)
	assert.Empty(t, res.Transactions)
	assert.Equal(t, Status{Timestamp: now, Code: CodeOK, TransactionCount: 0}, res.Status)
	assert.Nil(t, client.LastCursor(), "empty batches do not move the cursor")
	assert.Equal(t, now.Unix(), client.LastTimestamp())
}

func TestFetch_CountMismatch(t *testing.T) {
	body := strings.Replace(goodResponse, `"count": 2`, `"count": 3`, 1)
	srv := serveBody(t, http.StatusOK, body)
	client, _ := newTestClient(srv.URL)

	res := client.Fetch(context.Background(), defaultParams())

	assert.False(t, res.Success)
	assert.Nil(t, res.Transactions)
	assert.Equal(t, CodeCountMismatch, res.Status.Code)
	assert.Equal(t, 0, res.Status.TransactionCount)
	assert.Nil(t, client.LastCursor())
}

func TestFetch_ResponseValidation(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode int
		wantMsg  string
	}{
		{
			name:     "undecodable body",
			status:   http.StatusOK,
			body:     `{"result": "success", `,
			wantCode: CodeDecode,
		},
		{
			name:     "body is not an object",
			status:   http.StatusOK,
			body:     `[1, 2, 3]`,
			wantCode: CodeParse,
		},
		{
			name:     "upstream error with message",
			status:   http.StatusUnauthorized,
			body:     `{"result":"error","message":"invalid api_key"}`,
			wantCode: http.StatusUnauthorized,
			wantMsg:  "invalid api_key",
		},
		{
			name:     "upstream error without message",
			status:   http.StatusInternalServerError,
			body:     `{"result":"error"}`,
			wantCode: CodeErrorMessage,
		},
		{
			name:     "upstream error that is not json",
			status:   http.StatusBadGateway,
			body:     `<html>bad gateway</html>`,
			wantCode: CodeDecode,
		},
		{
			name:     "missing cursor",
			status:   http.StatusOK,
			body:     `{"result":"success","count":0}`,
			wantCode: CodeMainKeys,
		},
		{
			name:     "missing result",
			status:   http.StatusOK,
			body:     `{"cursor":"c","count":0}`,
			wantCode: CodeMainKeys,
		},
		{
			name:     "missing transactions with positive count",
			status:   http.StatusOK,
			body:     `{"result":"success","cursor":"c","count":1}`,
			wantCode: CodeMainKeys,
		},
		{
			name:     "record missing hash",
			status:   http.StatusOK,
			body:     strings.Replace(goodResponse, `"hash": "8d5ae3`, `"hashx": "8d5ae3`, 1),
			wantCode: CodeRecordKeys,
		},
		{
			name:     "record missing receiver address",
			status:   http.StatusOK,
			body:     strings.Replace(goodResponse, `"to": {"address": "3f5ce5`, `"to": {"addr": "3f5ce5`, 1),
			wantCode: CodeRecordKeys,
		},
		{
			name:     "known owner type without owner",
			status:   http.StatusOK,
			body:     strings.Replace(goodResponse, `"owner": "binance", "owner_type": "exchange"}`, `"owner_type": "exchange"}`, 1),
			wantCode: CodeRecordKeys,
		},
		{
			name:     "known owner type with empty owner",
			status:   http.StatusOK,
			body:     strings.Replace(goodResponse, `"owner": "binance", "owner_type": "exchange"}`, `"owner": "", "owner_type": "exchange"}`, 1),
			wantCode: CodeRecordKeys,
		},
		{
			name:     "record missing transaction count",
			status:   http.StatusOK,
			body:     strings.Replace(goodResponse, `"transaction_count": 1`, `"transaction_total": 1`, 1),
			wantCode: CodeRecordKeys,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serveBody(t, tt.status, tt.body)
			client, rec := newTestClient(srv.URL)

			res := client.Fetch(context.Background(), defaultParams())

			assert.False(t, res.Success)
			assert.Nil(t, res.Transactions, "failed batches never return partial records")
			assert.Equal(t, tt.wantCode, res.Status.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, res.Status.Message)
			} else {
				assert.NotEmpty(t, res.Status.Message)
			}
			assert.Empty(t, rec.calls, "protocol failures are never retried")
			assert.Nil(t, client.LastCursor())
		})
	}
}

func TestFetch_RetriesTransientFaults(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{
			name:     "connection refused",
			err:      &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
			wantCode: CodeConnection,
		},
		{
			name:     "timeout",
			err:      timeoutErr{},
			wantCode: CodeTimeout,
		},
		{
			name:     "unclassified",
			err:      errors.New("something odd"),
			wantCode: CodeTransport,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &faultTransport{err: tt.err}
			client, rec := newTestClient("http://whale.invalid",
				WithHTTPClient(&http.Client{Transport: transport}),
				WithRetries(3),
			)
			before := client.LastTimestamp()

			res := client.Fetch(context.Background(), defaultParams())

			assert.False(t, res.Success)
			assert.Nil(t, res.Transactions)
			assert.Equal(t, tt.wantCode, res.Status.Code)
			assert.Equal(t, int32(4), transport.attempts.Load(), "R retries means R+1 attempts")
			assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}, rec.calls)
			assert.Equal(t, before, client.LastTimestamp())
			assert.Nil(t, client.LastCursor())
		})
	}
}

func TestFetch_RedirectLoop(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, r.URL.String(), http.StatusFound)
	}))
	defer srv.Close()
	client, rec := newTestClient(srv.URL, WithRetries(1))

	res := client.Fetch(context.Background(), defaultParams())

	assert.False(t, res.Success)
	assert.Equal(t, CodeTooManyRedirect, res.Status.Code)
	assert.Len(t, rec.calls, 1)
}

func TestFetch_RecoversAfterTransientFault(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Drop the connection without a response.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		fmt.Fprint(w, goodResponse)
	}))
	defer srv.Close()
	client, rec := newTestClient(srv.URL)

	res := client.Fetch(context.Background(), defaultParams())

	require.True(t, res.Success)
	assert.Len(t, res.Transactions, 2)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.calls)
}

func TestFetch_CanceledDuringBackoff(t *testing.T) {
	transport := &faultTransport{err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}}
	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(
		WithBaseURL("http://whale.invalid"),
		WithHTTPClient(&http.Client{Transport: transport}),
		WithRateLimiter(nil),
		WithLogger(testLogger()),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)

	res := client.Fetch(ctx, defaultParams())

	assert.False(t, res.Success)
	assert.Equal(t, CodeConnection, res.Status.Code)
	assert.Equal(t, int32(1), transport.attempts.Load())
}

func TestNewClient_HTTPClientOptions(t *testing.T) {
	t.Run("timeout survives a later http client", func(t *testing.T) {
		caller := &http.Client{Timeout: time.Minute}
		c := NewClient(WithTimeout(3*time.Second), WithHTTPClient(caller))

		assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
		assert.NotNil(t, c.httpClient.CheckRedirect)
		assert.Equal(t, time.Minute, caller.Timeout)
		assert.Nil(t, caller.CheckRedirect)
	})

	t.Run("caller client is not modified", func(t *testing.T) {
		caller := &http.Client{}
		c := NewClient(WithHTTPClient(caller), WithTimeout(3*time.Second))

		assert.NotSame(t, caller, c.httpClient)
		assert.Equal(t, 3*time.Second, c.httpClient.Timeout)
		assert.Zero(t, caller.Timeout)
		assert.Nil(t, caller.CheckRedirect)
	})

	t.Run("caller timeout kept without WithTimeout", func(t *testing.T) {
		c := NewClient(WithHTTPClient(&http.Client{Timeout: time.Minute}))
		assert.Equal(t, time.Minute, c.httpClient.Timeout)
	})

	t.Run("default timeout", func(t *testing.T) {
		c := NewClient()
		assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
	})
}

func TestClassify(t *testing.T) {
	assert.Equal(t, CodeTooManyRedirect, Classify(fmt.Errorf("get: %w", ErrTooManyRedirects)).Code)
	assert.Equal(t, CodeTimeout, Classify(context.DeadlineExceeded).Code)
	assert.Equal(t, CodeConnection, Classify(&net.DNSError{Err: "no such host", Name: "whale.invalid"}).Code)
	assert.Equal(t, CodeTransport, Classify(errors.New("boom")).Code)
	assert.True(t, Classify(errors.New("boom")).Retryable())
	assert.False(t, Fatal(CodeDecode, "").Retryable())
}
