package whale

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/brojonat/whalealert/service/metrics"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the upstream API root.
	DefaultBaseURL = "https://api.whale-alert.io/v1"

	// MaxLimit is the upstream maximum number of transactions per call.
	MaxLimit = 100

	DefaultRetries = 3
	DefaultTimeout = 10 * time.Second

	// DefaultRatePerMinute matches the free upstream tier.
	DefaultRatePerMinute = 10

	transactionsPath = "/transactions"
	maxRedirects     = 10
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Client fetches transaction batches from the upstream feed.
// It owns the cursor/resume state of the poll loop.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	retries    int
	limiter    *rate.Limiter
	sleep      SleepFunc
	now        func() time.Time
	logger     *slog.Logger
	metrics    *metrics.Metrics

	mu            sync.Mutex
	lastCursor    *string
	lastTimestamp int64
	callReturned  int64
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the upstream API root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client to copy. The caller's client is never
// modified; its redirect policy is kept if set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetries sets the number of retries after the first attempt.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithTimeout sets the per-call timeout, overriding the HTTP client's own.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimiter replaces the call limiter. Nil disables limiting.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithSleep replaces the backoff sleep, mostly for tests.
func WithSleep(fn SleepFunc) Option {
	return func(c *Client) { c.sleep = fn }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics enables metrics recording.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a new upstream client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		retries: DefaultRetries,
		limiter: rate.NewLimiter(rate.Every(time.Minute/DefaultRatePerMinute), 1),
		sleep:   sleepContext,
		now:     time.Now,
		logger:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}

	hc := *c.httpClient
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	if hc.CheckRedirect == nil {
		hc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return ErrTooManyRedirects
			}
			return nil
		}
	}
	c.httpClient = &hc
	c.lastTimestamp = c.now().Unix()
	c.callReturned = c.lastTimestamp
	return c
}

// LastCursor returns the pagination cursor of the last successful call, or nil.
func (c *Client) LastCursor() *string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastCursor == nil {
		return nil
	}
	cursor := *c.lastCursor
	return &cursor
}

// LastTimestamp returns the unix time at which the last successful call completed.
func (c *Client) LastTimestamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastTimestamp
}

// Fetch makes one logical call to the upstream for the next batch of transactions.
// Every failure is reported through the returned Status; no failure path touches
// the cursor or timestamp state.
func (c *Client) Fetch(ctx context.Context, params FetchParams) Result {
	query := formRequest(params)

	c.logger.DebugContext(ctx, "attempting upstream call",
		"url", c.baseURL+transactionsPath,
		"start", params.Start,
		"limit", query.Get("limit"),
		"has_cursor", params.Cursor != nil,
	)

	resp, body, failure := c.attemptCall(ctx, query)
	if failure != nil {
		return c.fail(ctx, *failure)
	}

	txns, cursor, count, outcome := checkResponse(resp.StatusCode, body)
	if outcome != nil {
		return c.fail(ctx, *outcome)
	}

	if count > 0 {
		c.mu.Lock()
		c.lastCursor = &cursor
		c.lastTimestamp = c.callReturned
		c.mu.Unlock()
	}

	if c.metrics != nil {
		c.metrics.RecordTransactionsFetched(len(txns))
	}
	c.logger.InfoContext(ctx, "successful upstream call", "count", len(txns))

	return Result{
		Success:      true,
		Transactions: txns,
		Status:       c.newStatus(CodeOK, "", count),
	}
}

// attemptCall performs the GET with bounded retries. It returns the response and
// its fully read body, or the outcome of the final failure.
func (c *Client) attemptCall(ctx context.Context, query url.Values) (*http.Response, []byte, *Outcome) {
	endpoint := c.baseURL + transactionsPath + "?" + query.Encode()

	for attempt := 1; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				outcome := Classify(err)
				return nil, nil, &outcome
			}
		}

		start := time.Now()
		resp, body, err := c.do(ctx, endpoint)
		duration := time.Since(start).Seconds()

		if err == nil {
			if c.metrics != nil {
				c.metrics.RecordFetchCall(strconv.Itoa(resp.StatusCode), duration)
			}
			c.mu.Lock()
			c.callReturned = c.now().Unix()
			c.mu.Unlock()
			return resp, body, nil
		}

		outcome := err.outcome
		if c.metrics != nil {
			c.metrics.RecordFetchCall("fault_"+strconv.Itoa(outcome.Code), duration)
		}

		if !outcome.Retryable() || attempt > c.retries {
			return nil, nil, &outcome
		}

		backoff := time.Duration(2*attempt) * time.Second
		c.logger.WarnContext(ctx, "upstream call failed, retrying",
			"attempt", attempt,
			"retries", c.retries,
			"code", outcome.Code,
			"error", err.cause,
			"backoff_seconds", backoff.Seconds(),
		)
		if c.metrics != nil {
			c.metrics.RecordFetchRetry(strconv.Itoa(outcome.Code))
		}
		if serr := c.sleep(ctx, backoff); serr != nil {
			return nil, nil, &outcome
		}
	}
}

type callError struct {
	outcome Outcome
	cause   error
}

func (c *Client) do(ctx context.Context, endpoint string) (*http.Response, []byte, *callError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, &callError{outcome: Fatal(CodeTransport, fmt.Sprintf("Internal error: Exception %v when conducting API call", err)), cause: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, &callError{outcome: Classify(err), cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// The transport succeeded; a broken body is a parse failure, not a retryable fault.
		return nil, nil, &callError{
			outcome: Fatal(CodeParse, fmt.Sprintf("Internal error: Exception %v when parsing JSON object from received response", err)),
			cause:   err,
		}
	}
	return resp, body, nil
}

func (c *Client) fail(ctx context.Context, outcome Outcome) Result {
	c.logger.ErrorContext(ctx, "upstream call failed",
		"code", outcome.Code,
		"message", outcome.Message,
	)
	return Result{
		Success: false,
		Status:  c.newStatus(outcome.Code, outcome.Message, 0),
	}
}

func (c *Client) newStatus(code int, message string, count int) Status {
	return Status{
		Timestamp:        c.now(),
		Code:             code,
		Message:          message,
		TransactionCount: count,
	}
}

// formRequest builds the outbound query. api_key, start, min_value and limit
// are always present; end and cursor only when set.
func formRequest(p FetchParams) url.Values {
	limit := p.Limit
	if limit < 1 || limit > MaxLimit {
		limit = MaxLimit
	}

	q := url.Values{}
	q.Set("api_key", p.APIKey)
	q.Set("start", strconv.FormatInt(p.Start, 10))
	q.Set("min_value", strconv.FormatInt(p.MinValue, 10))
	q.Set("limit", strconv.Itoa(limit))
	if p.End != nil {
		q.Set("end", strconv.FormatInt(*p.End, 10))
	}
	if p.Cursor != nil {
		q.Set("cursor", *p.Cursor)
	}
	return q
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
