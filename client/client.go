package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/whalealert/service/db"
	natspkg "github.com/brojonat/whalealert/service/nats"
	"github.com/brojonat/whalealert/service/query"
	"github.com/brojonat/whalealert/service/status"
)

// ErrNoStatus is returned by Status when the poller has not recorded a call yet.
var ErrNoStatus = errors.New("no status recorded")

// Status is the poller health report served by /api/v1/status.
type Status struct {
	LastCallMinutes int                `json:"last_call_minutes"`
	Health          float64            `json:"health"`
	Status          string             `json:"status"`
	AllTime         status.Counters    `json:"all_time"`
	Session         status.Counters    `json:"current_session"`
	LastGood        *status.LastGood   `json:"last_good_status,omitempty"`
	LastFailed      *status.LastFailed `json:"last_failed_status,omitempty"`
}

// Client is the HTTP client for the whalealert read API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new read API client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// EncodeFilter converts a filter to the query parameters the server accepts.
func EncodeFilter(f query.Filter) url.Values {
	v := url.Values{}
	if len(f.Blockchains) > 0 {
		v.Set("blockchain", strings.Join(f.Blockchains, ","))
	}
	if len(f.Symbols) > 0 {
		v.Set("symbol", strings.Join(f.Symbols, ","))
	}
	if f.FromTime > 0 {
		v.Set("from", strconv.FormatInt(f.FromTime, 10))
	}
	v.Set("limit", strconv.Itoa(f.MaxResults))
	if f.Mode != "" {
		v.Set("format", string(f.Mode))
	}
	return v
}

// Transactions runs a filtered query against the server.
func (c *Client) Transactions(ctx context.Context, f query.Filter) (query.Result, error) {
	mode := f.Mode
	if mode == "" {
		mode = query.ModeText
	}
	u := c.baseURL + "/api/v1/transactions?" + EncodeFilter(f).Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return query.Result{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return query.Result{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return query.Result{}, c.parseErrorResponse(resp)
	}

	res := query.Result{Mode: mode}
	switch mode {
	case query.ModeText, query.ModePretty:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return query.Result{}, fmt.Errorf("failed to read response: %w", err)
		}
		res.Text = string(body)
	case query.ModeRecords:
		var body struct {
			Records []query.TextRecord `json:"records"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return query.Result{}, fmt.Errorf("failed to decode response: %w", err)
		}
		res.Records = body.Records
	default:
		var body struct {
			Rows []db.Row `json:"rows"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return query.Result{}, fmt.Errorf("failed to decode response: %w", err)
		}
		res.Rows = body.Rows
	}

	c.logger.Debug("transactions fetched", "mode", mode, "count", res.Len())
	return res, nil
}

// Status retrieves the poller health report.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/status", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoStatus
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var s Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &s, nil
}

// Health checks the server's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	return nil
}

// Stream subscribes to the SSE whale stream and calls fn for every event until
// ctx is done, the server closes the stream, or fn returns an error.
// An empty blockchain streams every blockchain.
func (c *Client) Stream(ctx context.Context, blockchain string, fn func(*natspkg.WhaleEvent) error) error {
	u := c.baseURL + "/api/v1/stream/transactions"
	if blockchain != "" {
		u += "/" + url.PathEscape(blockchain)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The configured client timeout would end the stream.
	streaming := *c.httpClient
	streaming.Timeout = 0

	resp, err := streaming.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if err := c.dispatch(event, data, fn); err != nil {
				return err
			}
			event, data = "", ""
			continue
		}

		if strings.HasPrefix(line, "event:") {
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}

func (c *Client) dispatch(event, data string, fn func(*natspkg.WhaleEvent) error) error {
	switch event {
	case "whale":
		var e natspkg.WhaleEvent
		if err := json.Unmarshal([]byte(data), &e); err != nil {
			c.logger.Warn("failed to decode whale event", "error", err)
			return nil
		}
		return fn(&e)
	case "error":
		var errInfo struct {
			Error string `json:"error"`
		}
		json.Unmarshal([]byte(data), &errInfo)
		return fmt.Errorf("server error: %s", errInfo.Error)
	case "connected":
		c.logger.Debug("stream connected", "data", data)
	}
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
