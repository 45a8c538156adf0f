package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/whalealert/service/query"
	"github.com/brojonat/whalealert/service/status"
	"github.com/patrickmn/go-cache"
)

const (
	maxListItems    = 50
	maxNameLength   = 64
	defaultFormat   = query.ModeText
	textContentType = "text/plain; charset=utf-8"
)

// StatusSource loads the persisted status document.
type StatusSource interface {
	Load(ctx context.Context) (*status.State, error)
}

// ParseFilter builds a query filter from URL parameters:
// blockchain and symbol (comma separated or "*"), from (unix seconds),
// limit (-1 for unlimited) and format.
func ParseFilter(values url.Values) (query.Filter, error) {
	blockchains, err := parseList(values.Get("blockchain"), "blockchain")
	if err != nil {
		return query.Filter{}, err
	}
	symbols, err := parseList(values.Get("symbol"), "symbol")
	if err != nil {
		return query.Filter{}, err
	}

	f := query.Filter{
		Blockchains: blockchains,
		Symbols:     symbols,
		MaxResults:  query.Unlimited,
		Mode:        defaultFormat,
	}

	if s := values.Get("from"); s != "" {
		from, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return query.Filter{}, errorf("invalid from parameter: must be a unix timestamp")
		}
		if from < 0 {
			return query.Filter{}, errorf("from cannot be negative")
		}
		f.FromTime = from
	}

	if s := values.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil {
			return query.Filter{}, errorf("invalid limit parameter: must be an integer")
		}
		if limit < query.Unlimited {
			return query.Filter{}, errorf("limit must be -1 (unlimited) or at least 0")
		}
		f.MaxResults = limit
	}

	if s := values.Get("format"); s != "" {
		mode, ok := query.ParseMode(s)
		if !ok {
			return query.Filter{}, errorf("format must be one of text, pretty, records, table")
		}
		f.Mode = mode
	}

	return f, nil
}

func parseList(raw, name string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == query.Wildcard {
		return []string{query.Wildcard}, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) > maxListItems {
		return nil, errorf("%s accepts at most %d values", name, maxListItems)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if err := validateName(p, name); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, errorf("%s cannot be empty", name)
	}
	return out, nil
}

// validateName accepts blockchain and symbol names: letters, digits, '-' and '_'.
func validateName(s, name string) error {
	if len(s) > maxNameLength {
		return errorf("%s value too long (max %d characters)", name, maxNameLength)
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return errorf("%s contains invalid character %q", name, r)
		}
	}
	return nil
}

// handleQueryTransactions returns a handler that answers filtered read queries.
// GET /api/v1/transactions?blockchain=a,b&symbol=x&from=N&limit=N&format=text
func handleQueryTransactions(engine *query.Engine, c *cache.Cache, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, err := ParseFilter(r.URL.Query())
		if err != nil {
			logger.Debug("invalid query", "query", r.URL.RawQuery, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		key := cacheKey(f)
		var res query.Result
		if cached, ok := c.Get(key); ok {
			res = cached.(query.Result)
		} else {
			res = engine.Query(r.Context(), f)
			c.Set(key, res, cache.DefaultExpiration)
		}

		logger.Debug("transactions queried", "mode", f.Mode, "count", res.Len())

		switch f.Mode {
		case query.ModeText, query.ModePretty:
			w.Header().Set("Content-Type", textContentType)
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(res.Text))
		case query.ModeRecords:
			writeJSON(w, map[string]interface{}{
				"records": res.Records,
				"count":   len(res.Records),
			}, http.StatusOK)
		default:
			writeJSON(w, map[string]interface{}{
				"rows":  res.Rows,
				"count": len(res.Rows),
			}, http.StatusOK)
		}
	})
}

func cacheKey(f query.Filter) string {
	return fmt.Sprintf("%s|%s|%d|%d|%s",
		strings.Join(f.Blockchains, ","),
		strings.ToUpper(strings.Join(f.Symbols, ",")),
		f.FromTime, f.MaxResults, f.Mode)
}

// statusResponse is the JSON response format for the status endpoint.
type statusResponse struct {
	LastCallMinutes int                `json:"last_call_minutes"`
	Health          float64            `json:"health"`
	Status          string             `json:"status"`
	AllTime         status.Counters    `json:"all_time"`
	Session         status.Counters    `json:"current_session"`
	LastGood        *status.LastGood   `json:"last_good_status,omitempty"`
	LastFailed      *status.LastFailed `json:"last_failed_status,omitempty"`
}

// handleGetStatus returns a handler reporting the poller's call health.
// GET /api/v1/status
func handleGetStatus(source StatusSource, pollInterval time.Duration, now func() time.Time, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state, err := source.Load(r.Context())
		if err != nil {
			logger.Error("failed to load status", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if state == nil {
			writeError(w, status.ErrNoStatus.Error(), http.StatusNotFound)
			return
		}

		report, err := status.BuildReport(*state, pollInterval, now())
		if errors.Is(err, status.ErrNoStatus) {
			writeError(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to build status report", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, statusResponse{
			LastCallMinutes: report.LastCallMinutes,
			Health:          report.Health,
			Status:          report.Status,
			AllTime:         state.AllTime,
			Session:         state.Session,
			LastGood:        state.LastGood,
			LastFailed:      state.LastFailed,
		}, http.StatusOK)
	})
}

func handleStorageUnavailable() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, "transaction storage not configured", http.StatusServiceUnavailable)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validationError is returned for malformed request parameters.
type validationError struct {
	msg string
}

func errorf(format string, args ...interface{}) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

func (e *validationError) Error() string {
	return e.msg
}
