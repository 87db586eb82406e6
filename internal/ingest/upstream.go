package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/lox/mpawatch/internal/httputil"
	"github.com/lox/mpawatch/internal/metrics"
)

// StatusError is returned for a non-2xx upstream response.
type StatusError struct {
	API    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.API, e.Status, e.Body)
}

// get issues one GET and returns the body of a 2xx response. Error bodies
// are truncated for logging.
func get(ctx context.Context, client *http.Client, api, url string, setup func(*http.Request)) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", api, err)
	}
	req.Header.Set("User-Agent", httputil.DefaultUserAgent)
	if setup != nil {
		setup(req)
	}

	start := time.Now()
	resp, err := client.Do(req)
	metrics.UpstreamLatency.WithLabelValues(api).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(api, "error").Inc()
		return nil, fmt.Errorf("%s: request: %w", api, err)
	}
	defer resp.Body.Close()

	metrics.UpstreamRequestsTotal.WithLabelValues(api, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{API: api, Status: resp.StatusCode, Body: truncateBody(string(b), 200)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", api, err)
	}
	return body, nil
}

func truncateBody(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
