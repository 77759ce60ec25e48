// Package completion proxies structured prompts to an external chat
// completion endpoint and post-processes the replies.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrUpstream        = errors.New("completion upstream failed")
	ErrUpstreamTimeout = errors.New("completion upstream timed out")
)

// maxReplyBytes bounds how much of an upstream reply is read.
const maxReplyBytes = 4 << 20

// Message is one entry of the prompt.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body sent upstream.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type ClientConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client performs a single, deadline-bound call per request. It never retries.
type Client struct {
	httpClient *http.Client
	url        string
	apiKey     string
	model      string
	timeout    time.Duration

	calls    *prometheus.CounterVec
	duration prometheus.Histogram
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		// the per-call context carries the deadline
		httpClient: &http.Client{},
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		timeout:    timeout,
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dream",
				Subsystem: "completion",
				Name:      "upstream_calls_total",
				Help:      "Completion upstream calls by outcome.",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "dream",
				Subsystem: "completion",
				Name:      "upstream_duration_seconds",
				Help:      "Duration of completion upstream calls.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
			},
		),
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool { return c.apiKey != "" }

// Collectors returns the client's metrics for registration.
func (c *Client) Collectors() []prometheus.Collector {
	return []prometheus.Collector{c.calls, c.duration}
}

// Complete posts req and returns the raw reply body.
func (c *Client) Complete(ctx context.Context, req ChatRequest) ([]byte, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	req.Stream = false

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	defer func() { c.duration.Observe(time.Since(start).Seconds()) }()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.fail(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, c.fail(ctx, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.calls.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, snippet(body))
	}
	c.calls.WithLabelValues("ok").Inc()
	return body, nil
}

func (c *Client) fail(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.calls.WithLabelValues("timeout").Inc()
		return fmt.Errorf("%w after %s", ErrUpstreamTimeout, c.timeout)
	}
	c.calls.WithLabelValues("error").Inc()
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}

func snippet(b []byte) string {
	const n = 200
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
